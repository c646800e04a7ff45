package btcpeer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/lightninglabs/btcpeer/blockview"
	"github.com/lightninglabs/btcpeer/build"
	"github.com/lightninglabs/btcpeer/lncfg"
	"github.com/lightninglabs/btcpeer/monitoring"
	"github.com/lightninglabs/btcpeer/peer"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Main is the true entry point for btcpeer. It keeps a session with the
// configured peer alive and renders every received block until ctx is
// cancelled or the session gives up.
func Main(ctx context.Context, cfg *Config) error {
	defer func() {
		btcpLog.Info("Shutdown complete")

		if cfg.LogRotator != nil {
			if err := cfg.LogRotator.Close(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "could not close "+
					"log rotator: %v\n", err)
			}
		}
	}()

	btcpLog.Infof("Version: %s commit=%s, network=%s, peer=%s",
		build.Version(), build.Commit, cfg.ActiveNetParams.Name,
		cfg.PeerAddr)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)
	metrics, err := peer.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("unable to register metrics: %w", err)
	}

	feed := peer.NewBlockFeed(peer.DefaultFeedBufferSize)
	feed.Start()
	defer feed.Stop()

	mgr := newPeerManager(&peerManagerConfig{
		Addr:        cfg.PeerAddr,
		ChainParams: cfg.ActiveNetParams,
		Peer:        cfg.Peer,
		Feed:        feed,
		Metrics:     metrics,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mgr.run(ctx)
	})

	if cfg.NoView {
		g.Go(func() error {
			return drainFeed(ctx, feed)
		})
	} else {
		viewer := blockview.New(blockview.Config{
			Out:     os.Stdout,
			History: cfg.View.History,
			MaxTxns: cfg.View.MaxTxns,
		})
		g.Go(func() error {
			return viewer.Run(ctx, feed)
		})
	}

	if cfg.Prometheus.Enabled() {
		if !lncfg.IsLoopback(cfg.Prometheus.Listen) {
			btcpLog.Warnf("Prometheus exporter listens on non-loopback "+
				"address %v", cfg.Prometheus.Listen)
		}

		g.Go(func() error {
			return monitoring.ExportPrometheusMetrics(
				ctx, cfg.Prometheus, registry,
			)
		})
	}

	if cfg.StatsInterval > 0 {
		g.Go(func() error {
			return mgr.logStats(ctx, ticker.New(cfg.StatsInterval))
		})
	}

	if err := g.Wait(); err != nil {
		btcpLog.Errorf("Shutting down: %v", err)
		return err
	}

	return nil
}

// drainFeed consumes blocks when no viewer is attached so the feed does not
// grow without bound.
func drainFeed(ctx context.Context, feed *peer.BlockFeed) error {
	for {
		rec, err := feed.Next(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return nil

		case err != nil:
			return err
		}

		btcpLog.Infof("Block %v: %d txns, %v, mined %v", rec.Hash,
			len(rec.Transactions), rec.TotalOutputValue(),
			rec.Header.Time().UTC())
	}
}
