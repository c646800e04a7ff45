package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/lightninglabs/btcpeer/lncfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// MetricsPath is the HTTP path the metrics are served on.
	MetricsPath = "/metrics"

	// shutdownTimeout bounds how long Stop waits for in-flight scrapes.
	shutdownTimeout = 5 * time.Second

	readHeaderTimeout = 10 * time.Second
)

// Exporter serves the metrics of a prometheus.Gatherer over HTTP.
type Exporter struct {
	cfg lncfg.Prometheus

	started sync.Once
	stopped sync.Once

	server   *http.Server
	listener net.Listener
	serveErr chan error
}

// NewExporter creates an exporter for the given gatherer. Start must be
// called before any metrics are served.
func NewExporter(cfg lncfg.Prometheus,
	gatherer prometheus.Gatherer) *Exporter {

	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(
		gatherer, promhttp.HandlerOpts{},
	))

	return &Exporter{
		cfg: cfg,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		serveErr: make(chan error, 1),
	}
}

// Start binds the listen address and begins serving in the background.
func (e *Exporter) Start() error {
	var err error
	e.started.Do(func() {
		e.listener, err = net.Listen("tcp", e.cfg.Listen)
		if err != nil {
			err = fmt.Errorf("unable to listen on %v: %w",
				e.cfg.Listen, err)
			return
		}

		log.Infof("Prometheus exporter started on %v%v",
			e.listener.Addr(), MetricsPath)

		go func() {
			e.serveErr <- e.server.Serve(e.listener)
		}()
	})

	return err
}

// Addr returns the bound address, or nil before Start.
func (e *Exporter) Addr() net.Addr {
	if e.listener == nil {
		return nil
	}

	return e.listener.Addr()
}

// Stop shuts the HTTP server down.
func (e *Exporter) Stop() error {
	var err error
	e.stopped.Do(func() {
		if e.listener == nil {
			return
		}

		log.Infof("Prometheus exporter shutting down")

		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		err = e.server.Shutdown(ctx)
	})

	return err
}

// ExportPrometheusMetrics serves the gatherer's metrics on the configured
// address until ctx is cancelled.
func ExportPrometheusMetrics(ctx context.Context, cfg lncfg.Prometheus,
	gatherer prometheus.Gatherer) error {

	exporter := NewExporter(cfg, gatherer)
	if err := exporter.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return exporter.Stop()

	case err := <-exporter.serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("prometheus exporter failed: %w", err)
	}
}
