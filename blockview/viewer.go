package blockview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/lightninglabs/btcpeer/btcwire"
	"golang.org/x/term"
)

const (
	// DefaultHistory is the number of recent blocks kept in the block
	// table.
	DefaultHistory = 10

	// DefaultMaxTxns is the number of transaction rows rendered per
	// block.
	DefaultMaxTxns = 20
)

// BlockSource yields decoded blocks in arrival order.
type BlockSource interface {
	// Next blocks until a block is available or ctx is done.
	Next(ctx context.Context) (*btcwire.BlockRecord, error)
}

// Config holds the viewer options.
type Config struct {
	// Out receives the rendered tables.
	Out io.Writer

	// History is the number of recent blocks in the block table.
	History int

	// MaxTxns caps the transaction rows per block. Zero renders every
	// transaction.
	MaxTxns int

	// Width caps the rendered row length. If zero and Out is a terminal,
	// the terminal width is used.
	Width int
}

// Viewer renders every block received from a BlockSource as a table of
// recent blocks followed by the new block's transactions.
type Viewer struct {
	cfg Config

	recent []*btcwire.BlockRecord
}

// New creates a viewer.
func New(cfg Config) *Viewer {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	if cfg.Width == 0 {
		cfg.Width = terminalWidth(cfg.Out)
	}

	return &Viewer{
		cfg: cfg,
	}
}

// terminalWidth returns the column count of w if it is a terminal, zero
// otherwise.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}

	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		log.Debugf("Unable to read terminal size: %v", err)
		return 0
	}

	return width
}

// Run renders blocks from src until ctx is cancelled or src fails. A
// cancelled context is not an error.
func (v *Viewer) Run(ctx context.Context, src BlockSource) error {
	log.Infof("Block viewer started")
	defer log.Infof("Block viewer stopped")

	for {
		rec, err := src.Next(ctx)
		switch {
		case errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded):

			return nil

		case err != nil:
			return fmt.Errorf("block source: %w", err)
		}

		if err := v.Show(rec); err != nil {
			return err
		}
	}
}

// Show adds rec to the history and writes the rendered tables.
func (v *Viewer) Show(rec *btcwire.BlockRecord) error {
	v.recent = append(v.recent, rec)
	if len(v.recent) > v.cfg.History {
		v.recent = v.recent[len(v.recent)-v.cfg.History:]
	}

	out := v.RenderBlocks() + "\n" + v.RenderTransactions(rec) + "\n\n"
	if _, err := io.WriteString(v.cfg.Out, out); err != nil {
		return fmt.Errorf("unable to write block view: %w", err)
	}

	log.Debugf("Rendered block %v with %d txns", rec.Hash,
		len(rec.Transactions))

	return nil
}

func (v *Viewer) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	if v.cfg.Width > 0 {
		t.SetAllowedRowLength(v.cfg.Width)
	}

	return t
}

// RenderBlocks renders the recent blocks, newest first.
func (v *Viewer) RenderBlocks() string {
	t := v.newTable("Blocks")
	t.AppendHeader(table.Row{"Timestamp", "Hash", "Txns", "Value"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Txns", Align: text.AlignRight},
		{Name: "Value", Align: text.AlignRight},
	})

	for i := len(v.recent) - 1; i >= 0; i-- {
		rec := v.recent[i]
		t.AppendRow(table.Row{
			rec.Header.Time().UTC().Format(time.DateTime),
			rec.Hash.String(),
			len(rec.Transactions),
			rec.TotalOutputValue().String(),
		})
	}

	return t.Render()
}

// RenderTransactions renders the transactions of rec, up to MaxTxns rows.
func (v *Viewer) RenderTransactions(rec *btcwire.BlockRecord) string {
	t := v.newTable(fmt.Sprintf("Transactions in %v", rec.Hash))
	t.AppendHeader(table.Row{
		"#", "Version", "Inputs", "Outputs", "Value", "LockTime",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Value", Align: text.AlignRight},
	})

	txns := rec.Transactions
	if v.cfg.MaxTxns > 0 && len(txns) > v.cfg.MaxTxns {
		txns = txns[:v.cfg.MaxTxns]
	}

	for i := range txns {
		tx := &txns[i]
		t.AppendRow(table.Row{
			i, tx.Version, len(tx.Inputs), len(tx.Outputs),
			tx.TotalValue().String(), tx.LockTime,
		})
	}

	if hidden := len(rec.Transactions) - len(txns); hidden > 0 {
		t.AppendFooter(table.Row{
			"", fmt.Sprintf("%d more", hidden),
		})
	}

	return t.Render()
}
