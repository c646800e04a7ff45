package peer

import (
	"context"
	"errors"
	"sync"

	"github.com/lightninglabs/btcpeer/btcwire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/queue"
)

// DefaultFeedBufferSize is the channel buffer in front of the feed's
// unbounded overflow list.
const DefaultFeedBufferSize = 16

// ErrFeedClosed is returned when publishing to, or reading from, a feed that
// has been stopped.
var ErrFeedClosed = errors.New("block feed closed")

// BlockFeed hands decoded blocks from a session to a single consumer in
// arrival order. Publishing never waits on the consumer.
//
// NOTE: This structure MUST be initialized with NewBlockFeed.
type BlockFeed struct {
	queue *queue.ConcurrentQueue

	started sync.Once
	stopped sync.Once

	quit chan struct{}
}

// NewBlockFeed creates a feed. It must be started before use.
func NewBlockFeed(bufferSize int) *BlockFeed {
	return &BlockFeed{
		queue: queue.NewConcurrentQueue(bufferSize),
		quit:  make(chan struct{}),
	}
}

// Start launches the feed's queue.
func (f *BlockFeed) Start() {
	f.started.Do(f.queue.Start)
}

// Stop shuts the feed down. Blocks not yet consumed are dropped and every
// later Publish fails with ErrFeedClosed.
func (f *BlockFeed) Stop() {
	f.stopped.Do(func() {
		close(f.quit)
		f.queue.Stop()
	})
}

// Publish appends rec to the feed.
func (f *BlockFeed) Publish(ctx context.Context,
	rec *btcwire.BlockRecord) error {

	// Check quit first so a stopped feed fails deterministically.
	select {
	case <-f.quit:
		return ErrFeedClosed
	default:
	}

	select {
	case f.queue.ChanIn() <- rec:
		return nil

	case <-f.quit:
		return ErrFeedClosed

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next blocks until a block is available, the feed stops or ctx is done.
func (f *BlockFeed) Next(ctx context.Context) (*btcwire.BlockRecord, error) {
	select {
	case item, ok := <-f.queue.ChanOut():
		if !ok {
			return nil, ErrFeedClosed
		}

		return item.(*btcwire.BlockRecord), nil

	case <-f.quit:
		return nil, ErrFeedClosed

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Poll returns the next block if one is ready without blocking.
func (f *BlockFeed) Poll() fn.Option[*btcwire.BlockRecord] {
	select {
	case item, ok := <-f.queue.ChanOut():
		if !ok {
			return fn.None[*btcwire.BlockRecord]()
		}

		return fn.Some(item.(*btcwire.BlockRecord))

	default:
		return fn.None[*btcwire.BlockRecord]()
	}
}
