package persist

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/datakit/internal/logging"
)

// DefaultDebounceDelay is how long an expensive save waits for newer state.
const DefaultDebounceDelay = 500 * time.Millisecond

// Debounced wraps a Persistence so expensive saves are delayed and
// coalesced per store. A cheap save supersedes any pending expensive save of
// the same store and is written at once. An older state is never written
// after a newer one.
type Debounced struct {
	inner  Persistence
	delay  time.Duration
	logger *logging.Logger

	mu      sync.Mutex
	pending map[string]*pendingSave
	seq     map[string]uint64
	written map[string]uint64
	closed  bool

	// writeMu serializes calls to inner.
	writeMu sync.Mutex
}

// pendingSave tracks a deferred save.
type pendingSave struct {
	state any
	seq   uint64
	timer *time.Timer
}

// NewDebounced creates a debouncing wrapper around inner.
func NewDebounced(inner Persistence, delay time.Duration, logger *logging.Logger) *Debounced {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Debounced{
		inner:   inner,
		delay:   delay,
		logger:  logger.WithComponent("persist"),
		pending: make(map[string]*pendingSave),
		seq:     make(map[string]uint64),
		written: make(map[string]uint64),
	}
}

// Load flushes any pending save of store, then loads from inner.
func (d *Debounced) Load(ctx context.Context, store string) (any, bool, error) {
	d.flushStore(ctx, store)

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.inner.Load(ctx, store)
}

// Save defers expensive saves and writes cheap ones immediately.
func (d *Debounced) Save(ctx context.Context, store string, state any, opts SaveOptions) error {
	d.mu.Lock()
	d.seq[store]++
	seq := d.seq[store]
	if p := d.pending[store]; p != nil {
		p.timer.Stop()
		delete(d.pending, store)
	}
	if opts.IsExpensive && !d.closed {
		d.pending[store] = &pendingSave{
			state: state,
			seq:   seq,
			timer: time.AfterFunc(d.delay, func() {
				d.fire(store, seq)
			}),
		}
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	return d.write(ctx, store, state, opts, seq)
}

// Pending reports the number of deferred saves.
func (d *Debounced) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debounced) fire(store string, seq uint64) {
	d.mu.Lock()
	p := d.pending[store]
	if p == nil || p.seq != seq {
		d.mu.Unlock()
		return
	}
	delete(d.pending, store)
	d.mu.Unlock()

	if err := d.write(context.Background(), store, p.state, SaveOptions{IsExpensive: true}, seq); err != nil {
		d.logger.Warn("deferred save failed", "store", store, "error", err)
	}
}

func (d *Debounced) take(store string) *pendingSave {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.pending[store]
	if p != nil {
		p.timer.Stop()
		delete(d.pending, store)
	}
	return p
}

func (d *Debounced) flushStore(ctx context.Context, store string) error {
	p := d.take(store)
	if p == nil {
		return nil
	}
	return d.write(ctx, store, p.state, SaveOptions{IsExpensive: true}, p.seq)
}

func (d *Debounced) write(ctx context.Context, store string, state any, opts SaveOptions, seq uint64) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	stale := seq < d.written[store]
	if !stale {
		d.written[store] = seq
	}
	d.mu.Unlock()
	if stale {
		return nil
	}
	return d.inner.Save(ctx, store, state, opts)
}

// Flush writes every pending save now.
func (d *Debounced) Flush(ctx context.Context) error {
	d.mu.Lock()
	stores := make([]string, 0, len(d.pending))
	for store := range d.pending {
		stores = append(stores, store)
	}
	d.mu.Unlock()

	var firstErr error
	for _, store := range stores {
		if err := d.flushStore(ctx, store); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close flushes pending saves. Later expensive saves are written at once.
func (d *Debounced) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Flush(context.Background())
}
