package ledger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudx-io/nftmarket/core"
)

// Host serializes every state transition of the node. Each call to Execute is
// one transaction: it runs to completion before the next is admitted and sees
// a single pinned block time.
type Host struct {
	mu     sync.Mutex
	source core.Clock

	blockTime atomic.Pointer[time.Time]
	height    atomic.Uint64
}

// NewHost returns a host that takes block times from source.
func NewHost(source core.Clock) *Host {
	h := &Host{source: source}
	start := source.Now()
	h.blockTime.Store(&start)
	return h
}

// Execute runs fn as one transaction. Block time never goes backwards, even
// if the source clock does. The height only advances when fn succeeds.
func (h *Host) Execute(fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.source.Now()
	if last := h.blockTime.Load(); now.Before(*last) {
		now = *last
	}
	h.blockTime.Store(&now)

	if err := fn(); err != nil {
		return err
	}
	h.height.Add(1)
	return nil
}

// View runs fn with no other transaction in flight.
func (h *Host) View(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

// Now returns the block time of the current (or last) transaction. It
// implements core.Clock for the components the host executes.
func (h *Host) Now() time.Time {
	return *h.blockTime.Load()
}

// Height returns the number of committed transactions.
func (h *Host) Height() uint64 {
	return h.height.Load()
}

// ManualClock is a clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock stopped at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// SystemClock reads wall-clock time in UTC.
var SystemClock = core.ClockFunc(func() time.Time { return time.Now().UTC() })
