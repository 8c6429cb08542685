package tasks

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDebounceDelay coalesces the burst of events an editor save produces
const DefaultDebounceDelay = 150 * time.Millisecond

// debouncer delays a callback until no new event for the same key has
// arrived for the configured delay
type debouncer struct {
	pending   map[string]*time.Timer
	mu        sync.Mutex
	delay     time.Duration
	onProcess func(key string)
	stopping  atomic.Bool
}

func newDebouncer(delay time.Duration, onProcess func(key string)) *debouncer {
	return &debouncer{
		pending:   make(map[string]*time.Timer),
		delay:     delay,
		onProcess: onProcess,
	}
}

// Queue schedules key, resetting its timer if already pending.
// Returns false once the debouncer is stopping.
func (d *debouncer) Queue(key string) bool {
	if d.stopping.Load() {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopping.Load() {
		return false
	}

	if timer, ok := d.pending[key]; ok && timer.Reset(d.delay) {
		return true
	}

	d.pending[key] = time.AfterFunc(d.delay, func() {
		d.fire(key)
	})
	return true
}

func (d *debouncer) fire(key string) {
	d.mu.Lock()
	_, ok := d.pending[key]
	delete(d.pending, key)
	d.mu.Unlock()

	if ok && !d.stopping.Load() {
		d.onProcess(key)
	}
}

// Stop cancels pending callbacks; none run after Stop returns
func (d *debouncer) Stop() {
	d.stopping.Store(true)

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, timer := range d.pending {
		timer.Stop()
	}
	d.pending = make(map[string]*time.Timer)
}

// PendingCount returns the number of pending keys (for testing)
func (d *debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
