package watcher

import (
	"sync"
	"time"
)

// debouncer coalesces events per path. Each new event for a path restarts
// that path's timer, so fire sees only the last event of a burst.
type debouncer struct {
	interval time.Duration
	fire     func(Event)

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func newDebouncer(interval time.Duration, fire func(Event)) *debouncer {
	return &debouncer{
		interval: interval,
		fire:     fire,
		pending:  make(map[string]*time.Timer),
	}
}

// push schedules event, replacing any event still pending for its path.
func (d *debouncer) push(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if t, ok := d.pending[event.Path]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		current := d.pending[event.Path] == t
		if current {
			delete(d.pending, event.Path)
		}
		stopped := d.stopped
		d.mu.Unlock()

		if current && !stopped {
			d.fire(event)
		}
	})
	d.pending[event.Path] = t
}

// stop cancels every pending event. Later pushes are ignored.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for path, t := range d.pending {
		t.Stop()
		delete(d.pending, path)
	}
}
