package coordinator

import "sync"

// wake carries scan requests to the worker. Requests made while the worker
// is busy collapse into one pending token, so none is lost and bursts cost
// one extra cycle at most.
type wake struct {
	ch       chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
}

func newWake() *wake {
	return &wake{
		ch:   make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
}

// notify requests a scan cycle. It never blocks.
func (w *wake) notify() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// stop asks the worker to exit after its current cycle.
func (w *wake) stop() {
	w.quitOnce.Do(func() { close(w.quit) })
}

// stopped reports whether stop was called.
func (w *wake) stopped() bool {
	select {
	case <-w.quit:
		return true
	default:
		return false
	}
}
