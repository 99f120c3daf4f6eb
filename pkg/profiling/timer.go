// Package profiling collects optional timing statistics and pprof profiles.
package profiling

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"
)

// Stopper ends a timed span.
type Stopper interface {
	Stop()
}

// Stat aggregates every span recorded under one name.
type Stat struct {
	Name  string
	Count int
	Total time.Duration
	Max   time.Duration
}

// Mean returns the average span duration.
func (s Stat) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Profiler aggregates spans by name. It is safe for concurrent use, so the
// scan worker and dispatch goroutines can share it.
type Profiler struct {
	mu      sync.Mutex
	enabled bool
	started time.Time
	stats   map[string]*Stat
}

type span struct {
	name  string
	start time.Time
	p     *Profiler
}

func (s *span) Stop() { s.p.record(s.name, time.Since(s.start)) }

type noopStopper struct{}

func (noopStopper) Stop() {}

var defaultProfiler = &Profiler{}

// Enable turns on the global profiler. Spans started before are not recorded.
func Enable() { defaultProfiler.Enable() }

// Start begins a span on the global profiler.
func Start(name string) Stopper { return defaultProfiler.Start(name) }

// Summarize writes the global profiler's table to w.
func Summarize(w io.Writer) { defaultProfiler.Summarize(w) }

// Enable turns on recording.
func (p *Profiler) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return
	}
	p.enabled = true
	p.started = time.Now()
	p.stats = make(map[string]*Stat)
}

// Start begins a span. Call Stop on the result, typically via defer.
func (p *Profiler) Start(name string) Stopper {
	p.mu.Lock()
	enabled := p.enabled
	p.mu.Unlock()
	if !enabled {
		return noopStopper{}
	}
	return &span{name: name, start: time.Now(), p: p}
}

func (p *Profiler) record(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.stats[name]
	if !ok {
		st = &Stat{Name: name}
		p.stats[name] = st
	}
	st.Count++
	st.Total += d
	st.Max = max(st.Max, d)
}

// Stats returns a snapshot ordered by total time, largest first.
func (p *Profiler) Stats() []Stat {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Stat, 0, len(p.stats))
	for _, st := range p.stats {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b Stat) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// Summarize writes one line per span name.
func (p *Profiler) Summarize(w io.Writer) {
	p.mu.Lock()
	enabled, started := p.enabled, p.started
	p.mu.Unlock()
	if !enabled {
		return
	}

	elapsed := time.Since(started)
	fmt.Fprintf(w, "\n--- Timing Profile (%v) ---\n", elapsed.Round(time.Millisecond))
	for _, st := range p.Stats() {
		share := 0.0
		if elapsed > 0 {
			share = float64(st.Total) / float64(elapsed) * 100
		}
		fmt.Fprintf(w, "- %s: %d× mean %v max %v (%.1f%%)\n",
			st.Name, st.Count, st.Mean().Round(100*time.Microsecond), st.Max.Round(100*time.Microsecond), share)
	}
	fmt.Fprintln(w, "--------------------")
}

