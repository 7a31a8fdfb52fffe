package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Profiler records how long each engine operation takes.
type Profiler struct {
	mu         sync.Mutex
	timings    map[string]*Timing
	maxSamples int
}

// Timing holds statistics for one operation name.
type Timing struct {
	Name  string
	Count uint64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
	Last  time.Duration

	samples []time.Duration
	next    int
}

// NewProfiler keeps up to maxSamples recent durations per operation for
// percentile queries.
func NewProfiler(maxSamples int) *Profiler {
	if maxSamples < 1 {
		maxSamples = 1
	}
	return &Profiler{timings: make(map[string]*Timing), maxSamples: maxSamples}
}

// Start begins timing name. Call the returned func when the operation ends.
// A nil Profiler returns a no-op.
func (p *Profiler) Start(name string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() { p.record(name, time.Since(start)) }
}

func (p *Profiler) record(name string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.timings[name]
	if !ok {
		t = &Timing{Name: name, Min: elapsed, Max: elapsed}
		p.timings[name] = t
	}
	t.Count++
	t.Total += elapsed
	t.Last = elapsed
	if elapsed < t.Min {
		t.Min = elapsed
	}
	if elapsed > t.Max {
		t.Max = elapsed
	}

	if len(t.samples) < p.maxSamples {
		t.samples = append(t.samples, elapsed)
		return
	}
	t.samples[t.next] = elapsed
	t.next = (t.next + 1) % p.maxSamples
}

// Timing returns a copy of the statistics for name.
func (p *Profiler) Timing(name string) (Timing, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.timings[name]
	if !ok {
		return Timing{}, false
	}
	return t.clone(), true
}

// Timings returns copies of all statistics sorted by name.
func (p *Profiler) Timings() []Timing {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Timing, 0, len(p.timings))
	for _, t := range p.timings {
		out = append(out, t.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset clears all statistics.
func (p *Profiler) Reset() {
	p.mu.Lock()
	p.timings = make(map[string]*Timing)
	p.mu.Unlock()
}

// Report formats one line per operation.
func (p *Profiler) Report() string {
	timings := p.Timings()
	if len(timings) == 0 {
		return "no operations timed\n"
	}
	var sb strings.Builder
	for _, t := range timings {
		fmt.Fprintf(&sb, "%-20s count=%d total=%v avg=%v min=%v max=%v p95=%v\n",
			t.Name, t.Count, t.Total, t.Average(), t.Min, t.Max, t.Percentile(95))
	}
	return sb.String()
}

func (t *Timing) clone() Timing {
	c := *t
	c.samples = append([]time.Duration(nil), t.samples...)
	return c
}

// Average returns the mean duration.
func (t Timing) Average() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Count)
}

// Percentile returns the nearest-rank percentile p in [0, 100] over the
// retained samples.
func (t Timing) Percentile(p float64) time.Duration {
	if len(t.samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), t.samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[int(float64(len(sorted)-1)*p/100)]
}
