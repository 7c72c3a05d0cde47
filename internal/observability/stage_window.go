package observability

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

// stageTargets are the p95 budgets a clinician notices when missed.
var stageTargets = map[string]time.Duration{
	"turn_to_reply":           4 * time.Second,
	"reply_to_audio_start":    1500 * time.Millisecond,
	"greeting_to_audio_start": 1500 * time.Millisecond,
	"transcribe":              5 * time.Second,
	"assessment":              8 * time.Second,
	"dashboard_primary":       10 * time.Second,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	// OverTarget counts window samples slower than the target.
	OverTarget int  `json:"over_target,omitempty"`
	Breaching  bool `json:"breaching,omitempty"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// ring keeps the most recent samples of one stage.
type ring struct {
	buf  []float64
	next int
	full bool
	last float64
}

func (r *ring) add(v float64) {
	r.buf[r.next] = v
	r.last = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) sorted() []float64 {
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := slices.Clone(r.buf[:n])
	slices.Sort(out)
	return out
}

// stageWindow is a rolling latency window for turn and dashboard stages plus
// plain counters for notable events.
type stageWindow struct {
	mu         sync.RWMutex
	size       int
	stages     map[string]*ring
	indicators map[string]int
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 256
	}
	return &stageWindow{
		size:       size,
		stages:     make(map[string]*ring),
		indicators: make(map[string]int),
	}
}

func (w *stageWindow) observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.stages[stage]
	if !ok {
		r = &ring{buf: make([]float64, w.size)}
		w.stages[stage] = r
	}
	r.add(ms)
}

func (w *stageWindow) count(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	w.indicators[name]++
	w.mu.Unlock()
}

func (w *stageWindow) snapshot() StageSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(w.stages)),
	}
	for _, name := range sortedKeys(w.stages) {
		if st, ok := summarize(name, w.stages[name]); ok {
			snap.Stages = append(snap.Stages, st)
		}
	}
	for _, name := range sortedKeys(w.indicators) {
		if n := w.indicators[name]; n > 0 {
			snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: n})
		}
	}
	return snap
}

func summarize(stage string, r *ring) (StageStats, bool) {
	samples := r.sorted()
	if len(samples) == 0 {
		return StageStats{}, false
	}
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	st := StageStats{
		Stage:   stage,
		Samples: len(samples),
		LastMS:  round2(r.last),
		AvgMS:   round2(sum / float64(len(samples))),
		P50MS:   round2(quantile(samples, 0.50)),
		P95MS:   round2(quantile(samples, 0.95)),
		P99MS:   round2(quantile(samples, 0.99)),
	}
	if target, ok := stageTargets[stage]; ok {
		limit := float64(target.Milliseconds())
		st.TargetP95MS = limit
		// samples is sorted: everything after the first slow one is slow too.
		idx, _ := slices.BinarySearch(samples, math.Nextafter(limit, math.Inf(1)))
		st.OverTarget = len(samples) - idx
		st.Breaching = st.P95MS > limit
	}
	return st, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// quantile interpolates linearly between the two nearest ranks.
func quantile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo, frac := math.Modf(pos)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[i]
	}
	return sorted[i] + (sorted[i+1]-sorted[i])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
