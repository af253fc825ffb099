package engine

import (
	"sync"
	"time"
)

// qualitySample is one completed trade's expected-versus-realized pair.
type qualitySample struct {
	expected float64
	realized float64
	at       time.Time
}

// QualityWindow is a bounded, time-ordered window of recent expected and
// realized profit rates. It feeds the dynamic minimum-profit adjustment:
// when fills consistently realize less than the evaluated books promised,
// the effective threshold is raised to compensate for slippage.
type QualityWindow struct {
	maxCount int
	maxAge   time.Duration

	mu      sync.Mutex
	samples []qualitySample
}

// NewQualityWindow builds a window holding at most maxCount samples no older
// than maxAge. A maxAge of zero disables age eviction.
func NewQualityWindow(maxCount int, maxAge time.Duration) *QualityWindow {
	if maxCount < 1 {
		maxCount = 1
	}
	return &QualityWindow{maxCount: maxCount, maxAge: maxAge}
}

// Record appends one completed trade's expected and realized profit rates,
// evicting the oldest entries past the count bound.
func (w *QualityWindow) Record(expected, realized float64, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, qualitySample{expected: expected, realized: realized, at: at})
	if len(w.samples) > w.maxCount {
		w.samples = w.samples[len(w.samples)-w.maxCount:]
	}
}

// evictOldLocked drops samples older than maxAge relative to now.
func (w *QualityWindow) evictOldLocked(now time.Time) {
	if w.maxAge <= 0 {
		return
	}
	cut := 0
	for cut < len(w.samples) && now.Sub(w.samples[cut].at) > w.maxAge {
		cut++
	}
	w.samples = w.samples[cut:]
}

// AdjustedMinProfitRate raises baseline by the window's average realized
// shortfall. The correction is multiplicative and clamped to
// [baseline, baseline*maxFactor]; an empty window (or one whose trades
// overperform) returns baseline unchanged.
func (w *QualityWindow) AdjustedMinProfitRate(baseline, maxFactor float64, now time.Time) float64 {
	if maxFactor < 1 {
		maxFactor = 1
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictOldLocked(now)
	if len(w.samples) == 0 {
		return baseline
	}

	var shortfallSum float64
	var n int
	for _, s := range w.samples {
		if s.expected <= 0 {
			continue
		}
		shortfallSum += (s.expected - s.realized) / s.expected
		n++
	}
	if n == 0 {
		return baseline
	}

	shortfall := shortfallSum / float64(n)
	if shortfall <= 0 {
		return baseline
	}
	adjusted := baseline * (1 + shortfall)
	if limit := baseline * maxFactor; adjusted > limit {
		adjusted = limit
	}
	return adjusted
}

// QualityStats summarizes the window for status reports.
type QualityStats struct {
	Count       int     `json:"count"`
	AvgExpected float64 `json:"avg_expected"`
	AvgRealized float64 `json:"avg_realized"`
}

// Stats returns the window's current sample count and averages.
func (w *QualityWindow) Stats(now time.Time) QualityStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictOldLocked(now)
	if len(w.samples) == 0 {
		return QualityStats{}
	}
	var exp, real float64
	for _, s := range w.samples {
		exp += s.expected
		real += s.realized
	}
	n := float64(len(w.samples))
	return QualityStats{
		Count:       len(w.samples),
		AvgExpected: exp / n,
		AvgRealized: real / n,
	}
}
