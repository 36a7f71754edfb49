package learning

import (
	"math"
	"sync"
)

const (
	minWeight = 0.75
	maxWeight = 1.25

	quadrantLearningRate  = 0.02
	quadrantCircuitBreak  = 0.10
	wilsonConfidenceZ     = 1.96 // 95% confidence
	wilsonMinSamples      = 10
	wilsonColdStartRate   = 0.1
	wilsonColdStartCutoff = 100
	wilsonWarmRate        = 0.3
)

// SourceWeightManager maintains a per-source-type weight in [0.75, 1.25]
// that the learning routing hook uses to scale an answer's confidence by the
// historical reliability of its cited sources.
type SourceWeightManager struct {
	mu      sync.Mutex
	weights map[string]float64
}

func NewSourceWeightManager() *SourceWeightManager {
	return &SourceWeightManager{weights: make(map[string]float64)}
}

// Weight returns the current weight for a source type, defaulting to 1.0
// (neutral) if never adjusted.
func (m *SourceWeightManager) Weight(sourceType string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.weights[sourceType]; ok {
		return w
	}
	return 1.0
}

// ApplyQuadrantSignal nudges a source type's weight from a single staff
// review's quadrant (A/B/C/D), rate-limited and circuit-broken against large
// single-step swings.
func (m *SourceWeightManager) ApplyQuadrantSignal(sourceType string, approved, helpful bool) {
	delta := quadrantDelta(approved, helpful) * quadrantLearningRate
	if math.Abs(delta) > quadrantCircuitBreak {
		return
	}
	m.adjust(sourceType, delta)
}

func quadrantDelta(approved, helpful bool) float64 {
	switch {
	case approved && helpful:
		return 0.05
	case approved && !helpful:
		return -0.10
	case !approved && helpful:
		return 0
	default:
		return -0.10
	}
}

// ApplyBatchFeedback recomputes a source type's weight from a time-windowed
// positive/total tally using the Wilson score lower bound, mapped into
// [0.75, 1.25]. Source types with fewer than 10 samples are skipped.
func (m *SourceWeightManager) ApplyBatchFeedback(sourceType string, positive, total int) {
	if total < wilsonMinSamples {
		return
	}

	lowerBound := wilsonScoreLowerBound(float64(positive), float64(total), wilsonConfidenceZ)
	target := minWeight + lowerBound*(maxWeight-minWeight)

	rate := wilsonWarmRate
	if total <= wilsonColdStartCutoff {
		rate = wilsonColdStartRate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.weights[sourceType]
	if !ok {
		current = 1.0
	}
	next := current + rate*(target-current)
	m.weights[sourceType] = clamp(next, minWeight, maxWeight)
}

func (m *SourceWeightManager) adjust(sourceType string, delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.weights[sourceType]
	if !ok {
		current = 1.0
	}
	m.weights[sourceType] = clamp(current+delta, minWeight, maxWeight)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// wilsonScoreLowerBound computes the lower bound of the Wilson score
// confidence interval for a binomial proportion positive/total at the given
// z (1.96 for 95%).
func wilsonScoreLowerBound(positive, total, z float64) float64 {
	if total == 0 {
		return 0
	}
	phat := positive / total
	z2 := z * z
	denom := 1 + z2/total
	center := phat + z2/(2*total)
	margin := z * math.Sqrt(phat*(1-phat)/total+z2/(4*total*total))
	return (center - margin) / denom
}
