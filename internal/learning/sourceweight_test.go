package learning

import "testing"

func TestSourceWeightManager_DefaultWeightIsNeutral(t *testing.T) {
	m := NewSourceWeightManager()
	if w := m.Weight("faq"); w != 1.0 {
		t.Fatalf("expected neutral default weight, got %v", w)
	}
}

func TestSourceWeightManager_ApplyQuadrantSignal_StaysInBounds(t *testing.T) {
	m := NewSourceWeightManager()
	for i := 0; i < 100; i++ {
		m.ApplyQuadrantSignal("wiki", false, false) // D: -0.10 * 0.02 each call
	}
	w := m.Weight("wiki")
	if w < minWeight || w > maxWeight {
		t.Fatalf("weight escaped bounds: %v", w)
	}
}

func TestSourceWeightManager_ApplyBatchFeedback_SkipsBelowMinSamples(t *testing.T) {
	m := NewSourceWeightManager()
	m.ApplyBatchFeedback("faq", 5, 5) // only 5 samples, below wilsonMinSamples
	if w := m.Weight("faq"); w != 1.0 {
		t.Fatalf("expected untouched weight below min samples, got %v", w)
	}
}

func TestSourceWeightManager_ApplyBatchFeedback_HighPositiveRatioIncreasesWeight(t *testing.T) {
	m := NewSourceWeightManager()
	m.ApplyBatchFeedback("faq", 95, 100)
	if w := m.Weight("faq"); w <= 1.0 {
		t.Fatalf("expected weight to increase above neutral, got %v", w)
	}
}

func TestWilsonScoreLowerBound_ConservativeForSmallSamples(t *testing.T) {
	small := wilsonScoreLowerBound(9, 10, wilsonConfidenceZ)
	large := wilsonScoreLowerBound(900, 1000, wilsonConfidenceZ)
	if small >= large {
		t.Fatalf("expected small-sample lower bound to be more conservative: small=%v large=%v", small, large)
	}
}
