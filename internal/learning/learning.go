// Package learning implements the Learning Engine & Auto-Send Router (C13):
// it maps an answer's confidence score to a routing action using thresholds
// that adapt from accumulated staff review outcomes.
package learning

import (
	"context"
	"sync"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/escalation"
)

const (
	DefaultThresholdHigh = 0.95
	DefaultThresholdLow  = 0.70
	DefaultMinReviews    = 50
)

// Decision is one routing outcome plus the metadata the gateway stamps onto
// the outgoing message.
type Decision struct {
	Action            channel.RoutingAction
	SendImmediately   bool
	QueueForReview    bool
	Priority          channel.Priority
	Flag              string
}

// Review is one recorded staff decision, used to recompute thresholds.
type Review struct {
	QuestionID    string
	Rater         string
	Confidence    float64
	Approved      bool // edit_distance == 0
	Helpful       bool // user_rating == 1
	RoutingAction channel.RoutingAction
}

// quadrant weights: unhelpful approvals and unhelpful edits teach the most.
const (
	weightA = 1.0 // approved ∧ helpful
	weightB = 3.0 // approved ∧ ¬helpful
	weightC = 1.5 // ¬approved ∧ helpful
	weightD = 5.0 // ¬approved ∧ ¬helpful
)

// Engine holds the current thresholds and the review history used to
// recompute them. Safe for concurrent use.
type Engine struct {
	mu sync.RWMutex

	thresholdHigh float64
	thresholdLow  float64
	minReviews    int

	reviews []Review
	seen    map[string]struct{} // (question_id, rater) idempotency guard

	// Weights is optional: when set, every recorded staff decision also
	// nudges the weight of each cited source's category (C14).
	Weights *SourceWeightManager
}

func NewEngine(thresholdHigh, thresholdLow float64, minReviews int) *Engine {
	if thresholdHigh <= 0 {
		thresholdHigh = DefaultThresholdHigh
	}
	if thresholdLow <= 0 {
		thresholdLow = DefaultThresholdLow
	}
	if minReviews <= 0 {
		minReviews = DefaultMinReviews
	}
	return &Engine{
		thresholdHigh: thresholdHigh,
		thresholdLow:  thresholdLow,
		minReviews:    minReviews,
		seen:          make(map[string]struct{}),
	}
}

// Route resolves thresholds fresh on every call and maps confidence to a
// Decision.
func (e *Engine) Route(confidence float64) Decision {
	e.mu.RLock()
	high, low := e.thresholdHigh, e.thresholdLow
	e.mu.RUnlock()

	switch {
	case confidence >= high:
		return Decision{Action: channel.RoutingAutoSend, SendImmediately: true, Priority: channel.PriorityNormal}
	case confidence >= low:
		return Decision{Action: channel.RoutingQueueMedium, QueueForReview: true, Priority: channel.PriorityNormal}
	default:
		return Decision{
			Action:         channel.RoutingNeedsHuman,
			QueueForReview: true,
			Priority:       channel.PriorityHigh,
			Flag:           "needs_human_expertise",
		}
	}
}

// RecordReview appends a staff decision (idempotent per question_id+rater)
// and recomputes thresholds once at least minReviews have accumulated.
func (e *Engine) RecordReview(r Review) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := r.QuestionID + ":" + r.Rater
	if _, dup := e.seen[key]; dup {
		return
	}
	e.seen[key] = struct{}{}
	e.reviews = append(e.reviews, r)

	if len(e.reviews) >= e.minReviews {
		e.recomputeThresholds()
	}
}

// Thresholds returns the current (high, low) pair.
func (e *Engine) Thresholds() (high, low float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thresholdHigh, e.thresholdLow
}

// recomputeThresholds finds the highest confidence bucket whose weighted
// "good outcome" ratio still clears a quality bar, using the quadrant
// weights to penalize unhelpful approvals/edits far more than helpful ones.
// Caller holds e.mu.
func (e *Engine) recomputeThresholds() {
	const bucketSize = 0.05
	type bucket struct {
		goodWeight  float64
		totalWeight float64
	}
	buckets := make(map[int]*bucket)

	for _, r := range e.reviews {
		idx := int(r.Confidence / bucketSize)
		b, ok := buckets[idx]
		if !ok {
			b = &bucket{}
			buckets[idx] = b
		}

		weight := quadrantWeight(r.Approved, r.Helpful)
		b.totalWeight += weight
		if r.Approved && r.Helpful {
			b.goodWeight += weight
		}
	}

	// Highest confidence bucket that still clears 0.9 good-weight ratio
	// becomes threshold_high; 0.6 becomes threshold_low. Buckets with no
	// data are skipped; if nothing qualifies, defaults are kept.
	newHigh, newLow := e.thresholdHigh, e.thresholdLow
	for idx := 19; idx >= 0; idx-- {
		b, ok := buckets[idx]
		if !ok || b.totalWeight == 0 {
			continue
		}
		ratio := b.goodWeight / b.totalWeight
		bucketFloor := float64(idx) * bucketSize
		if ratio >= 0.9 {
			newHigh = bucketFloor
			break
		}
	}
	for idx := 19; idx >= 0; idx-- {
		b, ok := buckets[idx]
		if !ok || b.totalWeight == 0 {
			continue
		}
		ratio := b.goodWeight / b.totalWeight
		bucketFloor := float64(idx) * bucketSize
		if ratio >= 0.6 && bucketFloor < newHigh {
			newLow = bucketFloor
			break
		}
	}

	if newLow < newHigh {
		e.thresholdHigh = newHigh
		e.thresholdLow = newLow
	}
}

func quadrantWeight(approved, helpful bool) float64 {
	switch {
	case approved && helpful:
		return weightA
	case approved && !helpful:
		return weightB
	case !approved && helpful:
		return weightC
	default:
		return weightD
	}
}

var _ escalation.Learner = (*Engine)(nil)

// RecordStaffDecision satisfies escalation.Learner: it derives a Review from
// a responded Escalation (approved := edit_distance == 0, helpful :=
// staff_rating == 1) and feeds it to RecordReview. Escalations without a
// staff rating yet are skipped; rate_staff_answer triggers the real record.
func (e *Engine) RecordStaffDecision(_ context.Context, esc *escalation.Escalation) {
	if esc.StaffRating == nil || esc.EditDistance == nil {
		return
	}
	approved := *esc.EditDistance == 0
	helpful := *esc.StaffRating == 1

	e.RecordReview(Review{
		QuestionID: esc.MessageID,
		Rater:      esc.StaffID,
		Confidence: confidenceOf(esc),
		Approved:   approved,
		Helpful:    helpful,
	})

	if e.Weights != nil {
		for _, src := range esc.Sources {
			e.Weights.ApplyQuadrantSignal(src.Category, approved, helpful)
		}
	}
}

func confidenceOf(esc *escalation.Escalation) float64 {
	if esc.Confidence == nil {
		return 0
	}
	return *esc.Confidence
}
