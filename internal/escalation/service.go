package escalation

import (
	"context"
	"fmt"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/pkg/metrics"
	"github.com/suppgw/gateway/internal/pkg/utils"
)

// Deliverer is the subset of the Response Delivery service (C11) the
// Escalation Service calls once a staff answer is recorded.
type Deliverer interface {
	Deliver(ctx context.Context, e *Escalation) error
}

// Learner is the subset of the Learning Engine (C13/C14) notified on every
// staff response so thresholds and source weights can adapt.
type Learner interface {
	RecordStaffDecision(ctx context.Context, e *Escalation)
}

type Service struct {
	store     *Store
	delivery  Deliverer
	learner   Learner
}

func NewService(store *Store, delivery Deliverer, learner Learner) *Service {
	return &Service{store: store, delivery: delivery, learner: learner}
}

// CreateFromOutgoing satisfies gateway.EscalationCreator: it builds an
// Escalation from the pipeline's in/out pair and persists it.
func (s *Service) CreateFromOutgoing(ctx context.Context, in *channel.IncomingMessage, out *channel.OutgoingMessage) (string, error) {
	e := &Escalation{
		MessageID:   in.MessageID,
		Channel:     in.Channel,
		ChannelMeta: in.ChannelMetadata,
		UserID:      in.User.UserID,
		Priority:    in.Priority,
		Question:    in.Question,
		AIDraft:     out.Answer,
		Sources:     out.Sources,
		Confidence:  out.Confidence,
	}
	created, err := s.store.CreateIfAbsent(ctx, e)
	if err != nil {
		return "", err
	}
	metrics.EscalationsCreated.WithLabelValues(string(in.Channel), out.Metadata["routing_action"]).Inc()
	return created.ID, nil
}

func (s *Service) Claim(ctx context.Context, id, staffID string) (*Escalation, error) {
	return s.store.Claim(ctx, id, staffID)
}

// Respond records the staff answer, computes edit_distance against the AI
// draft, transitions to RESPONDED, then fires delivery and learning.
func (s *Service) Respond(ctx context.Context, id, staffAnswer, staffID string) (*Escalation, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}

	editDistance := normalizedEditDistance(current.AIDraft, staffAnswer)

	e, err := s.store.Respond(ctx, id, staffAnswer, staffID, editDistance)
	if err != nil {
		return e, err
	}

	if s.delivery != nil {
		if derr := s.delivery.Deliver(ctx, e); derr != nil {
			_ = s.store.RecordDeliveryResult(ctx, e.ID, "failed", derr.Error())
		}
	}
	if s.learner != nil {
		s.learner.RecordStaffDecision(ctx, e)
	}

	return s.store.GetByID(ctx, id)
}

func (s *Service) Close(ctx context.Context, id string) (*Escalation, error) {
	return s.store.Close_(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filters) ([]*Escalation, error) {
	return s.store.List(ctx, f)
}

func (s *Service) CountsByStatus(ctx context.Context) (map[Status]int, error) {
	return s.store.CountsByStatus(ctx)
}

// RecordDelivery lets the delivery service (C11) report its outcome back
// onto the escalation row.
func (s *Service) RecordDelivery(ctx context.Context, escalationID, status, deliveryErr string) error {
	return s.store.RecordDeliveryResult(ctx, escalationID, status, deliveryErr)
}

func (s *Service) RateStaffAnswer(ctx context.Context, messageID string, rating int) error {
	if rating != 0 && rating != 1 {
		return fmt.Errorf("rating must be 0 or 1")
	}
	if err := s.store.RateStaffAnswer(ctx, messageID, rating); err != nil {
		return err
	}
	if s.learner != nil {
		if e, err := s.store.GetByMessageID(ctx, messageID); err == nil && e != nil {
			s.learner.RecordStaffDecision(ctx, e)
		}
	}
	return nil
}

func (s *Service) GetByMessageID(ctx context.Context, messageID string) (*Escalation, error) {
	return s.store.GetByMessageID(ctx, messageID)
}

// normalizedEditDistance returns the Levenshtein distance between the two
// whitespace-normalized strings, scaled to [0, 1] by the longer string's
// length. 0 means identical.
func normalizedEditDistance(a, b string) float64 {
	a = utils.NormalizeWhitespace(a)
	b = utils.NormalizeWhitespace(b)
	if a == b {
		return 0
	}

	dist := levenshtein(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	return float64(dist) / float64(maxLen)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
