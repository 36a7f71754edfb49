// Package delivery implements Response Delivery (C11): once staff answer an
// escalation, this delivers the answer back to the channel it came from, or
// marks it "not required" for poll-only channels that the user checks via
// the escalation HTTP surface instead.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/escalation"
	"github.com/suppgw/gateway/internal/pkg/logs"
	"github.com/suppgw/gateway/internal/pkg/utils"
)

type ChannelLookup func(id string) (channel.Channel, error)

type Service struct {
	Lookup      ChannelLookup
	MaxRetries  int
	RecordDelivery func(ctx context.Context, escalationID, status, deliveryErr string) error
}

func New(lookup ChannelLookup, maxRetries int, record func(ctx context.Context, escalationID, status, deliveryErr string) error) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{Lookup: lookup, MaxRetries: maxRetries, RecordDelivery: record}
}

var _ escalation.Deliverer = (*Service)(nil)

// Deliver satisfies escalation.Deliverer.
func (s *Service) Deliver(ctx context.Context, e *escalation.Escalation) error {
	ch, err := s.Lookup(string(e.Channel))
	if err != nil {
		return s.fail(ctx, e, fmt.Errorf("channel not found: %w", err))
	}

	if !ch.Capabilities().Has(channel.CapSendResponses) {
		return s.recordResult(ctx, e.ID, "not_required", "")
	}

	target, err := ch.GetDeliveryTarget(e.ChannelMeta)
	if err != nil {
		return s.fail(ctx, e, fmt.Errorf("delivery target: %w", err))
	}

	out := &channel.OutgoingMessage{
		MessageID: e.ID,
		InReplyTo: e.MessageID,
		Channel:   e.Channel,
		Answer:    e.StaffAnswer,
		Timestamp: time.Now(),
		User:      channel.User{UserID: e.UserID},
	}

	// Preserve AI provenance only if staff kept the draft verbatim
	// (whitespace-normalized comparison).
	if utils.NormalizeWhitespace(e.StaffAnswer) == utils.NormalizeWhitespace(e.AIDraft) {
		out.Sources = e.Sources
		out.Confidence = e.Confidence
	}

	sent, err := ch.SendMessage(ctx, target, out)
	if err != nil || !sent {
		return s.fail(ctx, e, fmt.Errorf("send failed: %w", err))
	}

	return s.recordResult(ctx, e.ID, "delivered", "")
}

func (s *Service) fail(ctx context.Context, e *escalation.Escalation, err error) error {
	logs.CtxError(ctx, "[delivery] escalation %s: %v", e.ID, err)
	if recErr := s.recordResult(ctx, e.ID, "failed", err.Error()); recErr != nil {
		logs.CtxError(ctx, "[delivery] record failure for %s: %v", e.ID, recErr)
	}
	return err
}

func (s *Service) recordResult(ctx context.Context, escalationID, status, deliveryErr string) error {
	if s.RecordDelivery == nil {
		return nil
	}
	return s.RecordDelivery(ctx, escalationID, status, deliveryErr)
}
