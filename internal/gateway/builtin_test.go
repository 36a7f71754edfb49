package gateway

import (
	"context"
	"testing"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/config"
)

func TestAIGenerationPreHook_DisabledReturnsServiceUnavailable(t *testing.T) {
	h := &AIGenerationPreHook{
		Lookup: func(channel.Type) (config.ChannelConfig, bool) {
			return config.ChannelConfig{AIGeneration: false}, true
		},
	}

	err := h.Handle(context.Background(), &channel.IncomingMessage{Channel: channel.Web})
	if err == nil {
		t.Fatal("expected a short-circuit error")
	}
	if err.Code != channel.ErrServiceUnavailable {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", err.Code)
	}
}

func TestAutoResponsePostHook_DisabledQueuesMedium(t *testing.T) {
	h := &AutoResponsePostHook{
		Lookup: func(channel.Type) (config.ChannelConfig, bool) {
			return config.ChannelConfig{AutoResponse: false}, true
		},
	}

	out := &channel.OutgoingMessage{Channel: channel.Web, Metadata: map[string]string{"routing_action": "auto_send"}}
	if err := h.Handle(context.Background(), &channel.IncomingMessage{Channel: channel.Web}, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.RequiresHuman {
		t.Fatal("expected requires_human to be set")
	}
	if out.Metadata["routing_action"] != string(channel.RoutingQueueMedium) {
		t.Fatalf("expected routing_action queue_medium, got %v", out.Metadata["routing_action"])
	}
	if out.Metadata["routing_reason"] != "Channel auto-response disabled by admin policy." {
		t.Fatalf("unexpected routing_reason: %v", out.Metadata["routing_reason"])
	}
}

func TestLearningRoutingPostHook_StampsRoutingDecision(t *testing.T) {
	h := &LearningRoutingPostHook{
		Route: func(confidence float64) (bool, channel.Priority, channel.RoutingAction) {
			return true, channel.PriorityHigh, channel.RoutingNeedsHuman
		},
	}

	conf := 0.2
	in := &channel.IncomingMessage{Channel: channel.Web}
	out := &channel.OutgoingMessage{Channel: channel.Web, Confidence: &conf}

	if err := h.Handle(context.Background(), in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.RequiresHuman {
		t.Fatal("expected requires_human to be set")
	}
	if in.Priority != channel.PriorityHigh {
		t.Fatalf("expected incoming priority stamped, got %v", in.Priority)
	}
	if out.Metadata["routing_action"] != string(channel.RoutingNeedsHuman) {
		t.Fatalf("unexpected routing_action: %v", out.Metadata["routing_action"])
	}
}

type stubWeighter map[string]float64

func (w stubWeighter) Weight(sourceType string) float64 {
	if v, ok := w[sourceType]; ok {
		return v
	}
	return 1.0
}

func TestLearningRoutingPostHook_ScalesConfidenceBySourceWeight(t *testing.T) {
	var routedWith float64
	h := &LearningRoutingPostHook{
		Route: func(confidence float64) (bool, channel.Priority, channel.RoutingAction) {
			routedWith = confidence
			return false, channel.PriorityLow, channel.RoutingAutoSend
		},
		Weights: stubWeighter{"kb_article": 0.5},
	}

	conf := 0.9
	in := &channel.IncomingMessage{Channel: channel.Web}
	out := &channel.OutgoingMessage{
		Channel:    channel.Web,
		Confidence: &conf,
		Sources:    []channel.Source{{Category: "kb_article"}},
	}

	if err := h.Handle(context.Background(), in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if routedWith != 0.45 {
		t.Fatalf("expected scaled confidence 0.45, got %v", routedWith)
	}
	if *out.Confidence != 0.45 {
		t.Fatalf("expected out.Confidence updated to 0.45, got %v", *out.Confidence)
	}
}

func TestLearningRoutingPostHook_NoConfidenceIsNoop(t *testing.T) {
	h := &LearningRoutingPostHook{
		Route: func(float64) (bool, channel.Priority, channel.RoutingAction) {
			t.Fatal("Route should not be called without a confidence score")
			return false, "", ""
		},
	}

	in := &channel.IncomingMessage{Channel: channel.Web}
	out := &channel.OutgoingMessage{Channel: channel.Web}
	if err := h.Handle(context.Background(), in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.RequiresHuman {
		t.Fatal("expected requires_human to stay false")
	}
}

func TestEscalationPostHook_FormatsLocalizedNotice(t *testing.T) {
	created := &stubEscalationCreator{id: "esc-1"}
	h := &EscalationPostHook{
		Escalations: created,
		Channels: func(id string) (channel.Channel, error) {
			return &stubFormatterChannel{}, nil
		},
		Lookup: func(channel.Type) (config.ChannelConfig, bool) {
			return config.ChannelConfig{SupportHandle: "@support", DefaultLang: "en"}, true
		},
	}

	in := &channel.IncomingMessage{Channel: channel.Web, User: channel.User{UserID: "u1"}}
	out := &channel.OutgoingMessage{Channel: channel.Web, Answer: "ai draft", RequiresHuman: true}

	if err := h.Handle(context.Background(), in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Answer != "notice:esc-1:@support" {
		t.Fatalf("expected formatted notice, got %q", out.Answer)
	}
	if out.Metadata["escalation_id"] != "esc-1" {
		t.Fatalf("expected escalation_id stamped, got %v", out.Metadata)
	}
}

type stubEscalationCreator struct{ id string }

func (s *stubEscalationCreator) CreateFromOutgoing(context.Context, *channel.IncomingMessage, *channel.OutgoingMessage) (string, error) {
	return s.id, nil
}

type stubFormatterChannel struct{ stubChannel }

func (s *stubFormatterChannel) FormatEscalationMessage(_, _, escalationID, supportHandle string) string {
	return "notice:" + escalationID + ":" + supportHandle
}

// stubChannel satisfies channel.Channel with no-op methods so tests only
// need to override what they exercise.
type stubChannel struct{}

func (stubChannel) ID() string                        { return "stub" }
func (stubChannel) Type() channel.Type                 { return channel.Web }
func (stubChannel) Capabilities() channel.CapabilitySet { return channel.NewCapabilitySet() }
func (stubChannel) Start(context.Context) error        { return nil }
func (stubChannel) Stop(context.Context) error         { return nil }
func (stubChannel) HealthCheck(context.Context) channel.HealthStatus {
	return channel.HealthStatus{Healthy: true}
}
func (stubChannel) SendMessage(context.Context, string, *channel.OutgoingMessage) (bool, error) {
	return true, nil
}
func (stubChannel) GetDeliveryTarget(map[string]string) (string, error) { return "", nil }
func (stubChannel) FormatEscalationMessage(_, _, _, _ string) string    { return "" }
func (stubChannel) RegisterMessageHandler(func(context.Context, *channel.IncomingMessage) error) error {
	return nil
}
