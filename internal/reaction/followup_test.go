package reaction

import (
	"context"
	"testing"
	"time"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/coordination"
)

type fakeAdapter struct {
	sent []*channel.OutgoingMessage
}

func (f *fakeAdapter) ID() string                        { return "web" }
func (f *fakeAdapter) Type() channel.Type                 { return channel.Web }
func (f *fakeAdapter) Capabilities() channel.CapabilitySet { return nil }
func (f *fakeAdapter) Start(context.Context) error        { return nil }
func (f *fakeAdapter) Stop(context.Context) error         { return nil }
func (f *fakeAdapter) HealthCheck(context.Context) channel.HealthStatus {
	return channel.HealthStatus{Healthy: true}
}
func (f *fakeAdapter) SendMessage(_ context.Context, _ string, out *channel.OutgoingMessage) (bool, error) {
	f.sent = append(f.sent, out)
	return true, nil
}
func (f *fakeAdapter) GetDeliveryTarget(map[string]string) (string, error) { return "t", nil }
func (f *fakeAdapter) FormatEscalationMessage(string, string, string, string) string { return "" }
func (f *fakeAdapter) RegisterMessageHandler(func(context.Context, *channel.IncomingMessage) error) error {
	return nil
}

func TestFollowupCoordinator_StartAndConsume(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()
	adapter := &fakeAdapter{}
	feedback := NewStore()

	fc := NewFollowupCoordinator(store, func(string) (channel.Channel, error) { return adapter, nil }, feedback, time.Minute)

	if err := fc.StartFollowup(context.Background(), "web", "u1", "m-1"); err != nil {
		t.Fatalf("start followup: %v", err)
	}
	if len(adapter.sent) != 1 {
		t.Fatalf("expected prompt sent, got %d messages", len(adapter.sent))
	}

	msg := &channel.IncomingMessage{Channel: channel.Web, User: channel.User{UserID: "u1"}, Question: "the answer was incomplete"}
	consumed, err := fc.ConsumeIfPending(context.Background(), msg)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !consumed {
		t.Fatal("expected pending follow-up to be consumed")
	}

	rec, ok := feedback.Get("m-1")
	if !ok || len(rec.Issues) == 0 {
		t.Fatalf("expected issues appended, got %+v", rec)
	}
	if len(adapter.sent) != 2 {
		t.Fatalf("expected acknowledgement sent, got %d messages", len(adapter.sent))
	}
}

func TestFollowupCoordinator_ConsumeIfPending_NoPendingReturnsFalse(t *testing.T) {
	store := coordination.NewMemoryStore()
	defer store.Close()
	fc := NewFollowupCoordinator(store, func(string) (channel.Channel, error) { return nil, nil }, NewStore(), time.Minute)

	msg := &channel.IncomingMessage{Channel: channel.Web, User: channel.User{UserID: "u-none"}, Question: "hi"}
	consumed, err := fc.ConsumeIfPending(context.Background(), msg)
	if err != nil || consumed {
		t.Fatalf("expected no pending follow-up: consumed=%v err=%v", consumed, err)
	}
}
