package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/escalation"
)

type fakeChannel struct {
	id   string
	caps channel.CapabilitySet
	sent *channel.OutgoingMessage
}

func (f *fakeChannel) ID() string                        { return f.id }
func (f *fakeChannel) Type() channel.Type                 { return channel.Web }
func (f *fakeChannel) Capabilities() channel.CapabilitySet { return f.caps }
func (f *fakeChannel) Start(context.Context) error        { return nil }
func (f *fakeChannel) Stop(context.Context) error         { return nil }
func (f *fakeChannel) HealthCheck(context.Context) channel.HealthStatus {
	return channel.HealthStatus{Healthy: true}
}
func (f *fakeChannel) SendMessage(_ context.Context, _ string, out *channel.OutgoingMessage) (bool, error) {
	f.sent = out
	return true, nil
}
func (f *fakeChannel) GetDeliveryTarget(map[string]string) (string, error) { return "target", nil }
func (f *fakeChannel) FormatEscalationMessage(string, string, string, string) string { return "" }
func (f *fakeChannel) RegisterMessageHandler(func(context.Context, *channel.IncomingMessage) error) error {
	return nil
}

func TestService_Deliver_PreservesSourcesWhenAnswerUnchanged(t *testing.T) {
	fc := &fakeChannel{id: "web", caps: channel.NewCapabilitySet(channel.CapSendResponses)}
	var recorded string

	svc := New(
		func(id string) (channel.Channel, error) { return fc, nil },
		3,
		func(_ context.Context, _, status, _ string) error { recorded = status; return nil },
	)

	conf := 0.8
	esc := &escalation.Escalation{
		ID: "e-1", Channel: channel.Web, AIDraft: "hello world", StaffAnswer: "hello   world",
		Confidence: &conf, Sources: []channel.Source{{Title: "doc"}},
	}

	if err := svc.Deliver(context.Background(), esc); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if recorded != "delivered" {
		t.Fatalf("expected delivered, got %s", recorded)
	}
	if fc.sent == nil || len(fc.sent.Sources) != 1 {
		t.Fatalf("expected sources preserved, got %+v", fc.sent)
	}
}

func TestService_Deliver_DropsSourcesWhenStaffRewrote(t *testing.T) {
	fc := &fakeChannel{id: "web", caps: channel.NewCapabilitySet(channel.CapSendResponses)}
	svc := New(func(id string) (channel.Channel, error) { return fc, nil }, 3, nil)

	conf := 0.8
	esc := &escalation.Escalation{
		ID: "e-2", Channel: channel.Web, AIDraft: "hello world", StaffAnswer: "completely different answer",
		Confidence: &conf, Sources: []channel.Source{{Title: "doc"}},
	}

	if err := svc.Deliver(context.Background(), esc); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if fc.sent == nil || fc.sent.Sources != nil || fc.sent.Confidence != nil {
		t.Fatalf("expected sources/confidence dropped, got %+v", fc.sent)
	}
}

func TestService_Deliver_NotRequiredForPollOnlyChannel(t *testing.T) {
	fc := &fakeChannel{id: "web", caps: channel.NewCapabilitySet(channel.CapPollConversations)}
	var recorded string
	svc := New(func(id string) (channel.Channel, error) { return fc, nil }, 3,
		func(_ context.Context, _, status, _ string) error { recorded = status; return nil })

	esc := &escalation.Escalation{ID: "e-3", Channel: channel.Web, AIDraft: "x", StaffAnswer: "y"}
	if err := svc.Deliver(context.Background(), esc); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if recorded != "not_required" {
		t.Fatalf("expected not_required, got %s", recorded)
	}
	if fc.sent != nil {
		t.Fatalf("expected no send for poll-only channel")
	}
}

func TestService_Deliver_FailsWhenChannelMissing(t *testing.T) {
	svc := New(func(id string) (channel.Channel, error) { return nil, errors.New("no such channel") }, 3, nil)
	esc := &escalation.Escalation{ID: "e-4", Channel: channel.Federated}
	if err := svc.Deliver(context.Background(), esc); err == nil {
		t.Fatal("expected error for missing channel")
	}
}
