package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/suppgw/gateway/internal/channel"
)

type countingProcessor struct {
	calls atomic.Int64
}

func (p *countingProcessor) ProcessIncoming(context.Context, *channel.IncomingMessage) bool {
	p.calls.Add(1)
	return true
}

type pollAdapter struct {
	fakeChannel
	fail bool
}

func (p *pollAdapter) PollConversations(context.Context) ([]*channel.IncomingMessage, error) {
	if p.fail {
		return nil, errors.New("boom")
	}
	return []*channel.IncomingMessage{{MessageID: "m-1"}}, nil
}

type fakeChannel struct{ id string }

func (f *fakeChannel) ID() string                         { return f.id }
func (f *fakeChannel) Type() channel.Type                  { return channel.Web }
func (f *fakeChannel) Capabilities() channel.CapabilitySet { return nil }
func (f *fakeChannel) Start(context.Context) error         { return nil }
func (f *fakeChannel) Stop(context.Context) error          { return nil }
func (f *fakeChannel) HealthCheck(context.Context) channel.HealthStatus {
	return channel.HealthStatus{Healthy: true}
}
func (f *fakeChannel) SendMessage(context.Context, string, *channel.OutgoingMessage) (bool, error) {
	return true, nil
}
func (f *fakeChannel) GetDeliveryTarget(map[string]string) (string, error) { return "t", nil }
func (f *fakeChannel) FormatEscalationMessage(string, string, string, string) string { return "" }
func (f *fakeChannel) RegisterMessageHandler(func(context.Context, *channel.IncomingMessage) error) error {
	return nil
}

func TestService_StartAll_FeedsPolledMessagesThroughProcessor(t *testing.T) {
	proc := &countingProcessor{}
	adapter := &pollAdapter{fakeChannel: fakeChannel{id: "web"}}

	svc := New(proc, nil, 10*time.Millisecond, 10*time.Millisecond)
	svc.StartAll(context.Background(), []channel.Channel{adapter})
	defer svc.StopAll()

	time.Sleep(50 * time.Millisecond)
	if proc.calls.Load() == 0 {
		t.Fatal("expected at least one poll tick to process a message")
	}
}

func TestService_StartAll_SkipsNonPollingAdapters(t *testing.T) {
	proc := &countingProcessor{}
	adapter := &fakeChannel{id: "web"} // does not implement channel.Poller

	svc := New(proc, nil, 10*time.Millisecond, 10*time.Millisecond)
	svc.StartAll(context.Background(), []channel.Channel{adapter})
	defer svc.StopAll()

	time.Sleep(30 * time.Millisecond)
	if proc.calls.Load() != 0 {
		t.Fatal("expected no processing for a non-polling adapter")
	}
}

func TestService_GenerationDisabled_SkipsTick(t *testing.T) {
	proc := &countingProcessor{}
	adapter := &pollAdapter{fakeChannel: fakeChannel{id: "web"}}

	svc := New(proc, func(channel.Type) bool { return false }, 10*time.Millisecond, 10*time.Millisecond)
	svc.StartAll(context.Background(), []channel.Channel{adapter})
	defer svc.StopAll()

	time.Sleep(30 * time.Millisecond)
	if proc.calls.Load() != 0 {
		t.Fatal("expected no processing while generation is disabled")
	}
}
