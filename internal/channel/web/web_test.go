package web

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/config"
)

func newTestChannel(t *testing.T) *Web {
	t.Helper()
	ch, err := NewChannel("web-1", &config.ChannelConfig{Config: map[string]any{}})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	return ch.(*Web)
}

func TestWeb_Capabilities_NoPollConversations(t *testing.T) {
	w := newTestChannel(t)
	caps := w.Capabilities()
	if caps.Has(channel.CapPollConversations) {
		t.Fatal("web channel must not advertise POLL_CONVERSATIONS")
	}
	if !caps.Has(channel.CapSendResponses) || !caps.Has(channel.CapReceiveMessages) {
		t.Fatal("expected send/receive capabilities")
	}
}

func TestWeb_SendMessage_DropsWhenNoPendingRequest(t *testing.T) {
	w := newTestChannel(t)
	ok, err := w.SendMessage(context.Background(), "unknown-target", &channel.OutgoingMessage{Answer: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected false for unknown target")
	}
}

func TestWeb_SendMessage_DeliversToPendingRequest(t *testing.T) {
	w := newTestChannel(t)
	pr := &pendingReply{ch: make(chan *channel.OutgoingMessage, 1)}
	w.pendingMu.Lock()
	w.pending["chat-1"] = pr
	w.pendingMu.Unlock()

	ok, err := w.SendMessage(context.Background(), "chat-1", &channel.OutgoingMessage{Answer: "hello"})
	if err != nil || !ok {
		t.Fatalf("expected successful delivery, ok=%v err=%v", ok, err)
	}

	select {
	case out := <-pr.ch:
		if out.Answer != "hello" {
			t.Fatalf("unexpected answer: %q", out.Answer)
		}
	case <-time.After(time.Second):
		t.Fatal("expected reply on pending channel")
	}
}

func TestWeb_GetDeliveryTarget_RequiresChatID(t *testing.T) {
	w := newTestChannel(t)
	if _, err := w.GetDeliveryTarget(map[string]string{}); err == nil {
		t.Fatal("expected error for missing chat_id")
	}
	target, err := w.GetDeliveryTarget(map[string]string{"chat_id": "abc"})
	if err != nil || target != "abc" {
		t.Fatalf("expected abc, got %q err=%v", target, err)
	}
}

func TestWeb_FormatEscalationMessage_ContainsID(t *testing.T) {
	w := newTestChannel(t)
	msg := w.FormatEscalationMessage("en", "alice", "42", "support")
	if msg == "" {
		t.Fatal("expected non-empty escalation message")
	}
	if !strings.Contains(msg, "#42") {
		t.Fatalf("expected escalation id in message, got %q", msg)
	}
}

func TestWeb_RegisterMessageHandler_RejectsNil(t *testing.T) {
	w := newTestChannel(t)
	if err := w.RegisterMessageHandler(nil); err == nil {
		t.Fatal("expected error registering nil handler")
	}
}
