package tradingapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/config"
)

func newTestChannel(t *testing.T, baseURL string) *TradingApp {
	t.Helper()
	ch, err := NewChannel("ta-1", &config.ChannelConfig{Config: map[string]any{
		"api_base_url": baseURL,
		"api_key":      "key",
	}})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	return ch.(*TradingApp)
}

func TestTradingApp_Capabilities_PollMode(t *testing.T) {
	ta := newTestChannel(t, "https://example.com")
	caps := ta.Capabilities()
	if !caps.Has(channel.CapPollConversations) {
		t.Fatal("expected poll mode to advertise POLL_CONVERSATIONS")
	}
	if caps.Has(channel.CapPersistentConn) {
		t.Fatal("poll mode should not advertise PERSISTENT_CONNECTION")
	}
}

func TestTradingApp_PollConversations_AdvancesOffset(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		offset := r.URL.Query().Get("offset")
		var resp getUpdatesResponse
		if offset == "0" {
			resp.Updates = []conversationUpdate{{UpdateID: 1, SessionID: "s1", UserID: "u1", Text: "hi"}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	ta := newTestChannel(t, srv.URL)

	msgs, err := ta.PollConversations(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Question != "hi" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	msgs2, err := ta.PollConversations(context.Background())
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(msgs2) != 0 {
		t.Fatalf("expected no new messages on second poll, got %+v", msgs2)
	}
}

func TestTradingApp_SendMessage_PostsToSendEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ta := newTestChannel(t, srv.URL)
	ok, err := ta.SendMessage(context.Background(), "s1", &channel.OutgoingMessage{Answer: "hello"})
	if err != nil || !ok {
		t.Fatalf("expected success, ok=%v err=%v", ok, err)
	}
	if gotPath != "/send" {
		t.Fatalf("expected /send, got %q", gotPath)
	}
}

func TestTradingApp_GetDeliveryTarget_RequiresSessionID(t *testing.T) {
	ta := newTestChannel(t, "https://example.com")
	if _, err := ta.GetDeliveryTarget(map[string]string{}); err == nil {
		t.Fatal("expected error for missing session_id")
	}
}

func TestTradingApp_Dispatch_InvokesHandler(t *testing.T) {
	ta := newTestChannel(t, "https://example.com")
	var got *channel.IncomingMessage
	_ = ta.RegisterMessageHandler(func(_ context.Context, msg *channel.IncomingMessage) error {
		got = msg
		return nil
	})

	ta.dispatch(context.Background(), conversationUpdate{UpdateID: 5, SessionID: "s2", UserID: "u2", Text: "hey"})
	if got == nil || got.Question != "hey" {
		t.Fatalf("expected dispatched message, got %+v", got)
	}
}
