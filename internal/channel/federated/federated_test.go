package federated

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/config"
)

func newTestChannel(t *testing.T) *Federated {
	t.Helper()
	ch, err := NewChannel("fed-1", &config.ChannelConfig{Config: map[string]any{
		"home_server":    "https://home.example",
		"access_token":   "tok",
		"mode":           "webhook",
		"signing_secret": "secret",
	}})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	return ch.(*Federated)
}

func TestFederated_Capabilities(t *testing.T) {
	f := newTestChannel(t)
	caps := f.Capabilities()
	if !caps.Has(channel.CapPersistentConn) || !caps.Has(channel.CapExtractFAQs) {
		t.Fatal("expected persistent-connection and extract-faqs capabilities")
	}
}

func TestFederated_VerifySignature(t *testing.T) {
	f := newTestChannel(t)
	body := []byte(`{"type":"message","body":"hi"}`)

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	if !f.verifySignature(body, sig) {
		t.Fatal("expected valid signature to verify")
	}
	if f.verifySignature(body, "wrong") {
		t.Fatal("expected invalid signature to fail verification")
	}
}

func TestFederated_Dispatch_InvokesHandler(t *testing.T) {
	f := newTestChannel(t)
	var got *channel.IncomingMessage
	_ = f.RegisterMessageHandler(func(_ context.Context, msg *channel.IncomingMessage) error {
		got = msg
		return nil
	})

	ev := roomEvent{Type: "message", EventID: "e1", RoomID: "r1", SenderID: "u1", Body: "hello"}
	f.dispatch(context.Background(), ev)

	if got == nil {
		t.Fatal("expected handler to be invoked")
	}
	if got.Question != "hello" || got.ChannelMetadata["room_id"] != "r1" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestFederated_Dispatch_IgnoresNonMessageEvents(t *testing.T) {
	f := newTestChannel(t)
	called := false
	_ = f.RegisterMessageHandler(func(context.Context, *channel.IncomingMessage) error {
		called = true
		return nil
	})

	f.dispatch(context.Background(), roomEvent{Type: "typing", RoomID: "r1"})
	if called {
		t.Fatal("expected typing event to be ignored")
	}
}

func TestFederated_GetDeliveryTarget_RequiresRoomID(t *testing.T) {
	f := newTestChannel(t)
	if _, err := f.GetDeliveryTarget(map[string]string{}); err == nil {
		t.Fatal("expected error for missing room_id")
	}
}

func TestFederated_RoomEvent_JSONRoundTrip(t *testing.T) {
	ev := roomEvent{Type: "message", EventID: "e2", RoomID: "r2", SenderID: "u2", Body: "hi", Timestamp: time.Now().Unix()}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out roomEvent
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Body != "hi" {
		t.Fatalf("unexpected roundtrip: %+v", out)
	}
}
