// Package federated implements the federated chat channel adapter (the
// spec's "matrix-like" protocol): either a signed webhook receiver or a
// persistent WebSocket connection to the home server, feeding a small
// event-type dispatcher.
package federated

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/coder/websocket"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/config"
	"github.com/suppgw/gateway/internal/localization"
	"github.com/suppgw/gateway/internal/pkg/logs"
)

var _ channel.Channel = (*Federated)(nil)
var _ channel.RouteProvider = (*Federated)(nil)

// roomEvent is the normalized shape the home server sends, in both webhook
// and ws transport, for a new room message.
type roomEvent struct {
	Type      string `json:"type"`
	EventID   string `json:"event_id"`
	RoomID    string `json:"room_id"`
	ThreadID  string `json:"thread_id,omitempty"`
	SenderID  string `json:"sender_id"`
	Body      string `json:"body"`
	Lang      string `json:"lang,omitempty"`
	Timestamp int64  `json:"ts"`
}

type outboundEvent struct {
	RoomID string `json:"room_id"`
	Body   string `json:"body"`
}

type Federated struct {
	id      string
	config  Config
	handler func(ctx context.Context, msg *channel.IncomingMessage) error
	mu      sync.RWMutex

	http *http.Client

	webhookPath string // empty in ws mode
	wsConn      *websocket.Conn
}

func NewChannel(chanID string, chCfg *config.ChannelConfig) (channel.Channel, error) {
	cfg, err := ParseConfig(chCfg.Config)
	if err != nil {
		return nil, fmt.Errorf("parse federated config: %w", err)
	}

	f := &Federated{
		id:     chanID,
		config: *cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
	if cfg.Mode == "webhook" {
		f.webhookPath = fmt.Sprintf("/api/v1/federated/%s/event", chanID)
	}
	return f, nil
}

func (f *Federated) Routes() []channel.Route {
	if f.webhookPath == "" {
		return nil
	}
	return []channel.Route{
		{Method: "POST", Path: f.webhookPath, Handler: f.handleWebhook},
	}
}

func (f *Federated) ID() string         { return f.id }
func (f *Federated) Type() channel.Type { return channel.Federated }

func (f *Federated) Capabilities() channel.CapabilitySet {
	return channel.NewCapabilitySet(
		channel.CapReceiveMessages,
		channel.CapSendResponses,
		channel.CapPersistentConn,
		channel.CapTextMessages,
		channel.CapChatHistory,
		channel.CapExtractFAQs,
	)
}

// Start blocks until ctx is canceled. In ws mode it owns the persistent
// connection's read loop; in webhook mode the route is already registered
// and Start just waits.
func (f *Federated) Start(ctx context.Context) error {
	if f.config.Mode != "ws" {
		<-ctx.Done()
		return nil
	}

	conn, _, err := websocket.Dial(ctx, f.config.WSEndpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + f.config.AccessToken}},
	})
	if err != nil {
		return fmt.Errorf("federated: dial ws: %w", err)
	}
	f.wsConn = conn
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("federated: read ws event: %w", err)
		}

		var ev roomEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logs.CtxWarn(ctx, "[channel:federated] invalid ws event payload: %v", err)
			continue
		}
		f.dispatch(ctx, ev)
	}
}

func (f *Federated) Stop(_ context.Context) error {
	if f.wsConn != nil {
		return f.wsConn.Close(websocket.StatusNormalClosure, "stop")
	}
	return nil
}

func (f *Federated) HealthCheck(ctx context.Context) channel.HealthStatus {
	if f.config.Mode != "ws" {
		return channel.HealthStatus{Healthy: true}
	}
	return channel.HealthStatus{Healthy: f.wsConn != nil}
}

func (f *Federated) SendMessage(ctx context.Context, target string, out *channel.OutgoingMessage) (bool, error) {
	body, err := sonic.Marshal(outboundEvent{RoomID: target, Body: out.Answer})
	if err != nil {
		return false, fmt.Errorf("federated: marshal outbound event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.HomeServer+"/send", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.config.AccessToken)

	resp, err := f.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("federated: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("federated: send message failed: status=%d", resp.StatusCode)
	}
	return true, nil
}

func (f *Federated) GetDeliveryTarget(metadata map[string]string) (string, error) {
	room, ok := metadata["room_id"]
	if !ok || room == "" {
		return "", errors.New("federated: metadata missing room_id")
	}
	return room, nil
}

func (f *Federated) FormatEscalationMessage(lang, username, escalationID, supportHandle string) string {
	return localization.FormatEscalationMessage(string(channel.Federated), lang, username, escalationID, supportHandle)
}

func (f *Federated) RegisterMessageHandler(handler func(ctx context.Context, msg *channel.IncomingMessage) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	f.handler = handler
	return nil
}

// handleWebhook verifies the HMAC signature on an inbound webhook delivery
// and dispatches the decoded event.
func (f *Federated) handleWebhook(ctx context.Context, c *app.RequestContext) {
	body := c.GetRequest().Body()

	sig := string(c.GetHeader("X-Signature"))
	if !f.verifySignature(body, sig) {
		c.JSON(consts.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var ev roomEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid event body"})
		return
	}

	f.dispatch(ctx, ev)
	c.SetStatusCode(consts.StatusOK)
}

func (f *Federated) verifySignature(body []byte, sig string) bool {
	mac := hmac.New(sha256.New, []byte(f.config.SigningSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

// dispatch is the small event-type table driving inbound events: only
// "message" events become IncomingMessages today, other event types (e.g.
// presence, typing) are ignored.
func (f *Federated) dispatch(ctx context.Context, ev roomEvent) {
	if ev.Type != "" && ev.Type != "message" {
		logs.CtxDebug(ctx, "[channel:federated] ignoring event type: %s", ev.Type)
		return
	}
	if ev.Body == "" {
		return
	}

	metadata := map[string]string{"room_id": ev.RoomID}
	if ev.ThreadID != "" {
		metadata["thread_id"] = ev.ThreadID
	}
	if ev.Lang != "" {
		metadata["lang"] = ev.Lang
	}

	msg := &channel.IncomingMessage{
		MessageID:       ev.EventID,
		Channel:         channel.Federated,
		Question:        ev.Body,
		User:            channel.User{UserID: ev.SenderID},
		ChannelMetadata: metadata,
		Timestamp:       time.Now(),
	}

	f.mu.RLock()
	handler := f.handler
	f.mu.RUnlock()

	if handler == nil {
		return
	}
	if err := handler(ctx, msg); err != nil {
		logs.CtxError(ctx, "[channel:federated] error handling event: %v", err)
	}
}
