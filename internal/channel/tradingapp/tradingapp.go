// Package tradingapp implements the trading-app support chat channel: REST
// send plus either long-poll receive (exposing channel.Poller for the
// Polling Service) or a persistent WebSocket streaming receive path.
package tradingapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/config"
	"github.com/suppgw/gateway/internal/localization"
	"github.com/suppgw/gateway/internal/pkg/logs"
)

var (
	_ channel.Channel = (*TradingApp)(nil)
	_ channel.Poller  = (*TradingApp)(nil)
)

// conversationUpdate is one inbound message as returned by the trading
// app's GetUpdates-style REST endpoint or ws stream.
type conversationUpdate struct {
	UpdateID  int64  `json:"update_id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	Lang      string `json:"lang,omitempty"`
	Timestamp int64  `json:"ts"`
}

type getUpdatesResponse struct {
	Updates []conversationUpdate `json:"updates"`
}

type sendMessageRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type TradingApp struct {
	id      string
	config  Config
	handler func(ctx context.Context, msg *channel.IncomingMessage) error
	mu      sync.RWMutex

	http *http.Client

	offsetMu sync.Mutex
	offset   int64

	wsConn *websocket.Conn
}

func NewChannel(chanID string, chCfg *config.ChannelConfig) (channel.Channel, error) {
	cfg, err := ParseConfig(chCfg.Config)
	if err != nil {
		return nil, fmt.Errorf("parse trading-app config: %w", err)
	}
	return &TradingApp{
		id:     chanID,
		config: *cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (t *TradingApp) ID() string         { return t.id }
func (t *TradingApp) Type() channel.Type { return channel.TradingApp }

func (t *TradingApp) Capabilities() channel.CapabilitySet {
	caps := []channel.Capability{
		channel.CapReceiveMessages,
		channel.CapSendResponses,
		channel.CapTextMessages,
	}
	if t.config.Mode == "ws" {
		caps = append(caps, channel.CapPersistentConn)
	} else {
		caps = append(caps, channel.CapPollConversations)
	}
	return channel.NewCapabilitySet(caps...)
}

// Start blocks until ctx is canceled. In ws mode it owns the streaming
// receive loop; in poll mode messages only arrive via PollConversations
// (driven externally by the Polling Service), so Start just waits.
func (t *TradingApp) Start(ctx context.Context) error {
	if t.config.Mode != "ws" {
		<-ctx.Done()
		return nil
	}

	conn, _, err := websocket.Dial(ctx, t.config.WSEndpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + t.config.APIKey}},
	})
	if err != nil {
		return fmt.Errorf("trading-app: dial ws: %w", err)
	}
	t.wsConn = conn
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("trading-app: read ws update: %w", err)
		}

		var upd conversationUpdate
		if err := json.Unmarshal(data, &upd); err != nil {
			logs.CtxWarn(ctx, "[channel:tradingapp] invalid ws update payload: %v", err)
			continue
		}
		t.dispatch(ctx, upd)
	}
}

func (t *TradingApp) Stop(_ context.Context) error {
	if t.wsConn != nil {
		return t.wsConn.Close(websocket.StatusNormalClosure, "stop")
	}
	return nil
}

func (t *TradingApp) HealthCheck(_ context.Context) channel.HealthStatus {
	if t.config.Mode == "ws" {
		return channel.HealthStatus{Healthy: t.wsConn != nil}
	}
	return channel.HealthStatus{Healthy: true}
}

// PollConversations fetches new updates since the last offset. Only
// meaningful in poll mode; the Polling Service skips adapters that don't
// implement channel.Poller, but a ws-mode adapter still implements it
// harmlessly (it returns no updates, since they've already been dispatched
// by the streaming path).
func (t *TradingApp) PollConversations(ctx context.Context) ([]*channel.IncomingMessage, error) {
	if t.config.Mode != "poll" {
		return nil, nil
	}

	t.offsetMu.Lock()
	offset := t.offset
	t.offsetMu.Unlock()

	url := fmt.Sprintf("%s/updates?offset=%d&limit=%d", t.config.APIBaseURL, offset, t.config.PollLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.config.APIKey)

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trading-app: get updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("trading-app: get updates failed: status=%d", resp.StatusCode)
	}

	var body getUpdatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("trading-app: decode updates: %w", err)
	}

	msgs := make([]*channel.IncomingMessage, 0, len(body.Updates))
	for _, upd := range body.Updates {
		msgs = append(msgs, t.toIncoming(upd))
		if upd.UpdateID >= offset {
			offset = upd.UpdateID + 1
		}
	}

	t.offsetMu.Lock()
	t.offset = offset
	t.offsetMu.Unlock()

	return msgs, nil
}

func (t *TradingApp) SendMessage(ctx context.Context, target string, out *channel.OutgoingMessage) (bool, error) {
	body, err := json.Marshal(sendMessageRequest{SessionID: target, Text: out.Answer})
	if err != nil {
		return false, fmt.Errorf("trading-app: marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.APIBaseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.config.APIKey)

	resp, err := t.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("trading-app: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("trading-app: send message failed: status=%d", resp.StatusCode)
	}
	return true, nil
}

func (t *TradingApp) GetDeliveryTarget(metadata map[string]string) (string, error) {
	session, ok := metadata["session_id"]
	if !ok || session == "" {
		return "", errors.New("trading-app: metadata missing session_id")
	}
	return session, nil
}

func (t *TradingApp) FormatEscalationMessage(lang, username, escalationID, supportHandle string) string {
	return localization.FormatEscalationMessage(string(channel.TradingApp), lang, username, escalationID, supportHandle)
}

func (t *TradingApp) RegisterMessageHandler(handler func(ctx context.Context, msg *channel.IncomingMessage) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	t.handler = handler
	return nil
}

func (t *TradingApp) toIncoming(upd conversationUpdate) *channel.IncomingMessage {
	metadata := map[string]string{"session_id": upd.SessionID}
	if upd.Lang != "" {
		metadata["lang"] = upd.Lang
	}
	return &channel.IncomingMessage{
		MessageID:       fmt.Sprintf("%d", upd.UpdateID),
		Channel:         channel.TradingApp,
		Question:        upd.Text,
		User:            channel.User{UserID: upd.UserID, SessionID: upd.SessionID},
		ChannelMetadata: metadata,
		Timestamp:       time.Now(),
	}
}

// dispatch feeds a streamed update to the registered handler directly (ws
// mode bypasses PollConversations entirely).
func (t *TradingApp) dispatch(ctx context.Context, upd conversationUpdate) {
	if upd.Text == "" {
		return
	}

	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()

	if handler == nil {
		return
	}
	if err := handler(ctx, t.toIncoming(upd)); err != nil {
		logs.CtxError(ctx, "[channel:tradingapp] error handling update: %v", err)
	}
}
