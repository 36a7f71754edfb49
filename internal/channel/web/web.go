// Package web implements the synchronous HTTP chat channel: a caller POSTs a
// question and the handler blocks until the gateway produces (or times out
// waiting for) a reply.
package web

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/config"
	"github.com/suppgw/gateway/internal/localization"
	"github.com/suppgw/gateway/internal/pkg/logs"
)

const responseTimeout = 5 * time.Minute

var _ channel.Channel = (*Web)(nil)
var _ channel.RouteProvider = (*Web)(nil)

// inboundRequest is the JSON body expected on the message endpoint.
type inboundRequest struct {
	UserID      string            `json:"user_id"`
	SessionID   string            `json:"session_id"`
	Content     string            `json:"content"`
	Lang        string            `json:"lang,omitempty"`
	ChatHistory []historyTurn     `json:"chat_history,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type historyTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// outboundResponse is the JSON body returned to the caller.
type outboundResponse struct {
	ID            string            `json:"id"`
	Answer        string            `json:"answer"`
	Sources       []channel.Source  `json:"sources,omitempty"`
	Confidence    *float64          `json:"confidence,omitempty"`
	RequiresHuman bool              `json:"requires_human"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// pendingReply is how the gateway's eventual SendMessage call hands the
// reply back to the HTTP handler still blocked on the request.
type pendingReply struct {
	ch      chan *channel.OutgoingMessage
	created time.Time
}

type Web struct {
	id      string
	config  Config
	chanCfg config.ChannelConfig
	handler func(ctx context.Context, msg *channel.IncomingMessage) error
	mu      sync.RWMutex

	pendingMu   sync.Mutex
	pending     map[string]*pendingReply
	messagePath string
}

func NewChannel(chanID string, chCfg *config.ChannelConfig) (channel.Channel, error) {
	cfg, err := ParseConfig(chCfg.Config)
	if err != nil {
		return nil, fmt.Errorf("parse web config: %w", err)
	}

	return &Web{
		id:          chanID,
		config:      *cfg,
		chanCfg:     *chCfg,
		pending:     make(map[string]*pendingReply),
		messagePath: fmt.Sprintf("/api/v1/web/%s/message", chanID),
	}, nil
}

func (w *Web) Routes() []channel.Route {
	return []channel.Route{
		{Method: "POST", Path: w.messagePath, Handler: w.handleMessage},
	}
}

func (w *Web) ID() string         { return w.id }
func (w *Web) Type() channel.Type { return channel.Web }

func (w *Web) Capabilities() channel.CapabilitySet {
	return channel.NewCapabilitySet(
		channel.CapReceiveMessages,
		channel.CapSendResponses,
		channel.CapTextMessages,
		channel.CapChatHistory,
	)
}

func (w *Web) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (w *Web) Stop(_ context.Context) error { return nil }

func (w *Web) HealthCheck(_ context.Context) channel.HealthStatus {
	return channel.HealthStatus{Healthy: true}
}

// SendMessage delivers the gateway's reply to the pending HTTP request
// identified by target (the request-scoped chat id). If the request has
// already timed out, the message is silently dropped.
func (w *Web) SendMessage(_ context.Context, target string, out *channel.OutgoingMessage) (bool, error) {
	w.pendingMu.Lock()
	pr, ok := w.pending[target]
	if ok {
		delete(w.pending, target)
	}
	w.pendingMu.Unlock()

	if !ok {
		return false, nil
	}

	select {
	case pr.ch <- out:
	default:
	}
	return true, nil
}

func (w *Web) GetDeliveryTarget(metadata map[string]string) (string, error) {
	target, ok := metadata["chat_id"]
	if !ok || target == "" {
		return "", errors.New("web: metadata missing chat_id")
	}
	return target, nil
}

func (w *Web) FormatEscalationMessage(lang, username, escalationID, supportHandle string) string {
	return localization.FormatEscalationMessage(string(channel.Web), lang, username, escalationID, supportHandle)
}

func (w *Web) RegisterMessageHandler(handler func(ctx context.Context, msg *channel.IncomingMessage) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	w.handler = handler
	return nil
}

// handleMessage is the Hertz handler backing the synchronous chat endpoint.
func (w *Web) handleMessage(ctx context.Context, c *app.RequestContext) {
	if w.config.APIKey != "" {
		auth := string(c.GetHeader("Authorization"))
		if auth != "Bearer "+w.config.APIKey {
			c.JSON(consts.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}

	var req inboundRequest
	if err := sonic.Unmarshal(c.GetRequest().Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Content == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	requestID := uuid.New().String()
	chatID := requestID

	metadata := req.Metadata
	if metadata == nil {
		metadata = make(map[string]string)
	}
	metadata["chat_id"] = chatID
	if req.Lang != "" {
		metadata["lang"] = req.Lang
	}

	msg := &channel.IncomingMessage{
		MessageID:       requestID,
		Channel:         channel.Web,
		Question:        req.Content,
		User:            channel.User{UserID: req.UserID, SessionID: req.SessionID},
		ChatHistory:     toChatHistory(req.ChatHistory),
		ChannelMetadata: metadata,
		Timestamp:       time.Now(),
	}

	pr := &pendingReply{ch: make(chan *channel.OutgoingMessage, 1), created: time.Now()}
	w.pendingMu.Lock()
	w.pending[chatID] = pr
	w.pendingMu.Unlock()

	defer func() {
		w.pendingMu.Lock()
		delete(w.pending, chatID)
		w.pendingMu.Unlock()
	}()

	w.mu.RLock()
	handler := w.handler
	w.mu.RUnlock()

	if handler == nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "no handler registered"})
		return
	}
	if err := handler(ctx, msg); err != nil {
		logs.CtxError(ctx, "[channel:web] error enqueuing message: %v", err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "failed to process message"})
		return
	}

	select {
	case out := <-pr.ch:
		resp := outboundResponse{
			ID:            requestID,
			Answer:        out.Answer,
			Sources:       out.Sources,
			Confidence:    out.Confidence,
			RequiresHuman: out.RequiresHuman,
			Metadata:      out.Metadata,
		}
		body, _ := sonic.Marshal(resp)
		c.SetStatusCode(consts.StatusOK)
		c.SetContentType("application/json")
		c.Response.SetBody(body)

	case <-time.After(responseTimeout):
		c.JSON(consts.StatusGatewayTimeout, map[string]string{"error": "response timeout"})

	case <-ctx.Done():
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "server shutting down"})
	}
}

func toChatHistory(turns []historyTurn) []channel.ChatTurn {
	if len(turns) == 0 {
		return nil
	}
	out := make([]channel.ChatTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, channel.ChatTurn{Role: channel.Role(t.Role), Content: t.Content})
	}
	return out
}
