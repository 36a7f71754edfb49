// Package answer is the gateway's client for the external answer/RAG
// microservice: given a question and chat history it returns a draft answer,
// supporting sources, and a confidence score. The gateway never generates
// answers itself; this package is the only thing that talks to that service.
package answer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/suppgw/gateway/internal/channel"
)

// Request is what the gateway sends to the answer service for a single
// incoming question.
type Request struct {
	Channel     string             `json:"channel"`
	Question    string             `json:"question"`
	ChatHistory []channel.ChatTurn `json:"chat_history,omitempty"`
	UserID      string             `json:"user_id,omitempty"`
}

// Response is the draft the answer service proposes. Confidence is expected
// in [0, 1]; the Learning Engine (C13) turns it into a routing decision.
type Response struct {
	Answer     string            `json:"answer"`
	Sources    []channel.Source  `json:"sources,omitempty"`
	Confidence float64           `json:"confidence"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Service is the collaborator the Inbound Orchestrator calls once a message
// clears dedup/lock/hook checks and AI generation is enabled for its channel.
type Service interface {
	Answer(ctx context.Context, req Request) (*Response, error)
}

// HTTPClient is the default Service implementation: a thin JSON/HTTP client
// against a sidecar or microservice, following the provider clients' shape
// of a bounded http.Client plus a context-scoped request timeout.
type HTTPClient struct {
	baseURL string
	apiKey  string
	httpCli *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpCli: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{ForceAttemptHTTP2: true},
		},
	}
}

var _ Service = (*HTTPClient)(nil)

func (c *HTTPClient) Answer(ctx context.Context, req Request) (*Response, error) {
	body, err := sonic.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal answer request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/answer", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build answer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpCli.Do(httpReq)
	if err != nil {
		return nil, channel.NewGatewayError(channel.ErrRAGServiceError, fmt.Sprintf("answer service unreachable: %v", err), true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read answer response: %w", err)
	}

	if resp.StatusCode >= 400 {
		recoverable := resp.StatusCode >= 500
		return nil, channel.NewGatewayError(channel.ErrRAGServiceError,
			fmt.Sprintf("answer service returned %d: %s", resp.StatusCode, string(raw)), recoverable)
	}

	var out Response
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal answer response: %w", err)
	}
	return &out, nil
}
