// Package gateway implements the Channel Gateway & Hook Pipeline (C4): a
// sequence of pre-hooks run before an incoming message reaches the answer
// pipeline, and post-hooks run before an outgoing message is delivered.
// Either stage can short-circuit the pipeline with a GatewayError.
package gateway

import (
	"context"
	"sort"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/pkg/metrics"
)

// Priority bands control hook ordering within each stage. Hooks at the same
// priority run in registration order.
type Priority int

const (
	PriorityHigh   Priority = 100
	PriorityNormal Priority = 200
	PriorityLow    Priority = 300
)

// PreHook runs before the answer pipeline sees an incoming message. Return a
// non-nil *channel.GatewayError to short-circuit the pipeline and send that
// error back to the channel instead of an answer.
type PreHook interface {
	Name() string
	Priority() Priority
	Handle(ctx context.Context, msg *channel.IncomingMessage) *channel.GatewayError
}

// PostHook runs before an outgoing message is delivered. It may mutate the
// message in place (e.g. redact PII) or short-circuit with a GatewayError.
type PostHook interface {
	Name() string
	Priority() Priority
	Handle(ctx context.Context, in *channel.IncomingMessage, out *channel.OutgoingMessage) *channel.GatewayError
}

// Pipeline holds the registered hooks and runs them in priority order.
type Pipeline struct {
	pre  []PreHook
	post []PostHook
}

func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// RegisterPre adds a pre-hook. Hooks are re-sorted by priority (stable, so
// registration order breaks ties) on every registration.
func (p *Pipeline) RegisterPre(h PreHook) {
	p.pre = append(p.pre, h)
	sort.SliceStable(p.pre, func(i, j int) bool { return p.pre[i].Priority() < p.pre[j].Priority() })
}

func (p *Pipeline) RegisterPost(h PostHook) {
	p.post = append(p.post, h)
	sort.SliceStable(p.post, func(i, j int) bool { return p.post[i].Priority() < p.post[j].Priority() })
}

// RunPre executes every pre-hook in order, stopping at the first
// short-circuit.
func (p *Pipeline) RunPre(ctx context.Context, msg *channel.IncomingMessage) *channel.GatewayError {
	for _, h := range p.pre {
		metrics.HooksExecuted.WithLabelValues(h.Name(), "pre").Inc()
		if gwErr := h.Handle(ctx, msg); gwErr != nil {
			return gwErr
		}
	}
	return nil
}

// RunPost executes every post-hook in order, recording each one it runs onto
// out.Metadata's hooks_executed trail, stopping at the first short-circuit.
func (p *Pipeline) RunPost(ctx context.Context, in *channel.IncomingMessage, out *channel.OutgoingMessage) *channel.GatewayError {
	for _, h := range p.post {
		metrics.HooksExecuted.WithLabelValues(h.Name(), "post").Inc()
		if gwErr := h.Handle(ctx, in, out); gwErr != nil {
			return gwErr
		}
		out.RecordHook(h.Name())
	}
	return nil
}
