package gateway

import (
	"context"
	"regexp"
	"time"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/config"
	"github.com/suppgw/gateway/internal/pkg/metrics"
)

// ChannelPolicyFunc reads per-channel config at call time, never cached,
// matching the teacher's "policy read fresh each call" config idiom.
type ChannelPolicyFunc func(channelID channel.Type) (config.ChannelConfig, bool)

// AIGenerationPreHook short-circuits the pipeline when the message's channel
// has AI generation disabled (C12's AIGenerationPolicy).
type AIGenerationPreHook struct {
	Lookup ChannelPolicyFunc
}

func (h *AIGenerationPreHook) Name() string       { return "ai_generation_policy" }
func (h *AIGenerationPreHook) Priority() Priority { return PriorityHigh }

func (h *AIGenerationPreHook) Handle(_ context.Context, msg *channel.IncomingMessage) *channel.GatewayError {
	cfg, ok := h.Lookup(msg.Channel)
	if !ok {
		return channel.NewGatewayError(channel.ErrChannelUnavailable, "channel not configured: "+msg.Channel, false)
	}
	if !cfg.AIGeneration {
		return channel.NewGatewayError(channel.ErrServiceUnavailable, "AI generation disabled for channel", false)
	}
	return nil
}

// RoutingFunc maps a confidence score to a routing decision, backed by the
// Learning Engine (C13). Declared here rather than importing the learning
// package directly, to keep the hook pipeline free of a dependency on how
// thresholds are computed.
type RoutingFunc func(confidence float64) (requiresHuman bool, priority channel.Priority, action channel.RoutingAction)

// SourceWeighter is the subset of the Source Weight Manager (C14) the
// routing hook consults to favor historically reliable sources before the
// Learning Engine sees the confidence score.
type SourceWeighter interface {
	Weight(sourceType string) float64
}

// LearningRoutingPostHook stamps requires_human, the incoming message's
// priority, and metadata.routing_action from the answer's confidence,
// before any channel-policy or escalation hook runs. Runs at PriorityHigh so
// those later hooks observe its decision.
type LearningRoutingPostHook struct {
	Route   RoutingFunc
	Weights SourceWeighter // optional
}

func (h *LearningRoutingPostHook) Name() string       { return "learning_routing" }
func (h *LearningRoutingPostHook) Priority() Priority { return PriorityHigh }

func (h *LearningRoutingPostHook) Handle(_ context.Context, in *channel.IncomingMessage, out *channel.OutgoingMessage) *channel.GatewayError {
	if h.Route == nil || out.Confidence == nil {
		return nil
	}

	confidence := *out.Confidence
	if h.Weights != nil && len(out.Sources) > 0 {
		confidence = weightedConfidence(confidence, out.Sources, h.Weights)
		out.Confidence = &confidence
	}

	requiresHuman, priority, action := h.Route(confidence)
	in.Priority = priority
	out.RequiresHuman = requiresHuman

	if out.Metadata == nil {
		out.Metadata = make(map[string]string, 1)
	}
	out.Metadata["routing_action"] = string(action)
	return nil
}

// weightedConfidence scales confidence by the average reliability weight of
// the answer's cited sources, clamped back into [0, 1].
func weightedConfidence(confidence float64, sources []channel.Source, weights SourceWeighter) float64 {
	var sum float64
	for _, src := range sources {
		sum += weights.Weight(src.Category)
	}
	avg := sum / float64(len(sources))

	scaled := confidence * avg
	if scaled < 0 {
		return 0
	}
	if scaled > 1 {
		return 1
	}
	return scaled
}

// piiPatterns are deliberately conservative: each catches a well-formed
// instance of its class without trying to be a full PII detector.
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                       // SSN
	regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),                      // credit card
	regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[a-zA-Z]{2,}\b`),           // email
	regexp.MustCompile(`\b\+?\d{1,2}[\s.-]?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`), // phone
}

const piiRedaction = "[redacted]"

// PIIFilterPostHook redacts likely PII in the outgoing answer before
// delivery. It never blocks the pipeline; it only mutates out.Answer.
type PIIFilterPostHook struct{}

func (h *PIIFilterPostHook) Name() string       { return "pii_filter" }
func (h *PIIFilterPostHook) Priority() Priority { return PriorityHigh }

func (h *PIIFilterPostHook) Handle(_ context.Context, _ *channel.IncomingMessage, out *channel.OutgoingMessage) *channel.GatewayError {
	redacted := out.Answer
	for _, pattern := range piiPatterns {
		redacted = pattern.ReplaceAllString(redacted, piiRedaction)
	}
	out.Answer = redacted
	return nil
}

// AutoResponsePostHook marks the message as requiring human review when the
// channel has auto-response disabled, overriding whatever the Learning
// Engine decided.
type AutoResponsePostHook struct {
	Lookup ChannelPolicyFunc
}

func (h *AutoResponsePostHook) Name() string       { return "auto_response_policy" }
func (h *AutoResponsePostHook) Priority() Priority { return PriorityNormal }

func (h *AutoResponsePostHook) Handle(_ context.Context, _ *channel.IncomingMessage, out *channel.OutgoingMessage) *channel.GatewayError {
	cfg, ok := h.Lookup(out.Channel)
	if ok && !cfg.AutoResponse {
		out.RequiresHuman = true
		if out.Metadata == nil {
			out.Metadata = make(map[string]string, 2)
		}
		out.Metadata["routing_action"] = string(channel.RoutingQueueMedium)
		out.Metadata["routing_reason"] = "Channel auto-response disabled by admin policy."
	}
	return nil
}

// MetricsPostHook records the outcome of the pipeline run to the process's
// Prometheus registry, plus an optional caller-supplied observer. It runs
// last (PriorityLow) so it observes the final state of out.
type MetricsPostHook struct {
	Observe func(channelID channel.Type, requiresHuman bool)
}

func (h *MetricsPostHook) Name() string       { return "metrics" }
func (h *MetricsPostHook) Priority() Priority { return PriorityLow }

func (h *MetricsPostHook) Handle(_ context.Context, in *channel.IncomingMessage, out *channel.OutgoingMessage) *channel.GatewayError {
	outcome := "auto_send"
	if out.RequiresHuman {
		outcome = "escalated"
	}
	metrics.MessagesProcessed.WithLabelValues(string(out.Channel), outcome).Inc()
	if !in.Timestamp.IsZero() {
		metrics.MessageLatency.WithLabelValues(string(out.Channel)).Observe(time.Since(in.Timestamp).Seconds())
	}

	if h.Observe != nil {
		h.Observe(out.Channel, out.RequiresHuman)
	}
	return nil
}
