package gateway

import (
	"context"

	"github.com/suppgw/gateway/internal/channel"
)

// EscalationCreator is the subset of the Escalation Service (C10) the
// pipeline depends on. Declared here, implemented there, to avoid a gateway
// <-> escalation import cycle.
type EscalationCreator interface {
	CreateFromOutgoing(ctx context.Context, in *channel.IncomingMessage, out *channel.OutgoingMessage) (escalationID string, err error)
}

// ChannelLookup resolves a channel id (here, a channel type string) to its
// adapter, mirroring channel.Registry.Get.
type ChannelLookup func(id string) (channel.Channel, error)

// EscalationPostHook creates an escalation record whenever the pipeline (or
// an earlier hook) has marked the outgoing message as requiring a human, and
// replaces the answer with a channel-appropriate localized escalation
// notice referencing the new escalation id.
type EscalationPostHook struct {
	Escalations EscalationCreator
	Channels    ChannelLookup
	Lookup      ChannelPolicyFunc
}

func (h *EscalationPostHook) Name() string       { return "escalation" }
func (h *EscalationPostHook) Priority() Priority { return PriorityNormal }

func (h *EscalationPostHook) Handle(ctx context.Context, in *channel.IncomingMessage, out *channel.OutgoingMessage) *channel.GatewayError {
	if !out.RequiresHuman {
		return nil
	}

	id, err := h.Escalations.CreateFromOutgoing(ctx, in, out)
	if err != nil {
		return channel.NewGatewayError(channel.ErrInternalError, "failed to create escalation: "+err.Error(), true)
	}

	if out.Metadata == nil {
		out.Metadata = make(map[string]string, 1)
	}
	out.Metadata["escalation_id"] = id

	out.Answer = h.escalationNotice(in, out, id)
	return nil
}

// escalationNotice asks the originating adapter to render its localized
// acknowledgement. If the adapter can't be resolved, the AI draft is left
// in place rather than failing the turn.
func (h *EscalationPostHook) escalationNotice(in *channel.IncomingMessage, out *channel.OutgoingMessage, escalationID string) string {
	if h.Channels == nil {
		return out.Answer
	}
	ch, err := h.Channels(string(out.Channel))
	if err != nil {
		return out.Answer
	}

	var supportHandle, lang string
	if h.Lookup != nil {
		if cfg, ok := h.Lookup(out.Channel); ok {
			supportHandle = cfg.SupportHandle
			lang = cfg.DefaultLang
		}
	}
	if fromMsg := in.ChannelMetadata["lang"]; fromMsg != "" {
		lang = fromMsg
	}

	return ch.FormatEscalationMessage(lang, in.User.UserID, escalationID, supportHandle)
}
