// Package dispatcher implements the Response Dispatcher (C6): it delivers an
// OutgoingMessage to its channel adapter unless the message is headed to
// escalation, and records the delivery in the Sent-Message Tracker (C2).
package dispatcher

import (
	"context"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/pkg/logs"
	"github.com/suppgw/gateway/internal/tracker"
)

// ChannelLookup resolves a channel id to its adapter, mirroring
// channel.Registry.Get.
type ChannelLookup func(id string) (channel.Channel, error)

type Dispatcher struct {
	Lookup  ChannelLookup
	Tracker *tracker.Tracker
}

func New(lookup ChannelLookup, tr *tracker.Tracker) *Dispatcher {
	return &Dispatcher{Lookup: lookup, Tracker: tr}
}

// Dispatch reports whether the message was (or will be, via escalation)
// handled. When out.RequiresHuman is set and an escalation id was stamped by
// the gateway's escalation hook, the adapter send is skipped entirely: C11
// delivers it once staff responds.
func (d *Dispatcher) Dispatch(ctx context.Context, in *channel.IncomingMessage, out *channel.OutgoingMessage) bool {
	if out.RequiresHuman {
		if _, escalated := out.Metadata["escalation_id"]; escalated {
			return true
		}
	}

	ch, err := d.Lookup(string(out.Channel))
	if err != nil {
		logs.CtxError(ctx, "[dispatcher] channel not found: %s: %v", out.Channel, err)
		return false
	}

	target, err := ch.GetDeliveryTarget(in.ChannelMetadata)
	if err != nil {
		logs.CtxError(ctx, "[dispatcher] delivery target: %v", err)
		return false
	}

	sent, err := ch.SendMessage(ctx, target, out)
	if err != nil || !sent {
		logs.CtxError(ctx, "[dispatcher] send failed for %s: %v", out.MessageID, err)
		return false
	}

	if d.Tracker != nil {
		d.Tracker.Track(string(out.Channel), out.MessageID, tracker.Record{
			MessageID:      out.MessageID,
			InReplyTo:      out.InReplyTo,
			Channel:        string(out.Channel),
			UserID:         out.User.UserID,
			Question:       in.Question,
			Answer:         out.Answer,
			Confidence:     out.Confidence,
			RequiresHuman:  out.RequiresHuman,
			RoutingAction:  out.Metadata["routing_action"],
			DeliveryTarget: target,
			SentAt:         out.Timestamp,
		})
	}

	return true
}
