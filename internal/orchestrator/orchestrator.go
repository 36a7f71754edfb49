// Package orchestrator implements the Inbound Orchestrator (C5): the
// idempotent wrapper around the gateway pipeline that makes inbound
// processing safe under concurrent push and poll delivery of the same
// event.
package orchestrator

import (
	"context"
	"time"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/coordination"
	"github.com/suppgw/gateway/internal/gateway"
	"github.com/suppgw/gateway/internal/pkg/logs"
)

// CanonicalInboundEvent is the dedup/lock identity derived from an
// IncomingMessage.
type CanonicalInboundEvent struct {
	ChannelID string
	EventID   string
	ThreadID  string
	UserID    string
}

// threadIDKeys are tried in order against ChannelMetadata to derive a
// thread id; the first present key wins.
var threadIDKeys = []string{"thread_id", "room_id", "conversation_id", "session_id"}

func canonicalize(msg *channel.IncomingMessage) CanonicalInboundEvent {
	threadID := msg.User.UserID
	for _, k := range threadIDKeys {
		if v, ok := msg.ChannelMetadata[k]; ok && v != "" {
			threadID = v
			break
		}
	}
	return CanonicalInboundEvent{
		ChannelID: string(msg.Channel),
		EventID:   msg.MessageID,
		ThreadID:  threadID,
		UserID:    msg.User.UserID,
	}
}

// FollowupCoordinator is the subset of the Feedback Follow-up Coordinator
// (C9) the orchestrator checks before running the regular pipeline.
type FollowupCoordinator interface {
	ConsumeIfPending(ctx context.Context, msg *channel.IncomingMessage) (bool, error)
}

// Dispatcher is the subset of the Response Dispatcher (C6) the orchestrator
// calls after the pipeline produces an OutgoingMessage.
type Dispatcher interface {
	Dispatch(ctx context.Context, in *channel.IncomingMessage, out *channel.OutgoingMessage) bool
}

type Config struct {
	DedupTTL       time.Duration
	ThreadLockTTL  time.Duration
	ThreadStateTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		DedupTTL:       3600 * time.Second,
		ThreadLockTTL:  15 * time.Second,
		ThreadStateTTL: 900 * time.Second,
	}
}

type Orchestrator struct {
	Store      coordination.Store
	Gateway    *gateway.Gateway
	Dispatcher Dispatcher
	Followup   FollowupCoordinator
	Config     Config
}

func New(store coordination.Store, gw *gateway.Gateway, dispatcher Dispatcher, followup FollowupCoordinator, cfg Config) *Orchestrator {
	return &Orchestrator{Store: store, Gateway: gw, Dispatcher: dispatcher, Followup: followup, Config: cfg}
}

// ProcessIncoming reports true iff a response was dispatched or a feedback
// follow-up was consumed.
func (o *Orchestrator) ProcessIncoming(ctx context.Context, msg *channel.IncomingMessage) bool {
	if o.Followup != nil {
		consumed, err := o.Followup.ConsumeIfPending(ctx, msg)
		if err != nil {
			logs.CtxWarn(ctx, "[orchestrator] follow-up check failed, falling back to regular pipeline: %v", err)
		} else if consumed {
			return true
		}
	}

	event := canonicalize(msg)

	dedupOK, err := o.reserveDedup(ctx, event)
	if err != nil {
		logs.CtxWarn(ctx, "[orchestrator] dedup store degraded, proceeding best-effort: %v", err)
	} else if !dedupOK {
		return false
	}

	token, lockOK, err := o.acquireLock(ctx, event)
	if err != nil {
		logs.CtxWarn(ctx, "[orchestrator] lock store degraded, proceeding best-effort: %v", err)
	} else if !lockOK {
		return false
	}
	defer func() {
		if token != "" {
			if _, err := o.Store.ReleaseLock(ctx, coordination.ThreadLockKey(event.ChannelID, event.ThreadID), token); err != nil {
				logs.CtxWarn(ctx, "[orchestrator] release lock failed: %v", err)
			}
		}
		o.updateThreadState(ctx, event)
	}()

	out, gwErr := o.Gateway.ProcessMessage(ctx, msg)
	if gwErr != nil {
		logs.CtxError(ctx, "[orchestrator] pipeline error for %s: %v", msg.MessageID, gwErr)
		return false
	}

	return o.Dispatcher.Dispatch(ctx, msg, out)
}

func (o *Orchestrator) reserveDedup(ctx context.Context, event CanonicalInboundEvent) (bool, error) {
	if o.Store == nil {
		return true, nil
	}
	ttl := o.Config.DedupTTL
	if ttl <= 0 {
		ttl = DefaultConfig().DedupTTL
	}
	return o.Store.ReserveDedup(ctx, coordination.DedupKey(event.ChannelID, event.EventID), ttl)
}

func (o *Orchestrator) acquireLock(ctx context.Context, event CanonicalInboundEvent) (string, bool, error) {
	if o.Store == nil {
		return "", true, nil
	}
	ttl := o.Config.ThreadLockTTL
	if ttl <= 0 {
		ttl = DefaultConfig().ThreadLockTTL
	}
	token, err := o.Store.AcquireLock(ctx, coordination.ThreadLockKey(event.ChannelID, event.ThreadID), ttl)
	if err != nil {
		return "", true, err // degrade to best-effort: proceed uncontended
	}
	if token == "" {
		return "", false, nil // genuinely contended
	}
	return token, true, nil
}

func (o *Orchestrator) updateThreadState(ctx context.Context, event CanonicalInboundEvent) {
	if o.Store == nil {
		return
	}
	ttl := o.Config.ThreadStateTTL
	if ttl <= 0 {
		ttl = DefaultConfig().ThreadStateTTL
	}
	state := coordination.ThreadState{LastEventID: event.EventID, UserID: event.UserID, Timestamp: time.Now()}
	if err := o.Store.SetThreadState(ctx, coordination.ThreadKey(event.ChannelID, event.ThreadID), state, ttl); err != nil {
		logs.CtxWarn(ctx, "[orchestrator] set thread state failed: %v", err)
	}
}
