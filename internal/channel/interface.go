package channel

import (
	"context"
	"time"
)

// HealthStatus reports the liveness of one adapter, as returned by
// Registry.HealthCheckAll.
type HealthStatus struct {
	Healthy     bool
	Latency     time.Duration
	LastChecked time.Time
	Error       string
}

// Channel is the contract every adapter implements (spec §6, "Channel
// Adapter contract"). Implementations are responsible for a single named
// transport (web, federated chat, trading-app chat).
type Channel interface {
	ID() string
	Type() Type
	Capabilities() CapabilitySet

	// Start begins the channel's receive loop and should block until the
	// context is canceled or a fatal error occurs.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	HealthCheck(ctx context.Context) HealthStatus

	// SendMessage delivers an OutgoingMessage to target, a channel-specific
	// delivery handle produced by GetDeliveryTarget.
	SendMessage(ctx context.Context, target string, out *OutgoingMessage) (bool, error)

	// GetDeliveryTarget derives a delivery handle from channel metadata
	// carried on an IncomingMessage or a persisted Escalation.
	GetDeliveryTarget(metadata map[string]string) (string, error)

	// FormatEscalationMessage renders a localized escalation acknowledgement
	// (see internal/localization).
	FormatEscalationMessage(lang, username, escalationID, supportHandle string) string

	// RegisterMessageHandler registers the inbound callback invoked for
	// every normalized IncomingMessage this adapter receives.
	RegisterMessageHandler(handler func(ctx context.Context, msg *IncomingMessage) error) error
}

// Poller is implemented by adapters advertising CapPollConversations.
type Poller interface {
	PollConversations(ctx context.Context) ([]*IncomingMessage, error)
}

// Reactor is implemented by adapters that can react to a message natively
// (e.g. add an emoji) and is optional.
type Reactor interface {
	ReactMessage(ctx context.Context, chatID, messageID, reaction string) error
}

// Route is one HTTP endpoint an adapter contributes to the shared Hertz
// server (e.g. a webhook receiver or the synchronous web-chat endpoint).
type Route struct {
	Method  string
	Path    string
	Handler any // app.HandlerFunc; typed any to avoid an import cycle on hertz from this package
}

// RouteProvider is implemented by adapters that own HTTP endpoints.
type RouteProvider interface {
	Routes() []Route
}
