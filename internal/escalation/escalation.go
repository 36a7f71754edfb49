// Package escalation implements the Escalation Service (C10): the
// PENDING -> IN_REVIEW -> RESPONDED -> CLOSED state machine for messages
// that need a human answer, backed by SQLite so staff claims are atomic
// across gateway instances.
package escalation

import (
	"time"

	"github.com/suppgw/gateway/internal/channel"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusInReview  Status = "IN_REVIEW"
	StatusResponded Status = "RESPONDED"
	StatusClosed    Status = "CLOSED"
)

// Escalation is a message that needs (or needed) a human answer.
type Escalation struct {
	ID            string
	MessageID     string
	Channel       channel.Type
	ChannelMeta   map[string]string
	UserID        string
	Priority      channel.Priority
	Question      string
	AIDraft       string
	Sources       []channel.Source
	Confidence    *float64
	Status        Status
	StaffID       string
	ClaimedAt     *time.Time
	StaffAnswer   string
	RespondedAt   *time.Time
	EditDistance  *float64
	ClosedAt      *time.Time
	StaffRating   *int
	DeliveryStatus   string // "", not_required, delivered, failed
	DeliveryAttempts int
	DeliveryError    string
	LastDeliveryAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var (
	ErrAlreadyClaimed = channel.NewGatewayError(channel.ErrResourceExists, "escalation already claimed", false)
	ErrNotFound       = channel.NewGatewayError(channel.ErrResourceNotFound, "escalation not found", false)
)

// Filters narrows List/counts queries. Zero values mean "no filter".
type Filters struct {
	Status   Status
	Channel  channel.Type
	Priority channel.Priority
	StaffID  string
	Limit    int
	Offset   int
}
