package channel

import (
	"fmt"
	"time"
)

// User identifies the asker. SessionID/ChannelUserID/AuthToken are optional
// and channel-specific.
type User struct {
	UserID        string
	SessionID     string
	ChannelUserID string
	AuthToken     string
}

// ChatTurn is one entry of the optional chat_history passed to AnswerService.
type ChatTurn struct {
	Role    Role
	Content string
}

// IncomingMessage is the normalized inbound event every channel adapter
// produces. It is immutable after construction and consumed once by the
// orchestrator.
type IncomingMessage struct {
	MessageID       string
	Channel         Type
	Question        string
	User            User
	ChatHistory     []ChatTurn
	ChannelMetadata map[string]string
	Priority        Priority
	Timestamp       time.Time
}

// Source is one citation backing an AnswerService response.
type Source struct {
	DocumentID string
	Title      string
	URL        string
	Relevance  float64
	Category   string
}

// OutgoingMessage is the normalized response the gateway produces for one
// IncomingMessage.
type OutgoingMessage struct {
	MessageID      string
	InReplyTo      string
	Channel        Type
	Answer         string
	Sources        []Source
	Metadata       map[string]string
	Confidence     *float64
	RequiresHuman  bool
	User           User
	Timestamp      time.Time
}

// RecordHook appends a hook name to metadata.hooks_executed (comma
// joined, per the teacher's plain-string-metadata convention).
func (o *OutgoingMessage) RecordHook(name string) {
	if o.Metadata == nil {
		o.Metadata = make(map[string]string)
	}
	if existing, ok := o.Metadata["hooks_executed"]; ok && existing != "" {
		o.Metadata["hooks_executed"] = existing + "," + name
	} else {
		o.Metadata["hooks_executed"] = name
	}
}

// GatewayError is the single error type returned across the pipeline.
type GatewayError struct {
	Code        ErrorCode
	Message     string
	Recoverable bool
	Details     map[string]string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewGatewayError(code ErrorCode, message string, recoverable bool) *GatewayError {
	return &GatewayError{Code: code, Message: message, Recoverable: recoverable}
}
