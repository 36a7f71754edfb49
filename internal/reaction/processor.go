package reaction

import (
	"context"

	"github.com/suppgw/gateway/internal/tracker"
)

// Event is a normalized incoming reaction, already mapped from the
// channel-native emoji to positive/negative by the adapter's emoji map.
type Event struct {
	Channel           string
	ExternalMessageID string
	Reactor           string
	Rating            Rating
}

// Followup is the subset of the Feedback Follow-up Coordinator (C9) the
// processor invokes after a negative rating.
type Followup interface {
	StartFollowup(ctx context.Context, channelID, userID, messageID string) error
}

type Processor struct {
	Tracker  *tracker.Tracker
	Feedback *Store
	Followup Followup // optional
}

func New(tr *tracker.Tracker, feedback *Store, followup Followup) *Processor {
	return &Processor{Tracker: tr, Feedback: feedback, Followup: followup}
}

// Process resolves the tracked message for event and persists the rating.
// Returns false if the reaction targets an untracked (unknown or expired)
// message.
func (p *Processor) Process(ctx context.Context, event Event) bool {
	rec, ok := p.Tracker.Lookup(event.Channel, event.ExternalMessageID)
	if !ok {
		return false
	}

	p.Feedback.SetRating(rec.MessageID, event.Channel, event.Reactor, event.Rating)

	if event.Rating == RatingNegative && p.Followup != nil {
		_ = p.Followup.StartFollowup(ctx, event.Channel, rec.UserID, rec.MessageID)
	}
	return true
}

// RevokeReaction removes a previously recorded rating, for protocols that
// expose a remove/redact event.
func (p *Processor) RevokeReaction(_ context.Context, channelID, extID, reactor string) bool {
	rec, ok := p.Tracker.Lookup(channelID, extID)
	if !ok {
		return false
	}
	p.Feedback.RemoveRating(rec.MessageID, reactor)
	return true
}

// EmojiMap translates a channel's native emoji/reaction identifiers to a
// Rating. Unmapped emojis are dropped (not an error).
type EmojiMap map[string]Rating

func (m EmojiMap) Resolve(emoji string) (Rating, bool) {
	r, ok := m[emoji]
	return r, ok
}

// DefaultEmojiMap covers the common thumbs-up/thumbs-down convention shared
// by the chat surfaces this gateway fronts.
func DefaultEmojiMap() EmojiMap {
	return EmojiMap{
		"👍": RatingPositive,
		"+1": RatingPositive,
		"👎": RatingNegative,
		"-1": RatingNegative,
	}
}
