package reaction

import (
	"context"
	"strings"
	"time"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/coordination"
	"github.com/suppgw/gateway/internal/pkg/logs"
)

// ChannelLookup resolves a channel id to its adapter, for sending the
// follow-up prompt and acknowledgement.
type ChannelLookup func(id string) (channel.Channel, error)

// FollowupCoordinator implements C9: it prompts a user "why?" after their
// negative reaction, and consumes their next message as the answer.
type FollowupCoordinator struct {
	Store    coordination.Store
	Lookup   ChannelLookup
	Feedback *Store
	TTL      time.Duration
}

func NewFollowupCoordinator(store coordination.Store, lookup ChannelLookup, feedback *Store, ttl time.Duration) *FollowupCoordinator {
	if ttl <= 0 {
		ttl = 900 * time.Second
	}
	return &FollowupCoordinator{Store: store, Lookup: lookup, Feedback: feedback, TTL: ttl}
}

var _ Followup = (*FollowupCoordinator)(nil)

// StartFollowup records a pending prompt for (channelID, userID) and sends
// the prompt via the channel adapter.
func (c *FollowupCoordinator) StartFollowup(ctx context.Context, channelID, userID, messageID string) error {
	key := coordination.PendingFollowupKey(channelID, userID)
	if err := c.Store.SetPending(ctx, key, messageID, c.TTL); err != nil {
		return err
	}

	ch, err := c.Lookup(channelID)
	if err != nil {
		return err
	}
	target, err := ch.GetDeliveryTarget(map[string]string{"user_id": userID})
	if err != nil {
		return err
	}
	_, err = ch.SendMessage(ctx, target, &channel.OutgoingMessage{
		Channel: channel.Type(channelID),
		Answer:  "Sorry that wasn't helpful. Could you tell us what was wrong?",
	})
	return err
}

// ConsumeIfPending checks whether msg's user has a pending follow-up prompt;
// if so it analyzes the reply, appends it to the original feedback record,
// acknowledges the user, and clears the pending entry.
func (c *FollowupCoordinator) ConsumeIfPending(ctx context.Context, msg *channel.IncomingMessage) (bool, error) {
	key := coordination.PendingFollowupKey(string(msg.Channel), msg.User.UserID)
	originalMessageID, pending, err := c.Store.GetPending(ctx, key)
	if err != nil || !pending {
		return false, err
	}

	issues := classifyIssues(msg.Question)
	c.Feedback.AppendExplanation(originalMessageID, msg.Question, issues)

	if err := c.Store.ClearPending(ctx, key); err != nil {
		logs.CtxWarn(ctx, "[followup] clear pending failed: %v", err)
	}

	ch, err := c.Lookup(string(msg.Channel))
	if err == nil {
		target, terr := ch.GetDeliveryTarget(msg.ChannelMetadata)
		if terr == nil {
			_, _ = ch.SendMessage(ctx, target, &channel.OutgoingMessage{
				Channel:   msg.Channel,
				InReplyTo: msg.MessageID,
				Answer:    "Thanks, we've logged your feedback.",
			})
		}
	}

	return true, nil
}

// issueKeywords is a small keyword -> issue-tag table for the lightweight
// text analysis C9 runs on the follow-up reply.
var issueKeywords = map[string]string{
	"incomplete": "incomplete_answer",
	"wrong":      "incorrect_answer",
	"incorrect":  "incorrect_answer",
	"slow":       "slow_response",
	"rude":       "tone",
	"confusing":  "unclear_answer",
	"unclear":    "unclear_answer",
	"outdated":   "outdated_info",
}

func classifyIssues(reply string) []string {
	lower := strings.ToLower(reply)
	var issues []string
	seen := make(map[string]struct{})
	for kw, tag := range issueKeywords {
		if strings.Contains(lower, kw) {
			if _, ok := seen[tag]; !ok {
				issues = append(issues, tag)
				seen[tag] = struct{}{}
			}
		}
	}
	if len(issues) == 0 {
		issues = []string{"unspecified"}
	}
	return issues
}
