package gateway

import (
	"context"

	"github.com/suppgw/gateway/internal/answer"
	"github.com/suppgw/gateway/internal/channel"
)

// Gateway ties the hook pipeline to the external answer service: one
// ProcessMessage call per IncomingMessage.
type Gateway struct {
	Pipeline *Pipeline
	Answers  answer.Service
}

func New(pipeline *Pipeline, answers answer.Service) *Gateway {
	return &Gateway{Pipeline: pipeline, Answers: answers}
}

// ProcessMessage runs pre-hooks, calls the answer service, builds the
// outgoing message, then runs post-hooks. A GatewayError from any stage
// short-circuits the remaining work and is returned directly.
func (g *Gateway) ProcessMessage(ctx context.Context, incoming *channel.IncomingMessage) (*channel.OutgoingMessage, *channel.GatewayError) {
	if gwErr := g.Pipeline.RunPre(ctx, incoming); gwErr != nil {
		return nil, gwErr
	}

	resp, err := g.Answers.Answer(ctx, answer.Request{
		Channel:     string(incoming.Channel),
		Question:    incoming.Question,
		ChatHistory: incoming.ChatHistory,
		UserID:      incoming.User.UserID,
	})
	if err != nil {
		if gwErr, ok := err.(*channel.GatewayError); ok {
			return nil, gwErr
		}
		return nil, channel.NewGatewayError(channel.ErrRAGServiceError, err.Error(), true)
	}

	out := &channel.OutgoingMessage{
		MessageID: incoming.MessageID,
		InReplyTo: incoming.MessageID,
		Channel:   incoming.Channel,
		Answer:    resp.Answer,
		Sources:   resp.Sources,
		Metadata:  resp.Metadata,
		User:      incoming.User,
	}
	confidence := resp.Confidence
	out.Confidence = &confidence

	if gwErr := g.Pipeline.RunPost(ctx, incoming, out); gwErr != nil {
		return nil, gwErr
	}
	return out, nil
}
