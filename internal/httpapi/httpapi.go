// Package httpapi exposes the staff-facing escalation surface and the
// reaction/feedback surface as Hertz routes onto the gateway's shared HTTP
// server.
package httpapi

import (
	"context"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/escalation"
	"github.com/suppgw/gateway/internal/reaction"
)

type Handlers struct {
	Escalations *escalation.Service
	Reactions   *reaction.Processor
}

func New(escalations *escalation.Service, reactions *reaction.Processor) *Handlers {
	return &Handlers{Escalations: escalations, Reactions: reactions}
}

// Register wires every handler onto the shared Hertz server.
func (h *Handlers) Register(httpServer *hzServer.Hertz) {
	httpServer.POST("/admin/escalations/:id/claim", h.claim)
	httpServer.POST("/admin/escalations/:id/respond", h.respond)
	httpServer.POST("/admin/escalations/:id/close", h.close)
	httpServer.GET("/admin/escalations", h.list)
	httpServer.GET("/escalations/:message_id/response", h.response)
	httpServer.POST("/escalations/:message_id/rate", h.rate)
	httpServer.POST("/feedback/react", h.react)
}

type claimRequest struct {
	StaffID string `json:"staff_id"`
}

func (h *Handlers) claim(ctx context.Context, c *app.RequestContext) {
	var req claimRequest
	if err := sonic.Unmarshal(c.GetRequest().Body(), &req); err != nil || req.StaffID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "staff_id is required"})
		return
	}

	e, err := h.Escalations.Claim(ctx, c.Param("id"), req.StaffID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, escalationSummary(e))
}

type respondRequest struct {
	StaffAnswer string `json:"staff_answer"`
	StaffID     string `json:"staff_id"`
}

func (h *Handlers) respond(ctx context.Context, c *app.RequestContext) {
	var req respondRequest
	if err := sonic.Unmarshal(c.GetRequest().Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.StaffAnswer == "" || req.StaffID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "staff_answer and staff_id are required"})
		return
	}

	e, err := h.Escalations.Respond(ctx, c.Param("id"), req.StaffAnswer, req.StaffID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, escalationSummary(e))
}

func (h *Handlers) close(ctx context.Context, c *app.RequestContext) {
	e, err := h.Escalations.Close(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if e == nil {
		c.JSON(consts.StatusNotFound, map[string]string{"error": "escalation not found"})
		return
	}
	c.JSON(consts.StatusOK, escalationSummary(e))
}

func (h *Handlers) list(ctx context.Context, c *app.RequestContext) {
	f := escalation.Filters{
		Status:   escalation.Status(c.Query("status")),
		Channel:  channel.Type(c.Query("channel")),
		Priority: channel.Priority(c.Query("priority")),
		StaffID:  c.Query("staff_id"),
		Limit:    atoiOr(c.Query("limit"), 0),
		Offset:   atoiOr(c.Query("offset"), 0),
	}

	list, err := h.Escalations.List(ctx, f)
	if err != nil {
		writeError(c, err)
		return
	}
	counts, err := h.Escalations.CountsByStatus(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	summaries := make([]map[string]any, 0, len(list))
	for _, e := range list {
		summaries = append(summaries, escalationSummary(e))
	}
	countsOut := make(map[string]int, len(counts))
	for status, n := range counts {
		countsOut[string(status)] = n
	}

	c.JSON(consts.StatusOK, map[string]any{
		"escalations": summaries,
		"counts":      countsOut,
	})
}

// response implements the user-facing poll endpoint: the wire status
// collapses RESPONDED and CLOSED into "resolved", distinguished by
// resolution.
func (h *Handlers) response(ctx context.Context, c *app.RequestContext) {
	e, err := h.Escalations.GetByMessageID(ctx, c.Param("message_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if e == nil {
		c.JSON(consts.StatusNotFound, map[string]string{"error": "escalation not found"})
		return
	}
	c.JSON(consts.StatusOK, responseBody(e))
}

// responseBody builds the user poll payload: RESPONDED and CLOSED both
// report status "resolved", distinguished by resolution.
func responseBody(e *escalation.Escalation) map[string]any {
	out := map[string]any{}
	switch e.Status {
	case escalation.StatusPending:
		out["status"] = "pending"
	case escalation.StatusInReview:
		out["status"] = "in_review"
	case escalation.StatusResponded:
		out["status"] = "resolved"
		out["resolution"] = "responded"
		out["staff_answer"] = e.StaffAnswer
		out["responded_at"] = e.RespondedAt
		out["rate_token"] = e.MessageID
		if e.StaffRating != nil {
			out["staff_answer_rating"] = *e.StaffRating
		}
	case escalation.StatusClosed:
		out["status"] = "resolved"
		out["resolution"] = "closed"
		if e.StaffAnswer != "" {
			out["staff_answer"] = e.StaffAnswer
			out["responded_at"] = e.RespondedAt
			if e.StaffRating != nil {
				out["staff_answer_rating"] = *e.StaffRating
			}
		}
	}
	return out
}

type rateRequest struct {
	Rating int `json:"rating"`
}

func (h *Handlers) rate(ctx context.Context, c *app.RequestContext) {
	var req rateRequest
	if err := sonic.Unmarshal(c.GetRequest().Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Rating != 0 && req.Rating != 1 {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "rating must be 0 or 1"})
		return
	}

	if err := h.Escalations.RateStaffAnswer(ctx, c.Param("message_id"), req.Rating); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	c.SetStatusCode(consts.StatusOK)
}

type reactRequest struct {
	MessageID string `json:"message_id"`
	Rating    int    `json:"rating"`
}

// react forces channel_id=web: the feedback endpoint is only exposed to the
// synchronous web chat surface, per spec.
func (h *Handlers) react(ctx context.Context, c *app.RequestContext) {
	var req reactRequest
	if err := sonic.Unmarshal(c.GetRequest().Body(), &req); err != nil || req.MessageID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "message_id is required"})
		return
	}
	if req.Rating != 0 && req.Rating != 1 {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "rating must be 0 or 1"})
		return
	}

	if h.Reactions == nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "reactions unavailable"})
		return
	}

	rating := reaction.Rating(req.Rating)
	ok := h.Reactions.Process(ctx, reaction.Event{
		Channel:           string(channel.Web),
		ExternalMessageID: req.MessageID,
		Rating:            rating,
	})
	if !ok {
		c.JSON(consts.StatusNotFound, map[string]string{"error": "MESSAGE_NOT_TRACKED"})
		return
	}

	c.JSON(consts.StatusOK, map[string]any{
		"success":                 true,
		"needs_feedback_followup": rating == reaction.RatingNegative,
	})
}

func escalationSummary(e *escalation.Escalation) map[string]any {
	if e == nil {
		return nil
	}
	out := map[string]any{
		"id":         e.ID,
		"message_id": e.MessageID,
		"channel":    string(e.Channel),
		"status":     string(e.Status),
		"priority":   string(e.Priority),
		"question":   e.Question,
		"staff_id":   e.StaffID,
	}
	if e.StaffAnswer != "" {
		out["staff_answer"] = e.StaffAnswer
	}
	if e.StaffRating != nil {
		out["staff_answer_rating"] = *e.StaffRating
	}
	return out
}

func writeError(c *app.RequestContext, err error) {
	if gwErr, ok := err.(*channel.GatewayError); ok {
		c.JSON(gwErr.Code.HTTPStatus(), map[string]string{"error": gwErr.Message})
		return
	}
	c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
