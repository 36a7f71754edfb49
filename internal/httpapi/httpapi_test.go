package httpapi

import (
	"testing"

	"github.com/suppgw/gateway/internal/escalation"
)

func TestResponseBody_Pending(t *testing.T) {
	e := &escalation.Escalation{Status: escalation.StatusPending}
	out := responseBody(e)
	if out["status"] != "pending" {
		t.Fatalf("expected pending status, got %+v", out)
	}
	if _, ok := out["resolution"]; ok {
		t.Fatal("pending response should not carry a resolution")
	}
}

func TestResponseBody_Responded(t *testing.T) {
	rating := 1
	e := &escalation.Escalation{
		MessageID:   "m1",
		Status:      escalation.StatusResponded,
		StaffAnswer: "here's the answer",
		StaffRating: &rating,
	}
	out := responseBody(e)
	if out["status"] != "resolved" || out["resolution"] != "responded" {
		t.Fatalf("unexpected responded payload: %+v", out)
	}
	if out["rate_token"] != "m1" {
		t.Fatalf("expected rate_token to be message id, got %+v", out["rate_token"])
	}
	if out["staff_answer_rating"] != 1 {
		t.Fatalf("expected staff_answer_rating=1, got %+v", out["staff_answer_rating"])
	}
}

func TestResponseBody_ClosedWithoutAnswer(t *testing.T) {
	e := &escalation.Escalation{Status: escalation.StatusClosed}
	out := responseBody(e)
	if out["status"] != "resolved" || out["resolution"] != "closed" {
		t.Fatalf("unexpected closed payload: %+v", out)
	}
	if _, ok := out["staff_answer"]; ok {
		t.Fatal("closed-without-answer should not carry staff_answer")
	}
}

func TestEscalationSummary_OmitsEmptyStaffAnswer(t *testing.T) {
	e := &escalation.Escalation{ID: "e1", MessageID: "m1", Status: escalation.StatusPending}
	out := escalationSummary(e)
	if _, ok := out["staff_answer"]; ok {
		t.Fatal("expected no staff_answer key for an un-responded escalation")
	}
	if out["id"] != "e1" {
		t.Fatalf("unexpected summary: %+v", out)
	}
}

func TestAtoiOr(t *testing.T) {
	if got := atoiOr("", 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}
	if got := atoiOr("not-a-number", 7); got != 7 {
		t.Fatalf("expected default on parse failure, got %d", got)
	}
	if got := atoiOr("42", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}
