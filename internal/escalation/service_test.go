package escalation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/suppgw/gateway/internal/channel"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "escalations.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewService(store, nil, nil)
}

func TestService_CreateFromOutgoing_IdempotentOnMessageID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	in := &channel.IncomingMessage{MessageID: "m-1", Channel: channel.Web, Question: "help"}
	out := &channel.OutgoingMessage{Answer: "draft answer", RequiresHuman: true}

	id1, err := svc.CreateFromOutgoing(ctx, in, out)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id2, err := svc.CreateFromOutgoing(ctx, in, out)
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected idempotent create, got %s and %s", id1, id2)
	}
}

func TestService_Claim_SecondClaimFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	in := &channel.IncomingMessage{MessageID: "m-2", Channel: channel.Web, Question: "help"}
	out := &channel.OutgoingMessage{Answer: "draft", RequiresHuman: true}
	id, _ := svc.CreateFromOutgoing(ctx, in, out)

	if _, err := svc.Claim(ctx, id, "staff-a"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := svc.Claim(ctx, id, "staff-b"); err != ErrAlreadyClaimed {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestService_Respond_ComputesEditDistanceAndTransitions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	in := &channel.IncomingMessage{MessageID: "m-3", Channel: channel.Web, Question: "help"}
	out := &channel.OutgoingMessage{Answer: "hello world", RequiresHuman: true}
	id, _ := svc.CreateFromOutgoing(ctx, in, out)

	if _, err := svc.Claim(ctx, id, "staff-a"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	e, err := svc.Respond(ctx, id, "hello world", "staff-a")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if e.Status != StatusResponded {
		t.Fatalf("expected RESPONDED, got %s", e.Status)
	}
	if e.EditDistance == nil || *e.EditDistance != 0 {
		t.Fatalf("expected zero edit distance for identical answer, got %v", e.EditDistance)
	}
}

func TestService_Respond_DifferentStaffFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	in := &channel.IncomingMessage{MessageID: "m-4", Channel: channel.Web, Question: "help"}
	out := &channel.OutgoingMessage{Answer: "draft", RequiresHuman: true}
	id, _ := svc.CreateFromOutgoing(ctx, in, out)

	if _, err := svc.Claim(ctx, id, "staff-a"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if _, err := svc.Respond(ctx, id, "answer", "staff-b"); err != ErrAlreadyClaimed {
		t.Fatalf("expected ErrAlreadyClaimed for different staff, got %v", err)
	}
}
