package reaction

import (
	"context"
	"testing"
	"time"

	"github.com/suppgw/gateway/internal/tracker"
)

func TestProcessor_Process_UntrackedMessageReturnsFalse(t *testing.T) {
	tr := tracker.New(time.Minute)
	defer tr.Close()
	p := New(tr, NewStore(), nil)

	ok := p.Process(context.Background(), Event{Channel: "web", ExternalMessageID: "missing", Reactor: "u1", Rating: RatingPositive})
	if ok {
		t.Fatal("expected false for untracked message")
	}
}

func TestProcessor_Process_RecordsRating(t *testing.T) {
	tr := tracker.New(time.Minute)
	defer tr.Close()
	tr.Track("web", "ext-1", tracker.Record{MessageID: "m-1", UserID: "u1"})

	feedback := NewStore()
	p := New(tr, feedback, nil)

	ok := p.Process(context.Background(), Event{Channel: "web", ExternalMessageID: "ext-1", Reactor: "u1", Rating: RatingPositive})
	if !ok {
		t.Fatal("expected true for tracked message")
	}

	rec, ok := feedback.Get("m-1")
	if !ok || rec.Ratings["u1"] != RatingPositive {
		t.Fatalf("expected positive rating recorded, got %+v ok=%v", rec, ok)
	}
}

func TestProcessor_Process_OverwritesPriorRatingBySameReactor(t *testing.T) {
	tr := tracker.New(time.Minute)
	defer tr.Close()
	tr.Track("web", "ext-2", tracker.Record{MessageID: "m-2", UserID: "u1"})

	feedback := NewStore()
	p := New(tr, feedback, nil)

	p.Process(context.Background(), Event{Channel: "web", ExternalMessageID: "ext-2", Reactor: "u1", Rating: RatingPositive})
	p.Process(context.Background(), Event{Channel: "web", ExternalMessageID: "ext-2", Reactor: "u1", Rating: RatingNegative})

	rec, _ := feedback.Get("m-2")
	if rec.Ratings["u1"] != RatingNegative {
		t.Fatalf("expected overwritten rating, got %v", rec.Ratings["u1"])
	}
}

type recordingFollowup struct{ started bool }

func (f *recordingFollowup) StartFollowup(context.Context, string, string, string) error {
	f.started = true
	return nil
}

func TestProcessor_Process_NegativeTriggersFollowup(t *testing.T) {
	tr := tracker.New(time.Minute)
	defer tr.Close()
	tr.Track("web", "ext-3", tracker.Record{MessageID: "m-3", UserID: "u1"})

	followup := &recordingFollowup{}
	p := New(tr, NewStore(), followup)

	p.Process(context.Background(), Event{Channel: "web", ExternalMessageID: "ext-3", Reactor: "u1", Rating: RatingNegative})

	if !followup.started {
		t.Fatal("expected follow-up to be started for negative rating")
	}
}

func TestProcessor_RevokeReaction(t *testing.T) {
	tr := tracker.New(time.Minute)
	defer tr.Close()
	tr.Track("web", "ext-4", tracker.Record{MessageID: "m-4", UserID: "u1"})

	feedback := NewStore()
	p := New(tr, feedback, nil)
	p.Process(context.Background(), Event{Channel: "web", ExternalMessageID: "ext-4", Reactor: "u1", Rating: RatingPositive})

	if !p.RevokeReaction(context.Background(), "web", "ext-4", "u1") {
		t.Fatal("expected revoke to succeed")
	}
	rec, _ := feedback.Get("m-4")
	if _, stillRated := rec.Ratings["u1"]; stillRated {
		t.Fatal("expected rating to be removed")
	}
}
