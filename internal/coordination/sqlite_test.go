package coordination

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coordination.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_ReserveDedup(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	ok, err := s.ReserveDedup(ctx, "dedup:web:evt-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first reserve: ok=%v err=%v", ok, err)
	}

	ok, err = s.ReserveDedup(ctx, "dedup:web:evt-1", time.Minute)
	if err != nil || ok {
		t.Fatalf("second reserve should fail: ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStore_ReserveDedup_ExpiresAfterTTL(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	ok, _ := s.ReserveDedup(ctx, "dedup:web:evt-2", 10*time.Millisecond)
	if !ok {
		t.Fatal("expected first reservation to succeed")
	}

	time.Sleep(20 * time.Millisecond)

	ok, err := s.ReserveDedup(ctx, "dedup:web:evt-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("reservation should succeed again after TTL: ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStore_Lock_AcquireReleaseRoundtrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	key := ThreadLockKey("web", "thread-1")

	token, err := s.AcquireLock(ctx, key, time.Second)
	if err != nil || token == "" {
		t.Fatalf("acquire: token=%q err=%v", token, err)
	}

	token2, err := s.AcquireLock(ctx, key, time.Second)
	if err != nil || token2 != "" {
		t.Fatalf("expected contention: token=%q err=%v", token2, err)
	}

	ok, err := s.ReleaseLock(ctx, key, token)
	if err != nil || !ok {
		t.Fatalf("release with correct token: ok=%v err=%v", ok, err)
	}

	token3, err := s.AcquireLock(ctx, key, time.Second)
	if err != nil || token3 == "" {
		t.Fatalf("reacquire after release: token=%q err=%v", token3, err)
	}
}

func TestSQLiteStore_ReleaseLock_WrongTokenFails(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	key := ThreadLockKey("web", "thread-2")

	if _, err := s.AcquireLock(ctx, key, time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ok, err := s.ReleaseLock(ctx, key, "not-the-real-token")
	if err != nil || ok {
		t.Fatalf("release with wrong token must fail: ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStore_ThreadState_RoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	key := ThreadKey("federated", "thread-3")
	want := ThreadState{LastEventID: "evt-9", UserID: "u-1", Timestamp: time.Now()}

	if err := s.SetThreadState(ctx, key, want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.GetThreadState(ctx, key)
	if err != nil || got == nil {
		t.Fatalf("get: got=%v err=%v", got, err)
	}
	if got.LastEventID != want.LastEventID || got.UserID != want.UserID {
		t.Fatalf("mismatch: got %+v want %+v", got, want)
	}
}

func TestSQLiteStore_PendingFollowup_SetGetClear(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	key := PendingFollowupKey("web", "user-1")

	if err := s.SetPending(ctx, key, "rate_this_answer", time.Minute); err != nil {
		t.Fatalf("set pending: %v", err)
	}

	value, ok, err := s.GetPending(ctx, key)
	if err != nil || !ok || value != "rate_this_answer" {
		t.Fatalf("get pending: value=%q ok=%v err=%v", value, ok, err)
	}

	if err := s.ClearPending(ctx, key); err != nil {
		t.Fatalf("clear pending: %v", err)
	}

	_, ok, err = s.GetPending(ctx, key)
	if err != nil || ok {
		t.Fatalf("expected cleared pending to be absent: ok=%v err=%v", ok, err)
	}
}
