package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// withStores runs the same contract tests against both backends.
func withStores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(t.TempDir() + "/test.db")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
	t.Run("bolt", func(t *testing.T) {
		s, err := NewBoltStore(t.TempDir() + "/test.bolt")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func TestEnsureUser_Idempotent(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.EnsureUser(ctx, "u1@example.com"); err != nil {
			t.Fatal(err)
		}
		if err := s.EnsureUser(ctx, "u1@example.com"); err != nil {
			t.Fatalf("second EnsureUser failed: %v", err)
		}
	})
}

func TestGetOrCreateSession_Idempotent(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

		first, err := s.GetOrCreateSession(ctx, "sess-1", "u1", "Chat one", start)
		if err != nil {
			t.Fatal(err)
		}
		if first.ID != "sess-1" || first.UserID != "u1" || first.Title != "Chat one" {
			t.Fatalf("unexpected session record: %+v", first)
		}

		// Second call with a different title must return the original row unchanged.
		second, err := s.GetOrCreateSession(ctx, "sess-1", "u1", "different title", start.Add(time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if second.Title != "Chat one" {
			t.Errorf("expected original title, got %q", second.Title)
		}
		if !second.StartTime.Equal(first.StartTime) {
			t.Errorf("start time changed: %v vs %v", second.StartTime, first.StartTime)
		}

		sessions, err := s.ListSessionsForUser(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(sessions) != 1 {
			t.Fatalf("expected 1 session, got %d", len(sessions))
		}
	})
}

func TestGetOrCreateSession_OwnedByOtherUser(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()

		if _, err := s.GetOrCreateSession(ctx, "sess-1", "u1", "u1's chat", now); err != nil {
			t.Fatal(err)
		}

		_, err := s.GetOrCreateSession(ctx, "sess-1", "u2", "u2's chat", now)
		if !errors.Is(err, ErrSessionOwned) {
			t.Fatalf("expected ErrSessionOwned, got %v", err)
		}

		// u2 must not gain a session from the failed call.
		sessions, err := s.ListSessionsForUser(ctx, "u2")
		if err != nil {
			t.Fatal(err)
		}
		if len(sessions) != 0 {
			t.Errorf("expected no sessions for u2, got %d", len(sessions))
		}
	})
}

func TestGetOrCreateSession_ConcurrentIdenticalCalls(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()

		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			go func() {
				_, err := s.GetOrCreateSession(ctx, "sess-1", "u1", "chat", now)
				errs <- err
			}()
		}
		for i := 0; i < 8; i++ {
			if err := <-errs; err != nil {
				t.Errorf("concurrent call failed: %v", err)
			}
		}

		sessions, err := s.ListSessionsForUser(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(sessions) != 1 {
			t.Fatalf("expected exactly 1 session, got %d", len(sessions))
		}
	})
}

func TestListMessages_Ordering(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

		if _, err := s.GetOrCreateSession(ctx, "sess-1", "u1", "chat", base); err != nil {
			t.Fatal(err)
		}

		// Append out of chronological order.
		if _, err := s.AppendMessage(ctx, "sess-1", "second", "r2", base.Add(2*time.Second)); err != nil {
			t.Fatal(err)
		}
		if _, err := s.AppendMessage(ctx, "sess-1", "first", "r1", base.Add(1*time.Second)); err != nil {
			t.Fatal(err)
		}
		if _, err := s.AppendMessage(ctx, "sess-1", "third", "r3", base.Add(3*time.Second)); err != nil {
			t.Fatal(err)
		}

		msgs, err := s.ListMessages(ctx, "sess-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(msgs))
		}
		for i, want := range []string{"first", "second", "third"} {
			if msgs[i].Human != want {
				t.Errorf("msgs[%d].Human = %q, want %q", i, msgs[i].Human, want)
			}
		}
	})
}

func TestListMessages_SubSecondOrdering(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

		if _, err := s.GetOrCreateSession(ctx, "sess-1", "u1", "chat", base); err != nil {
			t.Fatal(err)
		}

		// Fractions whose textual renderings are prefix-related, plus a
		// whole second: an encoding that trims trailing fraction zeros
		// would misorder all of these. Appended out of order so the
		// result depends on the store's ordering, not insertion order.
		for _, m := range []struct {
			human string
			ts    time.Time
		}{
			{"fourth", base.Add(time.Second + 50*time.Millisecond)},
			{"first", base.Add(100 * time.Millisecond)},
			{"third", base.Add(time.Second)},
			{"second", base.Add(150 * time.Millisecond)},
		} {
			if _, err := s.AppendMessage(ctx, "sess-1", m.human, "reply", m.ts); err != nil {
				t.Fatal(err)
			}
		}

		msgs, err := s.ListMessages(ctx, "sess-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 4 {
			t.Fatalf("expected 4 messages, got %d", len(msgs))
		}
		for i, want := range []string{"first", "second", "third", "fourth"} {
			if msgs[i].Human != want {
				t.Errorf("msgs[%d].Human = %q, want %q", i, msgs[i].Human, want)
			}
		}
		for i := 1; i < len(msgs); i++ {
			if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
				t.Errorf("timestamps not non-decreasing at %d: %v after %v", i, msgs[i].Timestamp, msgs[i-1].Timestamp)
			}
		}
	})
}

func TestListMessages_TimestampTieBreak(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

		if _, err := s.GetOrCreateSession(ctx, "sess-1", "u1", "chat", ts); err != nil {
			t.Fatal(err)
		}

		// Identical timestamps: insertion order must win.
		for _, human := range []string{"a", "b", "c"} {
			if _, err := s.AppendMessage(ctx, "sess-1", human, "reply", ts); err != nil {
				t.Fatal(err)
			}
		}

		msgs, err := s.ListMessages(ctx, "sess-1")
		if err != nil {
			t.Fatal(err)
		}
		for i, want := range []string{"a", "b", "c"} {
			if msgs[i].Human != want {
				t.Errorf("msgs[%d].Human = %q, want %q", i, msgs[i].Human, want)
			}
		}
		if msgs[0].ID >= msgs[1].ID || msgs[1].ID >= msgs[2].ID {
			t.Errorf("surrogate ids not increasing: %d %d %d", msgs[0].ID, msgs[1].ID, msgs[2].ID)
		}
	})
}

func TestListMessages_EmptySession(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		msgs, err := s.ListMessages(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("empty session must not error: %v", err)
		}
		if len(msgs) != 0 {
			t.Errorf("expected empty slice, got %d messages", len(msgs))
		}
	})
}

func TestCountMessages(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()

		if _, err := s.GetOrCreateSession(ctx, "sess-1", "u1", "chat", now); err != nil {
			t.Fatal(err)
		}

		count, err := s.CountMessages(ctx, "sess-1")
		if err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Errorf("expected 0, got %d", count)
		}

		if _, err := s.AppendMessage(ctx, "sess-1", "hi", "hello", now); err != nil {
			t.Fatal(err)
		}
		count, err = s.CountMessages(ctx, "sess-1")
		if err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("expected 1, got %d", count)
		}
	})
}

func TestDeleteSession_Cascades(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()

		if _, err := s.GetOrCreateSession(ctx, "sess-1", "u1", "chat", now); err != nil {
			t.Fatal(err)
		}
		if _, err := s.AppendMessage(ctx, "sess-1", "hi", "hello", now); err != nil {
			t.Fatal(err)
		}

		if err := s.DeleteSession(ctx, "sess-1"); err != nil {
			t.Fatal(err)
		}

		msgs, err := s.ListMessages(ctx, "sess-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 0 {
			t.Errorf("expected messages deleted, got %d", len(msgs))
		}
		sessions, err := s.ListSessionsForUser(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(sessions) != 0 {
			t.Errorf("expected session deleted, got %d", len(sessions))
		}

		// Recreating the same id yields a fresh, empty session.
		rec, err := s.GetOrCreateSession(ctx, "sess-1", "u1", "fresh", now.Add(time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		if rec.Title != "fresh" {
			t.Errorf("expected fresh session, got title %q", rec.Title)
		}
	})
}

func TestListSessionsForUser(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

		// Sub-second gap between start times: newest-first must hold even
		// when the sessions start within the same second.
		if _, err := s.GetOrCreateSession(ctx, "older", "u1", "older chat", base.Add(100*time.Millisecond)); err != nil {
			t.Fatal(err)
		}
		if _, err := s.GetOrCreateSession(ctx, "newer", "u1", "newer chat", base.Add(150*time.Millisecond)); err != nil {
			t.Fatal(err)
		}
		if _, err := s.GetOrCreateSession(ctx, "other", "u2", "other user", base); err != nil {
			t.Fatal(err)
		}
		if _, err := s.AppendMessage(ctx, "older", "hi", "hello", base); err != nil {
			t.Fatal(err)
		}
		if _, err := s.AppendMessage(ctx, "older", "more", "sure", base.Add(time.Second)); err != nil {
			t.Fatal(err)
		}

		sessions, err := s.ListSessionsForUser(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(sessions) != 2 {
			t.Fatalf("expected 2 sessions, got %d", len(sessions))
		}
		if sessions[0].ID != "newer" || sessions[1].ID != "older" {
			t.Errorf("expected newest first, got %q then %q", sessions[0].ID, sessions[1].ID)
		}
		if sessions[0].MessageCount != 0 {
			t.Errorf("newer count = %d, want 0", sessions[0].MessageCount)
		}
		if sessions[1].MessageCount != 2 {
			t.Errorf("older count = %d, want 2", sessions[1].MessageCount)
		}
	})
}
