package messagelog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-whatsapp/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-whatsapp/migrations"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	return NewStore(db)
}

func TestStore_RecordLast(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Record(ctx, Message{
		SessionID: "wa-main",
		Direction: DirectionInbound,
		ChatID:    "1234@c.us",
		Sender:    "1234@c.us",
		Body:      "first",
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if id == 0 {
		t.Error("Record() id = 0, want non-zero")
	}

	if _, err := store.Record(ctx, Message{
		SessionID: "wa-main",
		Direction: DirectionOutbound,
		ChatID:    "1234@c.us",
		Body:      "second",
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	last, err := store.Last(ctx, "wa-main")
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}
	if last.Body != "second" {
		t.Errorf("Last().Body = %q, want %q", last.Body, "second")
	}
	if last.Direction != DirectionOutbound {
		t.Errorf("Last().Direction = %q, want %q", last.Direction, DirectionOutbound)
	}
}

func TestStore_LastNoMessages(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Last(context.Background(), "wa-empty")
	if !errors.Is(err, ErrNoMessages) {
		t.Errorf("Last() error = %v, want ErrNoMessages", err)
	}
}

func TestStore_RecordValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "missing session",
			msg:  Message{Direction: DirectionInbound, ChatID: "1@c.us"},
		},
		{
			name: "missing chat",
			msg:  Message{SessionID: "wa-main", Direction: DirectionInbound},
		},
		{
			name: "bad direction",
			msg:  Message{SessionID: "wa-main", Direction: "sideways", ChatID: "1@c.us"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Record(ctx, tt.msg)
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("Record() error = %v, want ErrInvalidMessage", err)
			}
		})
	}
}

func TestStore_Recent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		if _, err := store.Record(ctx, Message{
			SessionID: "wa-main",
			Direction: DirectionInbound,
			ChatID:    "1@c.us",
			Body:      body,
		}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	// A different session must not leak into the results.
	if _, err := store.Record(ctx, Message{
		SessionID: "wa-other",
		Direction: DirectionInbound,
		ChatID:    "2@c.us",
		Body:      "elsewhere",
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	recent, err := store.Recent(ctx, "wa-main", 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len(Recent()) = %d, want 2", len(recent))
	}
	// Newest first.
	if recent[0].Body != "three" || recent[1].Body != "two" {
		t.Errorf("Recent() order = [%s %s], want [three two]", recent[0].Body, recent[1].Body)
	}
}

func TestStore_RecentEmpty(t *testing.T) {
	store := openTestStore(t)

	recent, err := store.Recent(context.Background(), "wa-empty", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("len(Recent()) = %d, want 0", len(recent))
	}
}

func TestStore_Prune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	if _, err := store.Record(ctx, Message{
		SessionID: "wa-main",
		Direction: DirectionInbound,
		ChatID:    "1@c.us",
		Body:      "old",
		Timestamp: old,
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := store.Record(ctx, Message{
		SessionID: "wa-main",
		Direction: DirectionInbound,
		ChatID:    "1@c.us",
		Body:      "fresh",
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	pruned, err := store.Prune(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if pruned != 1 {
		t.Errorf("Prune() = %d, want 1", pruned)
	}

	last, err := store.Last(ctx, "wa-main")
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}
	if last.Body != "fresh" {
		t.Errorf("Last().Body = %q, want fresh", last.Body)
	}
}
