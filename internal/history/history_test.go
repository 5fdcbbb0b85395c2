package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chronod/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Enabled: false}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st != nil {
		t.Fatalf("expected nil store when disabled")
	}
	// Nil store is a safe no-op receiver.
	if err := st.Append(context.Background(), Run{TaskID: "x"}); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if _, err := st.Recent(context.Background(), 10); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestAppendRecentRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := Open(Config{Enabled: true, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := st.Append(ctx, Run{
		TaskID: "a", Schedule: "EVERYDAY @ 18:00",
		Started: started, Duration: 120 * time.Millisecond, OK: true,
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := st.Append(ctx, Run{
		TaskID: "b", Schedule: "EVERY 15 MINUTES",
		Started: started.Add(time.Minute), Duration: 5 * time.Millisecond,
		OK: false, Error: "boom",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	runs, err := st.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	// Newest first.
	if runs[0].TaskID != "b" || runs[1].TaskID != "a" {
		t.Fatalf("unexpected order: %q, %q", runs[0].TaskID, runs[1].TaskID)
	}
	if runs[0].OK || runs[0].Error != "boom" {
		t.Fatalf("unexpected failure record: %+v", runs[0])
	}
	if !runs[1].OK || runs[1].Error != "" {
		t.Fatalf("unexpected success record: %+v", runs[1])
	}
	if !runs[1].Started.Equal(started) {
		t.Fatalf("started round-trip: got %v want %v", runs[1].Started, started)
	}
	if runs[1].Duration != 120*time.Millisecond {
		t.Fatalf("duration round-trip: got %v", runs[1].Duration)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := Open(Config{Enabled: true, Path: path, MaxRows: 5}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if err := st.Append(ctx, Run{TaskID: "t", Schedule: "EVERY 1 HOUR", OK: true}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := st.prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}
	runs, err := st.Recent(ctx, 100)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 5 {
		t.Fatalf("expected 5 runs after prune, got %d", len(runs))
	}
}
