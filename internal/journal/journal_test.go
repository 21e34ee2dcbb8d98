package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "corun/pkg/logx"
)

func openTemp(t *testing.T, keep int) *Journal {
	t.Helper()
	j, err := Open(Config{
		Path: filepath.Join(t.TempDir(), "failures.db"),
		Keep: keep,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()
	j := openTemp(t, 100)
	ctx := context.Background()

	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	for i, msg := range []string{"first", "second", "third"} {
		err := j.Record(ctx, Entry{
			At:      at.Add(time.Duration(i) * time.Second),
			Program: "pulse:beat",
			Error:   msg,
			Trace:   "leaf < root",
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Error != "third" || got[1].Error != "second" {
		t.Fatalf("order = %q, %q; want newest first", got[0].Error, got[1].Error)
	}
	if !got[0].At.Equal(at.Add(2 * time.Second)) {
		t.Fatalf("At = %v", got[0].At)
	}
	if got[0].Trace != "leaf < root" {
		t.Fatalf("Trace = %q", got[0].Trace)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatal("Open without a path should fail")
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	t.Parallel()
	j := openTemp(t, 5)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := j.Record(ctx, Entry{Program: "p", Error: "e"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	j.prune(ctx)

	got, err := j.Recent(ctx, 50)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want keep=5", len(got))
	}
}
