package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("panel-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"panel-2", "panel-3", "panel-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestAppendFoldsMessageAndTagsLevel(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "nested", "journal.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.now = func() time.Time { return time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC) }
	book.Warn("panel 2 short:\n  3 of 4")
	lines, total := book.Tail(10)
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
	if want := "2026-05-06T07:08:09Z WARN  panel 2 short: 3 of 4"; lines[0] != want {
		t.Fatalf("line = %q, want %q", lines[0], want)
	}
}

func TestTailMissingFile(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "journal.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("Tail on empty logbook = %v, %d", lines, total)
	}
}
