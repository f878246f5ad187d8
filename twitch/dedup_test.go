package twitch

import (
	"testing"
	"time"
)

func TestDedupWindowSeen(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	w := newDedupWindow(10 * time.Minute)
	w.now = func() time.Time { return now }

	if w.Seen("a") {
		t.Fatal("first delivery should not be a duplicate")
	}
	if !w.Seen("a") {
		t.Fatal("second delivery of same id should be a duplicate")
	}
	if w.Seen("b") {
		t.Fatal("different id should not be a duplicate")
	}
}

func TestDedupWindowExpiry(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	w := newDedupWindow(10 * time.Minute)
	w.now = func() time.Time { return now }

	w.Seen("a")
	now = now.Add(11 * time.Minute)
	if w.Seen("a") {
		t.Fatal("entry past the window should have expired")
	}
}

func TestDedupWindowPrunes(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	w := newDedupWindow(10 * time.Minute)
	w.now = func() time.Time { return now }

	for _, id := range []string{"a", "b", "c"} {
		w.Seen(id)
	}
	now = now.Add(20 * time.Minute)
	w.Seen("d")
	if len(w.seen) != 1 {
		t.Fatalf("expected stale entries pruned, have %d", len(w.seen))
	}
}
