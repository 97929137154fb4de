package feed

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"meridian/internal/risk"
)

func entry(i int) risk.FeedEntry {
	return risk.FeedEntry{AgentLabel: "DELAY", Text: fmt.Sprintf("finding %d", i)}
}

func texts(entries []risk.FeedEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}

func TestRingKeepsMostRecentFirst(t *testing.T) {
	r := New(10)
	for i := 1; i <= 15; i++ {
		r.Push(entry(i))
	}

	want := []string{
		"finding 15", "finding 14", "finding 13", "finding 12", "finding 11",
		"finding 10", "finding 9", "finding 8", "finding 7", "finding 6",
	}
	if diff := cmp.Diff(want, texts(r.Entries())); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	if r.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", r.Len())
	}
}

func TestRingBelowCapacity(t *testing.T) {
	r := New(10)
	r.Push(entry(1))
	r.Push(entry(2))

	if diff := cmp.Diff([]string{"finding 2", "finding 1"}, texts(r.Entries())); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestRingClear(t *testing.T) {
	r := New(3)
	for i := 0; i < 5; i++ {
		r.Push(entry(i))
	}
	r.Clear()
	if got := r.Len(); got != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", got)
	}
	r.Push(entry(9))
	if diff := cmp.Diff([]string{"finding 9"}, texts(r.Entries())); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestRingEntriesIsCopy(t *testing.T) {
	r := New(2)
	r.Push(entry(1))
	got := r.Entries()
	got[0].Text = "mutated"
	if r.Entries()[0].Text != "finding 1" {
		t.Fatalf("Entries() exposed internal storage")
	}
}

func TestRingDefaultCapacity(t *testing.T) {
	if got := New(0).Cap(); got != DefaultCapacity {
		t.Fatalf("Cap() = %d, want %d", got, DefaultCapacity)
	}
}
