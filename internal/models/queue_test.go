package models

import (
	"reflect"
	"testing"
)

func TestAppendAndPositions(t *testing.T) {
	q := Queue{}
	if pos := q.Append("a"); pos != 1 {
		t.Fatalf("expected position 1, got %d", pos)
	}
	if pos := q.Append("b"); pos != 2 {
		t.Fatalf("expected position 2, got %d", pos)
	}
	q.CurrentToken = "c"

	positions := q.Positions()
	want := map[string]int{"a": 1, "b": 2, "c": 0}
	if !reflect.DeepEqual(positions, want) {
		t.Fatalf("unexpected positions: %v", positions)
	}
}

func TestPopHead(t *testing.T) {
	q := Queue{ActiveTokens: []string{"a", "b", "c"}}
	head, ok := q.PopHead()
	if !ok || head != "a" {
		t.Fatalf("expected head a, got %q ok=%v", head, ok)
	}
	if !reflect.DeepEqual(q.ActiveTokens, []string{"b", "c"}) {
		t.Fatalf("unexpected remaining tokens: %v", q.ActiveTokens)
	}

	empty := Queue{}
	if _, ok := empty.PopHead(); ok {
		t.Fatal("expected PopHead on empty queue to fail")
	}
}

func TestRemovePreservesOrder(t *testing.T) {
	q := Queue{ActiveTokens: []string{"a", "b", "c"}}
	if !q.Remove("b") {
		t.Fatal("expected remove to succeed")
	}
	if !reflect.DeepEqual(q.ActiveTokens, []string{"a", "c"}) {
		t.Fatalf("unexpected tokens after remove: %v", q.ActiveTokens)
	}
	if q.Remove("missing") {
		t.Fatal("expected remove of unknown token to fail")
	}
}

func TestRemoveCurrentToken(t *testing.T) {
	q := Queue{ActiveTokens: []string{"b"}, CurrentToken: "a"}
	if !q.Remove("a") {
		t.Fatal("expected remove of current token to succeed")
	}
	if q.CurrentToken != "" {
		t.Fatalf("expected empty current token, got %q", q.CurrentToken)
	}
	if !reflect.DeepEqual(q.ActiveTokens, []string{"b"}) {
		t.Fatalf("active tokens must be untouched: %v", q.ActiveTokens)
	}
}

func TestPromote(t *testing.T) {
	q := Queue{ActiveTokens: []string{"a", "b", "c"}}
	if !q.Promote("c") {
		t.Fatal("expected promote to succeed")
	}
	if !reflect.DeepEqual(q.ActiveTokens, []string{"c", "a", "b"}) {
		t.Fatalf("unexpected order after promote: %v", q.ActiveTokens)
	}

	// Idempotent at the front.
	if !q.Promote("c") {
		t.Fatal("expected promote of front token to succeed")
	}
	if !reflect.DeepEqual(q.ActiveTokens, []string{"c", "a", "b"}) {
		t.Fatalf("promote of front token must not reorder: %v", q.ActiveTokens)
	}

	if q.Promote("missing") {
		t.Fatal("expected promote of unknown token to fail")
	}
}

func TestNoShowCount(t *testing.T) {
	q := Queue{}
	q.MarkNoShow("a")
	q.MarkNoShow("b")
	q.MarkNoShow("a")
	if got := q.NoShowCount("a"); got != 2 {
		t.Fatalf("expected 2 no-shows for a, got %d", got)
	}
	if got := q.NoShowCount("c"); got != 0 {
		t.Fatalf("expected 0 no-shows for c, got %d", got)
	}
}

func TestContains(t *testing.T) {
	q := Queue{ActiveTokens: []string{"a"}, CurrentToken: "b"}
	if !q.Contains("a") || !q.Contains("b") {
		t.Fatal("expected waiting and serving tokens to be contained")
	}
	if q.Contains("c") {
		t.Fatal("expected unknown token to not be contained")
	}
}

func TestIsTerminalStatus(t *testing.T) {
	cases := []struct {
		status   string
		terminal bool
	}{
		{StatusBooked, false},
		{StatusCheckedIn, false},
		{StatusInProgress, false},
		{StatusCompleted, true},
		{StatusCancelled, true},
		{StatusNoShow, true},
	}
	for _, tt := range cases {
		if got := IsTerminalStatus(tt.status); got != tt.terminal {
			t.Fatalf("IsTerminalStatus(%q)=%v, want %v", tt.status, got, tt.terminal)
		}
	}
}
