package aggregate

import (
	"reflect"
	"testing"
)

func TestNames_MergesByCanonicalKey(t *testing.T) {
	d := NewNames()
	d.Push("José Pérez", 3)
	d.Push("JOSE  PEREZ", 1)
	d.Push("Ana Gómez", 2)
	d.Push("jose perez", 3)

	out := d.Results()
	if len(out) != 2 {
		t.Fatalf("expected 2 entities, got %d: %+v", len(out), out)
	}
	if out[0].Display != "José Pérez" || out[0].Canonical != "jose perez" {
		t.Fatalf("unexpected first entity: %+v", out[0])
	}
	if !reflect.DeepEqual(out[0].Pages, []int{1, 3}) {
		t.Fatalf("expected pages [1 3], got %v", out[0].Pages)
	}
	if out[1].Display != "Ana Gómez" {
		t.Fatalf("expected first-push order, got %+v", out[1])
	}
}

func TestExact_DoesNotFold(t *testing.T) {
	d := NewExact()
	d.Push("12345678", 1)
	d.Push("012345678", 1)
	d.Push("12345678", 2)
	if d.Len() != 2 {
		t.Fatalf("expected 2 entities, got %d", d.Len())
	}
	if !reflect.DeepEqual(d.Values(), []string{"12345678", "012345678"}) {
		t.Fatalf("unexpected values %v", d.Values())
	}
	if !d.Has("12345678") || d.Has("1234") {
		t.Fatalf("Has mismatch")
	}
}

func TestPagesStrictlyAscending(t *testing.T) {
	d := NewExact()
	for _, p := range []int{5, 2, 9, 2, 1, 5, 7} {
		d.Push("x", p)
	}
	got := d.Results()[0].Pages
	want := []int{1, 2, 5, 7, 9}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestPush_IgnoresEmpty(t *testing.T) {
	d := NewNames()
	d.Push("   ", 1)
	d.Push("", 1)
	if d.Len() != 0 {
		t.Fatalf("expected no entities, got %d", d.Len())
	}
}

func TestResults_AreCopies(t *testing.T) {
	d := NewExact()
	d.Push("1", 1)
	out := d.Results()
	out[0].Pages[0] = 99
	if d.Results()[0].Pages[0] != 1 {
		t.Fatalf("Results must not expose internal page slices")
	}
}

func TestCandidate_Overlaps(t *testing.T) {
	a := Candidate{Start: 0, End: 10}
	if !a.Overlaps(Candidate{Start: 9, End: 12}) {
		t.Fatalf("expected overlap")
	}
	if a.Overlaps(Candidate{Start: 10, End: 12}) {
		t.Fatalf("adjacent spans must not overlap")
	}
}
