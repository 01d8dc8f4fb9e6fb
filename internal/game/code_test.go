package game

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalizeCode(t *testing.T) {
	got, err := NormalizeCode("  abc234 ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "ABC234" {
		t.Fatalf("expected ABC234, got %s", got)
	}
	for _, bad := range []string{"", "ABC", "ABCDEFG", "ABCDE0", "ABCDEI", "ABC-23"} {
		if _, err := NormalizeCode(bad); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("%q: expected invalid code, got %v", bad, err)
		}
	}
}

func TestRandomCodeIsNormalized(t *testing.T) {
	for i := 0; i < 100; i++ {
		c := randomCode(CodeLength)
		if got, err := NormalizeCode(c); err != nil || got != c {
			t.Fatalf("generated code %q does not normalize to itself: %v", c, err)
		}
	}
}

func TestParseTracklist(t *testing.T) {
	got := ParseTracklist("Airbag\r\n\n  Paranoid Android  \n\t\nSubterranean Homesick Alien\n")
	want := []string{"Airbag", "Paranoid Android", "Subterranean Homesick Alien"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := ParseTracklist("   \n"); len(got) != 0 {
		t.Fatalf("expected no titles, got %v", got)
	}
}

func TestNewRoster(t *testing.T) {
	r := NewRoster("ABCDEF", [RosterSize]string{"A", "B", "C", "D"})
	if len(r) != RosterSize {
		t.Fatalf("expected %d slots, got %d", RosterSize, len(r))
	}
	for i, p := range r {
		if p.ParticipantID != RosterIDs[i] || p.Claimed || p.SessionCode != "ABCDEF" {
			t.Fatalf("unexpected slot %d: %+v", i, p)
		}
	}
	if r[2].Name != "C" {
		t.Fatalf("expected name C, got %s", r[2].Name)
	}
}

func TestErrorMatchesByCode(t *testing.T) {
	err := ErrInvalidScore.with(map[string]string{"score": "11"})
	if !errors.Is(err, ErrInvalidScore) || errors.Is(err, ErrEmptyTitle) {
		t.Fatal("error copies should match their sentinel only")
	}
	wrapped := Unavailable("get session", errors.New("dial tcp: refused"))
	if KindOf(wrapped) != KindUnavailable || !AsError(wrapped).Retryable() {
		t.Fatalf("expected retryable unavailable, got %v", wrapped)
	}
	if Unavailable("noop", nil) != nil {
		t.Fatal("nil cause should stay nil")
	}
	if Unavailable("passthrough", ErrSlotClaimed) != ErrSlotClaimed {
		t.Fatal("tagged errors should pass through unchanged")
	}
	partial := PartialReplace("ABCDEF", 3, 0, errors.New("boom"))
	if e := AsError(partial); e.Kind != KindPartialSequence || e.Meta["deleted"] != "3" {
		t.Fatalf("unexpected partial error: %+v", e)
	}
	if AsError(errors.New("x")).Kind != KindInternal {
		t.Fatal("foreign errors should be internal")
	}
}
