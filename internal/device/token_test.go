package device

import (
	"errors"
	"testing"
	"time"

	"github.com/kiliankoe/albumnight/internal/game"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	b, err := NewBinder("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new binder: %v", err)
	}
	at := time.Date(2026, 3, 1, 20, 0, 0, 123_000_000, time.UTC)
	tok, err := b.Issue(game.Binding{Code: "ABCDEF", ParticipantID: game.ParticipantLee, ClaimedAt: at})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, err := b.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Code != "ABCDEF" || got.ParticipantID != game.ParticipantLee {
		t.Fatalf("unexpected binding: %+v", got)
	}
	if !got.ClaimedAt.Equal(at) {
		t.Fatalf("expected claimed_at %v, got %v", at, got.ClaimedAt)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	a, _ := NewBinder("one", 0)
	b, _ := NewBinder("two", 0)
	tok, err := a.Issue(game.Binding{Code: "ABCDEF", ParticipantID: game.ParticipantBen, ClaimedAt: time.Now()})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(tok); !errors.Is(err, game.ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	b, _ := NewBinder("secret", time.Minute)
	start := time.Now()
	b.now = func() time.Time { return start }
	tok, err := b.Issue(game.Binding{Code: "ABCDEF", ParticipantID: game.ParticipantSteph, ClaimedAt: start})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = b.Verify(tok)
	if game.KindOf(err) != game.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	b, _ := NewBinder("", 0)
	if _, err := b.Verify(""); !errors.Is(err, game.ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
}
