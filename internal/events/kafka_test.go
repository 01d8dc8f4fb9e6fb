package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kiliankoe/albumnight/internal/game"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestTypeOf(t *testing.T) {
	cases := []struct {
		change game.Change
		want   EventType
	}{
		{game.Change{Collection: game.CollectionSessions, Action: "create"}, EventTypeSessionCreated},
		{game.Change{Collection: game.CollectionParticipants, Action: "claim"}, EventTypeParticipantClaim},
		{game.Change{Collection: game.CollectionScores, Action: "submit"}, EventTypeScoreSubmitted},
		{game.Change{Collection: game.CollectionSongs, Action: "replace_songs"}, EventTypeSongsReplaced},
		{game.Change{Collection: game.CollectionSessions, Action: "reset"}, EventTypeSessionReset},
		{game.Change{Collection: game.CollectionSessions, Action: "lock"}, EventTypePhaseChanged},
	}
	for _, tc := range cases {
		if got := TypeOf(tc.change); got != tc.want {
			t.Fatalf("TypeOf(%+v) = %s, want %s", tc.change, got, tc.want)
		}
	}
}

func TestSinkKeysBySession(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}
	at := time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)
	c := game.Change{Code: "ABCDEF", Collection: game.CollectionSessions, Action: "advance", Status: game.StatusResults, At: at}

	if err := sink.Notify(context.Background(), c); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "ABCDEF" {
		t.Fatalf("expected key ABCDEF, got %q", w.msgs[0].Key)
	}
	var ev Event
	if err := json.Unmarshal(w.msgs[0].Value, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != EventTypePhaseChanged || ev.Code != "ABCDEF" || !ev.Timestamp.Equal(at) {
		t.Fatalf("unexpected event: %+v", ev)
	}
	var payload game.Change
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Status != game.StatusResults {
		t.Fatalf("expected results status in payload, got %s", payload.Status)
	}
}

func TestSinkWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	sink := &KafkaSink{writer: &fakeWriter{err: boom}}
	err := sink.Notify(context.Background(), game.Change{Code: "ABCDEF"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}
