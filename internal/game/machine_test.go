package game

import (
	"errors"
	"testing"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		name   string
		from   Session
		ev     Event
		in     Input
		status Status
		index  int
		locked bool
	}{
		{"start", Session{Status: StatusLobby}, EventStart, Input{SongCount: 3}, StatusInSong, 0, false},
		{"lock", Session{Status: StatusInSong, SongIndex: 1}, EventLock, Input{SongCount: 3, Submitted: 4}, StatusRevealing, 1, true},
		{"lock early", Session{Status: StatusInSong}, EventLock, Input{SongCount: 3, Submitted: 1}, StatusRevealing, 0, true},
		{"advance to next song", Session{Status: StatusRevealing, SongIndex: 0, Locked: true}, EventAdvance, Input{SongCount: 3}, StatusInSong, 1, false},
		{"advance past last", Session{Status: StatusRevealing, SongIndex: 2, Locked: true}, EventAdvance, Input{SongCount: 3}, StatusResults, 2, false},
		{"awards", Session{Status: StatusResults, SongIndex: 2}, EventShowAwards, Input{}, StatusFinalReveal, 2, false},
		{"finish", Session{Status: StatusFinalReveal, SongIndex: 2}, EventFinish, Input{}, StatusComplete, 2, false},
		{"reset from complete", Session{Status: StatusComplete, SongIndex: 2}, EventReset, Input{}, StatusLobby, 0, false},
		{"reset mid song", Session{Status: StatusRevealing, SongIndex: 1, Locked: true}, EventReset, Input{}, StatusLobby, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Transition(tc.from, tc.ev, tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := p.Apply(tc.from)
			if got.Status != tc.status || got.SongIndex != tc.index || got.Locked != tc.locked {
				t.Fatalf("expected %s/%d/%v, got %s/%d/%v", tc.status, tc.index, tc.locked, got.Status, got.SongIndex, got.Locked)
			}
			if tc.ev == EventReset {
				if p.ExpectStatus != nil {
					t.Fatal("reset must not be conditional on status")
				}
			} else {
				if p.ExpectStatus == nil || *p.ExpectStatus != tc.from.Status {
					t.Fatalf("expected patch guarded on %s", tc.from.Status)
				}
				if p.ExpectSongIndex == nil || *p.ExpectSongIndex != tc.from.SongIndex || p.ExpectLocked == nil || *p.ExpectLocked != tc.from.Locked {
					t.Fatal("expected patch guarded on song index and lock")
				}
				if !p.Matches(tc.from) || p.Matches(got) {
					t.Fatal("patch should match the session it was decided on, not its result")
				}
			}
			if p.RequireSongs != (tc.ev == EventStart) {
				t.Fatalf("require songs = %v for %s", p.RequireSongs, tc.ev)
			}
		})
	}
}

func TestTransitionRejectsWrongPhase(t *testing.T) {
	legal := map[Event]Status{
		EventStart:        StatusLobby,
		EventRename:       StatusLobby,
		EventReplaceSongs: StatusLobby,
		EventLock:         StatusInSong,
		EventAdvance:      StatusRevealing,
		EventShowAwards:   StatusResults,
		EventFinish:       StatusFinalReveal,
	}
	all := []Status{StatusLobby, StatusInSong, StatusRevealing, StatusResults, StatusFinalReveal, StatusComplete}
	for ev, ok := range legal {
		for _, st := range all {
			if st == ok {
				continue
			}
			_, err := Transition(Session{Status: st}, ev, Input{SongCount: 2, Title: "x"})
			if !errors.Is(err, ErrInvalidPhase) {
				t.Fatalf("%s from %s: expected invalid phase, got %v", ev, st, err)
			}
			if KindOf(err) != KindGuard {
				t.Fatalf("%s from %s: expected guard kind, got %s", ev, st, KindOf(err))
			}
		}
	}
}

func TestStartRequiresSongs(t *testing.T) {
	_, err := Transition(Session{Status: StatusLobby}, EventStart, Input{})
	if !errors.Is(err, ErrNoSongs) {
		t.Fatalf("expected no songs error, got %v", err)
	}
}

func TestStrictLock(t *testing.T) {
	s := Session{Status: StatusInSong}
	_, err := Transition(s, EventLock, Input{SongCount: 1, Submitted: 3, StrictLock: true})
	if !errors.Is(err, ErrNotAllSubmitted) {
		t.Fatalf("expected not all submitted, got %v", err)
	}
	if e := AsError(err); e.Meta["submitted"] != "3" {
		t.Fatalf("expected submitted count in meta, got %v", e.Meta)
	}
	if _, err := Transition(s, EventLock, Input{SongCount: 1, Submitted: 4, StrictLock: true}); err != nil {
		t.Fatalf("lock with all scores in: %v", err)
	}
}

func TestRenameTrimsAndRejectsEmpty(t *testing.T) {
	p, err := Transition(Session{Status: StatusLobby}, EventRename, Input{Title: "  Kid A "})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if p.Title == nil || *p.Title != "Kid A" {
		t.Fatalf("expected trimmed title, got %v", p.Title)
	}
	if _, err := Transition(Session{Status: StatusLobby}, EventRename, Input{Title: " \t"}); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("expected empty title error, got %v", err)
	}
}

func TestUnknownEvent(t *testing.T) {
	if Event("skip").Valid() {
		t.Fatal("skip is not an event")
	}
	if _, err := Transition(Session{Status: StatusLobby}, Event("skip"), Input{}); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected invalid phase, got %v", err)
	}
}

func TestCanScore(t *testing.T) {
	open := Session{Status: StatusInSong, SongIndex: 2}
	if !CanScore(open, 2) {
		t.Fatal("expected scoring open")
	}
	if CanScore(open, 1) {
		t.Fatal("scoring a different song must be refused")
	}
	open.Locked = true
	if CanScore(open, 2) {
		t.Fatal("locked song must refuse scores")
	}
	if CanScore(Session{Status: StatusRevealing, SongIndex: 2}, 2) {
		t.Fatal("revealing must refuse scores")
	}
}

func TestReplaceSongsCap(t *testing.T) {
	lobby := Session{Status: StatusLobby}
	if _, err := Transition(lobby, EventReplaceSongs, Input{Titles: make([]string, MaxSongs)}); err != nil {
		t.Fatalf("replace at the cap: %v", err)
	}
	_, err := Transition(lobby, EventReplaceSongs, Input{Titles: make([]string, MaxSongs+1)})
	if !errors.Is(err, ErrTooManySongs) {
		t.Fatalf("expected too many songs, got %v", err)
	}
}
