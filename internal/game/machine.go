package game

import (
	"strconv"
	"strings"
)

// Event is an admin command against the session lifecycle.
type Event string

const (
	EventStart        Event = "start"
	EventLock         Event = "lock"
	EventAdvance      Event = "advance"
	EventShowAwards   Event = "awards"
	EventFinish       Event = "finish"
	EventReset        Event = "reset"
	EventRename       Event = "rename"
	EventReplaceSongs Event = "replace_songs"
)

func (e Event) Valid() bool {
	switch e {
	case EventStart, EventLock, EventAdvance, EventShowAwards, EventFinish, EventReset, EventRename, EventReplaceSongs:
		return true
	}
	return false
}

// Input carries what a transition needs to know beyond the session itself.
type Input struct {
	SongCount int
	Submitted int
	Title     string
	Titles    []string
	// StrictLock turns the "all four submitted" lock-in warning into a guard.
	StrictLock bool
}

// Transition decides the partial session update for ev. It never touches the
// store; the returned patch is compare-and-set on the current status, song
// index and lock, except for reset which is legal from every state.
func Transition(s Session, ev Event, in Input) (SessionPatch, error) {
	from := s.Status
	// Decisions are made against s, so the write must find s unchanged.
	guarded := func(p SessionPatch) SessionPatch {
		p.ExpectStatus = ptr(from)
		p.ExpectSongIndex = ptr(s.SongIndex)
		p.ExpectLocked = ptr(s.Locked)
		return p
	}
	reject := func() (SessionPatch, error) {
		return SessionPatch{}, ErrInvalidPhase.with(map[string]string{"status": string(from), "event": string(ev)})
	}

	switch ev {
	case EventReset:
		return SessionPatch{Status: ptr(StatusLobby), SongIndex: ptr(0), Locked: ptr(false)}, nil

	case EventRename:
		if from != StatusLobby {
			return reject()
		}
		title := strings.TrimSpace(in.Title)
		if title == "" {
			return SessionPatch{}, ErrEmptyTitle
		}
		return guarded(SessionPatch{Title: &title}), nil

	case EventReplaceSongs:
		if from != StatusLobby {
			return reject()
		}
		if len(in.Titles) > MaxSongs {
			return SessionPatch{}, ErrTooManySongs.with(map[string]string{"count": strconv.Itoa(len(in.Titles)), "max": strconv.Itoa(MaxSongs)})
		}
		return guarded(SessionPatch{}), nil

	case EventStart:
		if from != StatusLobby {
			return reject()
		}
		if in.SongCount == 0 {
			return SessionPatch{}, ErrNoSongs
		}
		p := guarded(SessionPatch{Status: ptr(StatusInSong), SongIndex: ptr(0), Locked: ptr(false)})
		p.RequireSongs = true
		return p, nil

	case EventLock:
		if from != StatusInSong {
			return reject()
		}
		if in.StrictLock && in.Submitted < RosterSize {
			return SessionPatch{}, ErrNotAllSubmitted.with(map[string]string{"submitted": strconv.Itoa(in.Submitted)})
		}
		return guarded(SessionPatch{Status: ptr(StatusRevealing), Locked: ptr(true)}), nil

	case EventAdvance:
		if from != StatusRevealing {
			return reject()
		}
		next := s.SongIndex + 1
		if next < in.SongCount {
			return guarded(SessionPatch{Status: ptr(StatusInSong), SongIndex: &next, Locked: ptr(false)}), nil
		}
		return guarded(SessionPatch{Status: ptr(StatusResults), Locked: ptr(false)}), nil

	case EventShowAwards:
		if from != StatusResults {
			return reject()
		}
		return guarded(SessionPatch{Status: ptr(StatusFinalReveal)}), nil

	case EventFinish:
		if from != StatusFinalReveal {
			return reject()
		}
		return guarded(SessionPatch{Status: ptr(StatusComplete)}), nil
	}
	return reject()
}

// Apply returns s with p applied, ignoring ExpectStatus.
func (p SessionPatch) Apply(s Session) Session {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.SongIndex != nil {
		s.SongIndex = *p.SongIndex
	}
	if p.Locked != nil {
		s.Locked = *p.Locked
	}
	return s
}

// CanScore reports whether a score for songIndex may be written now.
func CanScore(s Session, songIndex int) bool {
	return s.Status == StatusInSong && !s.Locked && s.SongIndex == songIndex
}
