package game

import (
	"time"
)

type Status string

const (
	StatusLobby       Status = "lobby"
	StatusInSong      Status = "in_song"
	StatusRevealing   Status = "revealing"
	StatusResults     Status = "results"
	StatusFinalReveal Status = "final_reveal"
	StatusComplete    Status = "complete"
)

func (s Status) Valid() bool {
	switch s {
	case StatusLobby, StatusInSong, StatusRevealing, StatusResults, StatusFinalReveal, StatusComplete:
		return true
	}
	return false
}

type ParticipantID string

const (
	ParticipantJames ParticipantID = "james"
	ParticipantLee   ParticipantID = "lee"
	ParticipantBen   ParticipantID = "ben"
	ParticipantSteph ParticipantID = "steph"
)

// RosterSize is the fixed number of participant slots in every session.
const RosterSize = 4

// RosterIDs lists the slot identifiers in roster order. Roster order is the
// tie-break order for participant awards.
var RosterIDs = [RosterSize]ParticipantID{ParticipantJames, ParticipantLee, ParticipantBen, ParticipantSteph}

func (id ParticipantID) Valid() bool {
	for _, r := range RosterIDs {
		if r == id {
			return true
		}
	}
	return false
}

const (
	MinScore = 1
	MaxScore = 10
)

// MaxSongs caps one track list.
const MaxSongs = 100

type Session struct {
	Code       string    `json:"code"`
	Title      string    `json:"title"`
	Status     Status    `json:"status"`
	SongIndex  int       `json:"song_index"`
	Locked     bool      `json:"locked"`
	CreatedAt  time.Time `json:"created_at"`
	AdminToken string    `json:"-"`
}

type Participant struct {
	SessionCode   string        `json:"session_code"`
	ParticipantID ParticipantID `json:"participant_id"`
	Name          string        `json:"name"`
	AvatarURL     *string       `json:"avatar_url"`
	Claimed       bool          `json:"claimed"`
	ClaimedAt     *time.Time    `json:"claimed_at"`
}

type Song struct {
	ID          string    `json:"id"`
	SessionCode string    `json:"session_code"`
	OrderIndex  int       `json:"order_index"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
}

type ScoreRow struct {
	ID            string        `json:"id"`
	SessionCode   string        `json:"session_code"`
	SongIndex     int           `json:"song_index"`
	ParticipantID ParticipantID `json:"participant_id"`
	Score         int           `json:"score"`
	CreatedAt     time.Time     `json:"created_at"`
	SubmittedAt   time.Time     `json:"submitted_at"`
}

// SessionPatch is a partial update of the session record. Nil fields are left
// untouched. The Expect fields make the update conditional on the stored
// session still matching them; RequireSongs additionally needs a non-empty
// song list at the moment of the write.
type SessionPatch struct {
	ExpectStatus    *Status
	ExpectSongIndex *int
	ExpectLocked    *bool
	RequireSongs    bool

	Title     *string
	Status    *Status
	SongIndex *int
	Locked    *bool
}

// Matches reports whether s satisfies the patch's Expect fields.
func (p SessionPatch) Matches(s Session) bool {
	if p.ExpectStatus != nil && *p.ExpectStatus != s.Status {
		return false
	}
	if p.ExpectSongIndex != nil && *p.ExpectSongIndex != s.SongIndex {
		return false
	}
	if p.ExpectLocked != nil && *p.ExpectLocked != s.Locked {
		return false
	}
	return true
}

// Snapshot is a full read of one session's four record collections.
type Snapshot struct {
	Session      Session       `json:"session"`
	Participants []Participant `json:"participants"`
	Songs        []Song        `json:"songs"`
	Scores       []ScoreRow    `json:"scores"`
}

func ptr[T any](v T) *T { return &v }
