package game

import (
	"context"
	"time"
)

// Store is the record store behind a session. Every write touches a single
// logical record set and must be atomic on its own; the Service sequences
// multi-step work.
type Store interface {
	CreateSession(ctx context.Context, s Session, roster []Participant) error
	GetSession(ctx context.Context, code string) (Session, error)
	ListParticipants(ctx context.Context, code string) ([]Participant, error)
	// ListSongs returns songs ordered by OrderIndex.
	ListSongs(ctx context.Context, code string) ([]Song, error)
	ListScores(ctx context.Context, code string) ([]ScoreRow, error)

	// UpsertScore writes one score keyed by (code, songIndex, participant).
	// It fails with ErrScoringClosed unless the session is in_song, unlocked
	// and on songIndex at the moment of the write.
	UpsertScore(ctx context.Context, code string, songIndex int, pid ParticipantID, score int) (ScoreRow, error)
	// ReplaceSongs deletes every song and inserts titles in order. Both steps
	// only apply while the session is in lobby, checked atomically with each
	// write; ErrStatusChanged otherwise. A failure after the delete is
	// reported with PartialReplace.
	ReplaceSongs(ctx context.Context, code string, titles []string) error
	// UpdateSession applies patch in one write; ErrStatusChanged when the
	// stored session no longer matches the patch's Expect fields or
	// RequireSongs finds no songs.
	UpdateSession(ctx context.Context, code string, patch SessionPatch) error
	// ClaimParticipant binds an unclaimed slot; ErrSlotClaimed otherwise.
	ClaimParticipant(ctx context.Context, code string, pid ParticipantID, at time.Time) error
	// ResetSession clears scores, unclaims every slot and puts the session
	// back in lobby on song 0, unlocked.
	ResetSession(ctx context.Context, code string) error
}

// Change is the notification fanned out after every successful write. It
// carries no state: receivers re-read the snapshot.
type Change struct {
	Code       string    `json:"code"`
	Collection string    `json:"collection"`
	Action     string    `json:"action"`
	Status     Status    `json:"status,omitempty"`
	At         time.Time `json:"at"`
}

const (
	CollectionSessions     = "sessions"
	CollectionParticipants = "participants"
	CollectionSongs        = "songs"
	CollectionScores       = "scores"
)

type Notifier interface {
	Notify(ctx context.Context, c Change) error
}

// Notifiers fans a change out to several notifiers, returning the first error.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, c Change) error {
	var first error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, c); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Binding ties a device to one participant slot for as long as that claim
// stands.
type Binding struct {
	Code          string        `json:"code"`
	ParticipantID ParticipantID `json:"participant_id"`
	ClaimedAt     time.Time     `json:"claimed_at"`
}

// Binder issues and verifies device tokens.
type Binder interface {
	Issue(b Binding) (string, error)
	Verify(token string) (Binding, error)
}
