// Package memory is an in-process game.Store used for single-box parties and
// tests. State is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiliankoe/albumnight/internal/game"
)

type room struct {
	session      game.Session
	participants map[game.ParticipantID]*game.Participant
	songs        []game.Song
	scores       map[scoreKey]*game.ScoreRow
}

type scoreKey struct {
	songIndex int
	pid       game.ParticipantID
}

type Store struct {
	mu    sync.RWMutex
	rooms map[string]*room
	now   func() time.Time
}

func New() *Store {
	return &Store{rooms: make(map[string]*room), now: time.Now}
}

func (st *Store) get(code string) (*room, error) {
	r := st.rooms[code]
	if r == nil {
		return nil, game.ErrSessionNotFound
	}
	return r, nil
}

func (st *Store) CreateSession(ctx context.Context, s game.Session, roster []game.Participant) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.rooms[s.Code] != nil {
		return game.ErrSessionExists
	}
	r := &room{
		session:      s,
		participants: make(map[game.ParticipantID]*game.Participant, len(roster)),
		scores:       make(map[scoreKey]*game.ScoreRow),
	}
	for _, p := range roster {
		p := p
		r.participants[p.ParticipantID] = &p
	}
	st.rooms[s.Code] = r
	return nil
}

func (st *Store) GetSession(ctx context.Context, code string) (game.Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	r, err := st.get(code)
	if err != nil {
		return game.Session{}, err
	}
	return r.session, nil
}

func (st *Store) ListParticipants(ctx context.Context, code string) ([]game.Participant, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	r, err := st.get(code)
	if err != nil {
		return nil, err
	}
	out := make([]game.Participant, 0, len(r.participants))
	for _, id := range game.RosterIDs {
		if p := r.participants[id]; p != nil {
			cp := *p
			if p.ClaimedAt != nil {
				at := *p.ClaimedAt
				cp.ClaimedAt = &at
			}
			out = append(out, cp)
		}
	}
	return out, nil
}

func (st *Store) ListSongs(ctx context.Context, code string) ([]game.Song, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	r, err := st.get(code)
	if err != nil {
		return nil, err
	}
	return append([]game.Song(nil), r.songs...), nil
}

func (st *Store) ListScores(ctx context.Context, code string) ([]game.ScoreRow, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	r, err := st.get(code)
	if err != nil {
		return nil, err
	}
	out := make([]game.ScoreRow, 0, len(r.scores))
	for _, s := range r.scores {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SongIndex != out[j].SongIndex {
			return out[i].SongIndex < out[j].SongIndex
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (st *Store) UpsertScore(ctx context.Context, code string, songIndex int, pid game.ParticipantID, score int) (game.ScoreRow, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	r, err := st.get(code)
	if err != nil {
		return game.ScoreRow{}, err
	}
	if !game.CanScore(r.session, songIndex) {
		return game.ScoreRow{}, game.ErrScoringClosed
	}
	now := st.now().UTC()
	k := scoreKey{songIndex: songIndex, pid: pid}
	row := r.scores[k]
	if row == nil {
		row = &game.ScoreRow{
			ID:            uuid.NewString(),
			SessionCode:   code,
			SongIndex:     songIndex,
			ParticipantID: pid,
			CreatedAt:     now,
		}
		r.scores[k] = row
	}
	row.Score = score
	row.SubmittedAt = now
	return *row, nil
}

func (st *Store) ReplaceSongs(ctx context.Context, code string, titles []string) error {
	if len(titles) > game.MaxSongs {
		return game.ErrTooManySongs
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	r, err := st.get(code)
	if err != nil {
		return err
	}
	if r.session.Status != game.StatusLobby {
		return game.ErrStatusChanged
	}
	now := st.now().UTC()
	songs := make([]game.Song, 0, len(titles))
	for i, t := range titles {
		songs = append(songs, game.Song{
			ID:          uuid.NewString(),
			SessionCode: code,
			OrderIndex:  i,
			Title:       t,
			CreatedAt:   now,
		})
	}
	r.songs = songs
	return nil
}

func (st *Store) UpdateSession(ctx context.Context, code string, patch game.SessionPatch) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	r, err := st.get(code)
	if err != nil {
		return err
	}
	if !patch.Matches(r.session) || (patch.RequireSongs && len(r.songs) == 0) {
		return game.ErrStatusChanged
	}
	r.session = patch.Apply(r.session)
	return nil
}

func (st *Store) ClaimParticipant(ctx context.Context, code string, pid game.ParticipantID, at time.Time) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	r, err := st.get(code)
	if err != nil {
		return err
	}
	p := r.participants[pid]
	if p == nil {
		return game.ErrUnknownSlot
	}
	if p.Claimed {
		return game.ErrSlotClaimed
	}
	p.Claimed = true
	p.ClaimedAt = &at
	return nil
}

func (st *Store) ResetSession(ctx context.Context, code string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	r, err := st.get(code)
	if err != nil {
		return err
	}
	r.scores = make(map[scoreKey]*game.ScoreRow)
	for _, p := range r.participants {
		p.Claimed = false
		p.ClaimedAt = nil
	}
	r.session.Status = game.StatusLobby
	r.session.SongIndex = 0
	r.session.Locked = false
	return nil
}
