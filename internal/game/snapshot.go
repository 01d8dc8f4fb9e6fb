package game

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
)

// Results is the derived read surface used by the TV and results displays.
type Results struct {
	Snapshot
	CurrentSong      *Song                  `json:"currentSong"`
	Submitted        int                    `json:"submitted"`
	SubmissionStatus map[ParticipantID]bool `json:"submissionStatus"`
	Claimed          int                    `json:"claimed"`
	SongStats        []SongStat             `json:"songStats"`
	Awards           Awards                 `json:"awards"`
}

// Derive computes every aggregate the displays need from one snapshot.
func Derive(snap Snapshot) Results {
	claimed := 0
	for _, p := range snap.Participants {
		if p.Claimed {
			claimed++
		}
	}
	idx := snap.Session.SongIndex
	return Results{
		Snapshot:         snap,
		CurrentSong:      CurrentSong(snap.Songs, idx),
		Submitted:        SubmittedCount(snap.Scores, idx),
		SubmissionStatus: SubmissionStatus(snap.Participants, snap.Scores, idx),
		Claimed:          claimed,
		SongStats:        SongStats(snap.Songs, snap.Scores),
		Awards:           ComputeAwards(snap.Participants, snap.Scores, snap.Songs),
	}
}

// readSnapshot fetches the four collections concurrently.
func readSnapshot(ctx context.Context, st Store, code string) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Session, err = st.GetSession(ctx, code)
		return err
	})
	g.Go(func() (err error) {
		snap.Participants, err = st.ListParticipants(ctx, code)
		return err
	})
	g.Go(func() (err error) {
		snap.Songs, err = st.ListSongs(ctx, code)
		return err
	})
	g.Go(func() (err error) {
		snap.Scores, err = st.ListScores(ctx, code)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// retryRead repeats a side-effect-free read while the store is unavailable.
func retryRead[T any](ctx context.Context, tries uint, read func() (T, error)) (T, error) {
	if tries <= 1 {
		return read()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	return backoff.Retry(ctx, func() (T, error) {
		v, err := read()
		if err != nil && KindOf(err) != KindUnavailable {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
}
