// Package storetest holds the behaviour every game.Store must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kiliankoe/albumnight/internal/game"
)

// Run exercises st against the store contract. Codes are derived from prefix
// so several runs can share one database.
func Run(t *testing.T, prefix string, newStore func(t *testing.T) game.Store) {
	t.Helper()
	n := 0
	code := func() string {
		n++
		c := prefix + string("ABCDEFGHJKLMNPQRSTUVWXYZ"[n%24])
		for len(c) < game.CodeLength {
			c += "2"
		}
		return c[:game.CodeLength]
	}

	t.Run("GuardedUpsert", func(t *testing.T) { testGuardedUpsert(t, newStore(t), code()) })
	t.Run("CompareAndSet", func(t *testing.T) { testCompareAndSet(t, newStore(t), code()) })
	t.Run("StaleSongIndex", func(t *testing.T) { testStaleSongIndex(t, newStore(t), code()) })
	t.Run("RequireSongs", func(t *testing.T) { testRequireSongs(t, newStore(t), code()) })
	t.Run("ReplaceOnlyInLobby", func(t *testing.T) { testReplaceOnlyInLobby(t, newStore(t), code()) })
	t.Run("ReplaceCapped", func(t *testing.T) { testReplaceCapped(t, newStore(t), code()) })
	t.Run("ClaimOnce", func(t *testing.T) { testClaimOnce(t, newStore(t), code()) })
	t.Run("ResetIsTotal", func(t *testing.T) { testReset(t, newStore(t), code()) })
	t.Run("ConcurrentSubmit", func(t *testing.T) { testConcurrentSubmit(t, newStore(t), code()) })
}

func seed(t *testing.T, st game.Store, code string, songs ...string) {
	t.Helper()
	ctx := context.Background()
	sess := game.Session{Code: code, Title: "Album Night", Status: game.StatusLobby, CreatedAt: time.Now().UTC(), AdminToken: "admin"}
	if err := st.CreateSession(ctx, sess, game.NewRoster(code, game.DefaultRosterNames)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(songs) > 0 {
		if err := st.ReplaceSongs(ctx, code, songs); err != nil {
			t.Fatalf("replace songs: %v", err)
		}
	}
}

func open(t *testing.T, st game.Store, code string, idx int) {
	t.Helper()
	s, i, f := game.StatusInSong, idx, false
	if err := st.UpdateSession(context.Background(), code, game.SessionPatch{Status: &s, SongIndex: &i, Locked: &f}); err != nil {
		t.Fatalf("open song %d: %v", idx, err)
	}
}

func testGuardedUpsert(t *testing.T, st game.Store, code string) {
	ctx := context.Background()
	seed(t, st, code, "One", "Two")

	if _, err := st.UpsertScore(ctx, code, 0, game.ParticipantJames, 5); !errors.Is(err, game.ErrScoringClosed) {
		t.Fatalf("expected scoring closed in lobby, got %v", err)
	}
	open(t, st, code, 0)
	if _, err := st.UpsertScore(ctx, code, 0, game.ParticipantJames, 5); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	row, err := st.UpsertScore(ctx, code, 0, game.ParticipantJames, 8)
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if row.Score != 8 {
		t.Fatalf("expected score 8, got %d", row.Score)
	}
	if _, err := st.UpsertScore(ctx, code, 1, game.ParticipantJames, 5); !errors.Is(err, game.ErrScoringClosed) {
		t.Fatalf("expected scoring closed for a future song, got %v", err)
	}

	rev, locked := game.StatusRevealing, true
	if err := st.UpdateSession(ctx, code, game.SessionPatch{Status: &rev, Locked: &locked}); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := st.UpsertScore(ctx, code, 0, game.ParticipantLee, 5); !errors.Is(err, game.ErrScoringClosed) {
		t.Fatalf("expected scoring closed after lock, got %v", err)
	}

	scores, err := st.ListScores(ctx, code)
	if err != nil {
		t.Fatalf("list scores: %v", err)
	}
	if len(scores) != 1 || scores[0].Score != 8 || scores[0].ParticipantID != game.ParticipantJames {
		t.Fatalf("unexpected scores: %+v", scores)
	}
}

func testCompareAndSet(t *testing.T, st game.Store, code string) {
	ctx := context.Background()
	seed(t, st, code, "One")

	lobby, inSong := game.StatusLobby, game.StatusInSong
	if err := st.UpdateSession(ctx, code, game.SessionPatch{ExpectStatus: &lobby, Status: &inSong}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := st.UpdateSession(ctx, code, game.SessionPatch{ExpectStatus: &lobby, Status: &inSong}); !errors.Is(err, game.ErrStatusChanged) {
		t.Fatalf("expected status changed on second start, got %v", err)
	}
	if err := st.UpdateSession(ctx, "ZZZZZZ", game.SessionPatch{Status: &inSong}); !errors.Is(err, game.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// testStaleSongIndex replays an advance decided on song 0 after the session
// moved on to song 1 and came back to revealing.
func testStaleSongIndex(t *testing.T, st game.Store, code string) {
	ctx := context.Background()
	seed(t, st, code, "One", "Two", "Three")
	rev, locked, idx := game.StatusRevealing, true, 1
	if err := st.UpdateSession(ctx, code, game.SessionPatch{Status: &rev, SongIndex: &idx, Locked: &locked}); err != nil {
		t.Fatalf("move to revealing/1: %v", err)
	}

	staleIdx, inSong, next, unlocked := 0, game.StatusInSong, 1, false
	err := st.UpdateSession(ctx, code, game.SessionPatch{
		ExpectStatus: &rev, ExpectSongIndex: &staleIdx, ExpectLocked: &locked,
		Status: &inSong, SongIndex: &next, Locked: &unlocked,
	})
	if !errors.Is(err, game.ErrStatusChanged) {
		t.Fatalf("expected status changed for a stale song index, got %v", err)
	}
	wasUnlocked := false
	err = st.UpdateSession(ctx, code, game.SessionPatch{
		ExpectStatus: &rev, ExpectSongIndex: &idx, ExpectLocked: &wasUnlocked,
		Status: &inSong,
	})
	if !errors.Is(err, game.ErrStatusChanged) {
		t.Fatalf("expected status changed for a stale lock, got %v", err)
	}
	sess, _ := st.GetSession(ctx, code)
	if sess.Status != game.StatusRevealing || sess.SongIndex != 1 || !sess.Locked {
		t.Fatalf("stale update applied: %+v", sess)
	}

	next = 2
	err = st.UpdateSession(ctx, code, game.SessionPatch{
		ExpectStatus: &rev, ExpectSongIndex: &idx, ExpectLocked: &locked,
		Status: &inSong, SongIndex: &next, Locked: &unlocked,
	})
	if err != nil {
		t.Fatalf("current update: %v", err)
	}
}

func testRequireSongs(t *testing.T, st game.Store, code string) {
	ctx := context.Background()
	seed(t, st, code)
	lobby, inSong := game.StatusLobby, game.StatusInSong
	start := game.SessionPatch{ExpectStatus: &lobby, Status: &inSong, RequireSongs: true}
	if err := st.UpdateSession(ctx, code, start); !errors.Is(err, game.ErrStatusChanged) {
		t.Fatalf("expected start without songs refused, got %v", err)
	}
	if sess, _ := st.GetSession(ctx, code); sess.Status != game.StatusLobby {
		t.Fatalf("status moved to %s", sess.Status)
	}
	if err := st.ReplaceSongs(ctx, code, []string{"One"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := st.UpdateSession(ctx, code, start); err != nil {
		t.Fatalf("start with songs: %v", err)
	}
}

func testReplaceOnlyInLobby(t *testing.T, st game.Store, code string) {
	ctx := context.Background()
	seed(t, st, code, "One", "Two")
	open(t, st, code, 0)

	for _, titles := range [][]string{{"X"}, nil} {
		if err := st.ReplaceSongs(ctx, code, titles); !errors.Is(err, game.ErrStatusChanged) {
			t.Fatalf("replace %v outside lobby: expected status changed, got %v", titles, err)
		}
	}
	songs, err := st.ListSongs(ctx, code)
	if err != nil {
		t.Fatalf("list songs: %v", err)
	}
	if len(songs) != 2 || songs[0].Title != "One" {
		t.Fatalf("song list changed outside lobby: %+v", songs)
	}
	if err := st.ReplaceSongs(ctx, "ZZZZZZ", []string{"X"}); !errors.Is(err, game.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// testReplaceCapped keeps one insert within every driver's bind limit.
func testReplaceCapped(t *testing.T, st game.Store, code string) {
	ctx := context.Background()
	seed(t, st, code, "One")
	titles := make([]string, game.MaxSongs+1)
	for i := range titles {
		titles[i] = fmt.Sprintf("Track %d", i+1)
	}
	if err := st.ReplaceSongs(ctx, code, titles); !errors.Is(err, game.ErrTooManySongs) {
		t.Fatalf("expected too many songs, got %v", err)
	}
	if songs, _ := st.ListSongs(ctx, code); len(songs) != 1 {
		t.Fatalf("expected the old list kept, got %d songs", len(songs))
	}
	if err := st.ReplaceSongs(ctx, code, titles[:game.MaxSongs]); err != nil {
		t.Fatalf("replace at the cap: %v", err)
	}
	songs, err := st.ListSongs(ctx, code)
	if err != nil {
		t.Fatalf("list songs: %v", err)
	}
	if len(songs) != game.MaxSongs || songs[game.MaxSongs-1].Title != fmt.Sprintf("Track %d", game.MaxSongs) {
		t.Fatalf("unexpected songs after a full replace: %d", len(songs))
	}
}

func testClaimOnce(t *testing.T, st game.Store, code string) {
	ctx := context.Background()
	seed(t, st, code)
	at := time.Now().UTC().Truncate(time.Millisecond)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- st.ClaimParticipant(ctx, code, game.ParticipantSteph, at)
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, game.ErrSlotClaimed):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", ok)
	}
}

func testReset(t *testing.T, st game.Store, code string) {
	ctx := context.Background()
	seed(t, st, code, "One", "Two")
	_ = st.ClaimParticipant(ctx, code, game.ParticipantJames, time.Now().UTC())
	open(t, st, code, 1)
	if _, err := st.UpsertScore(ctx, code, 1, game.ParticipantJames, 3); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := st.ResetSession(ctx, code); err != nil {
		t.Fatalf("reset: %v", err)
	}
	sess, err := st.GetSession(ctx, code)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Status != game.StatusLobby || sess.SongIndex != 0 || sess.Locked {
		t.Fatalf("unexpected session after reset: %+v", sess)
	}
	scores, _ := st.ListScores(ctx, code)
	if len(scores) != 0 {
		t.Fatalf("expected scores cleared, got %d", len(scores))
	}
	parts, _ := st.ListParticipants(ctx, code)
	for _, p := range parts {
		if p.Claimed {
			t.Fatalf("expected %s unclaimed", p.ParticipantID)
		}
	}
	songs, _ := st.ListSongs(ctx, code)
	if len(songs) != 2 {
		t.Fatalf("expected the song list to survive reset, got %d", len(songs))
	}
}

func testConcurrentSubmit(t *testing.T, st game.Store, code string) {
	ctx := context.Background()
	seed(t, st, code, "One")
	open(t, st, code, 0)

	var wg sync.WaitGroup
	for _, pid := range game.RosterIDs {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(pid game.ParticipantID, score int) {
				defer wg.Done()
				if _, err := st.UpsertScore(ctx, code, 0, pid, score); err != nil {
					t.Errorf("upsert %s: %v", pid, err)
				}
			}(pid, i+1)
		}
	}
	wg.Wait()

	scores, err := st.ListScores(ctx, code)
	if err != nil {
		t.Fatalf("list scores: %v", err)
	}
	if len(scores) != game.RosterSize {
		t.Fatalf("expected one score per participant, got %d", len(scores))
	}
}
