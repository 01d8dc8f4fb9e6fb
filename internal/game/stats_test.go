package game

import (
	"math"
	"testing"
)

func rows(songIndex int, scores map[ParticipantID]int) []ScoreRow {
	var out []ScoreRow
	for _, id := range RosterIDs {
		if v, ok := scores[id]; ok {
			out = append(out, ScoreRow{SongIndex: songIndex, ParticipantID: id, Score: v})
		}
	}
	return out
}

func roster() []Participant {
	return NewRoster("ABCDEF", DefaultRosterNames)
}

func songs(titles ...string) []Song {
	out := make([]Song, len(titles))
	for i, t := range titles {
		out[i] = Song{ID: t, SessionCode: "ABCDEF", OrderIndex: i, Title: t}
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSongAverageAndSpread(t *testing.T) {
	unanimous := rows(0, map[ParticipantID]int{ParticipantJames: 10, ParticipantLee: 10, ParticipantBen: 10, ParticipantSteph: 10})
	if got := SongAverage(unanimous); got != 10 {
		t.Fatalf("expected average 10, got %v", got)
	}
	if got := Spread(unanimous); got != 0 {
		t.Fatalf("expected spread 0, got %d", got)
	}

	split := rows(0, map[ParticipantID]int{ParticipantJames: 1, ParticipantLee: 5, ParticipantBen: 9, ParticipantSteph: 10})
	if got := SongAverage(split); !near(got, 6.25) {
		t.Fatalf("expected average 6.25, got %v", got)
	}
	if got := Spread(split); got != 9 {
		t.Fatalf("expected spread 9, got %d", got)
	}
}

func TestEmptyInputsAreZero(t *testing.T) {
	if SongAverage(nil) != 0 || Spread(nil) != 0 || ParticipantAverage(nil) != 0 {
		t.Fatal("empty score lists should produce 0")
	}
	one := []ScoreRow{{Score: 7}}
	if Spread(one) != 0 {
		t.Fatal("a single score has no spread")
	}

	aw := ComputeAwards(roster(), nil, songs("Airbag"))
	if aw.Stan != nil || aw.Hater != nil || aw.MostDivisive != nil || aw.HighestRated != nil || aw.LowestRated != nil {
		t.Fatalf("expected no awards without scores, got %+v", aw)
	}
	if aw.AlbumAvg != 0 {
		t.Fatalf("expected album average 0, got %v", aw.AlbumAvg)
	}
	for _, id := range RosterIDs {
		if avg, ok := aw.PersonAverages[id]; !ok || avg != 0 {
			t.Fatalf("expected 0 average entry for %s", id)
		}
	}
}

func TestAlbumAverageIsMeanOfPersonAverages(t *testing.T) {
	// James scores three songs, Lee only one, so the raw mean of all
	// scores differs from the mean of the per-person averages.
	var scores []ScoreRow
	scores = append(scores, rows(0, map[ParticipantID]int{ParticipantJames: 8, ParticipantLee: 2})...)
	scores = append(scores, rows(1, map[ParticipantID]int{ParticipantJames: 6})...)
	scores = append(scores, rows(2, map[ParticipantID]int{ParticipantJames: 10})...)

	aw := ComputeAwards(roster(), scores, songs("a", "b", "c"))
	if !near(aw.PersonAverages[ParticipantJames], 8) || !near(aw.PersonAverages[ParticipantLee], 2) {
		t.Fatalf("unexpected person averages: %v", aw.PersonAverages)
	}
	if !near(aw.AlbumAvg, 5) {
		t.Fatalf("expected album average 5, got %v", aw.AlbumAvg)
	}
	if raw := SongAverage(scores); near(raw, aw.AlbumAvg) {
		t.Fatalf("raw mean %v should differ from album average", raw)
	}
	if aw.Stan.Participant.ParticipantID != ParticipantJames || aw.Hater.Participant.ParticipantID != ParticipantLee {
		t.Fatalf("unexpected stan/hater: %+v %+v", aw.Stan, aw.Hater)
	}
}

func TestAwardsScenarioC(t *testing.T) {
	var scores []ScoreRow
	for i, pair := range [][2]int{{8, 2}, {6, 4}, {10, 3}} {
		scores = append(scores, rows(i, map[ParticipantID]int{ParticipantBen: pair[0], ParticipantSteph: pair[1]})...)
	}
	aw := ComputeAwards(roster(), scores, songs("a", "b", "c"))
	if !near(aw.PersonAverages[ParticipantBen], 8) || !near(aw.PersonAverages[ParticipantSteph], 3) {
		t.Fatalf("unexpected person averages: %v", aw.PersonAverages)
	}
	if !near(aw.AlbumAvg, 5.5) {
		t.Fatalf("expected album average 5.5, got %v", aw.AlbumAvg)
	}
	// Only two slots scored, so no song is complete.
	if aw.HighestRated != nil || aw.MostDivisive != nil {
		t.Fatal("incomplete songs must not win song awards")
	}
}

func TestSongAwardsOnlyCountCompleteSongs(t *testing.T) {
	var scores []ScoreRow
	scores = append(scores, rows(0, map[ParticipantID]int{ParticipantJames: 5, ParticipantLee: 5, ParticipantBen: 5, ParticipantSteph: 5})...)
	// Song 1 has a perfect but partial score set.
	scores = append(scores, rows(1, map[ParticipantID]int{ParticipantJames: 10, ParticipantLee: 1})...)
	scores = append(scores, rows(2, map[ParticipantID]int{ParticipantJames: 2, ParticipantLee: 9, ParticipantBen: 3, ParticipantSteph: 4})...)

	aw := ComputeAwards(roster(), scores, songs("even", "partial", "wild"))
	if aw.HighestRated.Song.Title != "even" || !near(aw.HighestRated.Value, 5) {
		t.Fatalf("unexpected highest: %+v", aw.HighestRated)
	}
	if aw.LowestRated.Song.Title != "wild" || !near(aw.LowestRated.Value, 4.5) {
		t.Fatalf("unexpected lowest: %+v", aw.LowestRated)
	}
	if aw.MostDivisive.Song.Title != "wild" || aw.MostDivisive.Value != 7 {
		t.Fatalf("unexpected divisive: %+v", aw.MostDivisive)
	}
}

func TestTiesGoToFirstEncountered(t *testing.T) {
	var scores []ScoreRow
	for i := 0; i < 2; i++ {
		scores = append(scores, rows(i, map[ParticipantID]int{ParticipantJames: 6, ParticipantLee: 6, ParticipantBen: 6, ParticipantSteph: 6})...)
	}
	aw := ComputeAwards(roster(), scores, songs("first", "second"))
	if aw.Stan.Participant.ParticipantID != ParticipantJames || aw.Hater.Participant.ParticipantID != ParticipantJames {
		t.Fatalf("participant ties should go to roster order, got %s/%s",
			aw.Stan.Participant.ParticipantID, aw.Hater.Participant.ParticipantID)
	}
	for name, a := range map[string]*SongAward{"divisive": aw.MostDivisive, "highest": aw.HighestRated, "lowest": aw.LowestRated} {
		if a.Song.Title != "first" {
			t.Fatalf("%s tie should go to the first song, got %q", name, a.Song.Title)
		}
	}
}

func TestAwardsIgnoreScoreOrder(t *testing.T) {
	var scores []ScoreRow
	scores = append(scores, rows(0, map[ParticipantID]int{ParticipantJames: 9, ParticipantLee: 3, ParticipantBen: 7, ParticipantSteph: 2})...)
	scores = append(scores, rows(1, map[ParticipantID]int{ParticipantJames: 4, ParticipantLee: 8, ParticipantBen: 5, ParticipantSteph: 6})...)
	s := songs("one", "two")
	want := ComputeAwards(roster(), scores, s)

	reversed := make([]ScoreRow, len(scores))
	for i, r := range scores {
		reversed[len(scores)-1-i] = r
	}
	got := ComputeAwards(roster(), reversed, s)
	if got.Stan.Participant.ParticipantID != want.Stan.Participant.ParticipantID ||
		got.Hater.Participant.ParticipantID != want.Hater.Participant.ParticipantID ||
		got.HighestRated.Song.Title != want.HighestRated.Song.Title ||
		got.MostDivisive.Song.Title != want.MostDivisive.Song.Title ||
		!near(got.AlbumAvg, want.AlbumAvg) {
		t.Fatalf("awards changed with score order: %+v vs %+v", got, want)
	}
}

func TestSubmissionStatus(t *testing.T) {
	scores := rows(1, map[ParticipantID]int{ParticipantLee: 4, ParticipantSteph: 9})
	scores = append(scores, rows(0, map[ParticipantID]int{ParticipantJames: 3})...)

	status := SubmissionStatus(roster(), scores, 1)
	if len(status) != RosterSize {
		t.Fatalf("expected an entry per slot, got %v", status)
	}
	if status[ParticipantJames] || !status[ParticipantLee] || status[ParticipantBen] || !status[ParticipantSteph] {
		t.Fatalf("unexpected status: %v", status)
	}
	if SubmittedCount(scores, 1) != 2 || SubmittedCount(scores, 5) != 0 {
		t.Fatal("unexpected submitted counts")
	}
}

func TestCurrentSong(t *testing.T) {
	s := songs("a", "b")
	s[0], s[1] = s[1], s[0]
	if got := CurrentSong(s, 0); got == nil || got.Title != "a" {
		t.Fatalf("expected song a, got %+v", got)
	}
	if CurrentSong(s, 2) != nil || CurrentSong(s, -1) != nil || CurrentSong(nil, 0) != nil {
		t.Fatal("out of range index should yield nil")
	}
}

func TestDerive(t *testing.T) {
	parts := roster()
	parts[0].Claimed = true
	snap := Snapshot{
		Session:      Session{Code: "ABCDEF", Status: StatusInSong, SongIndex: 1},
		Participants: parts,
		Songs:        songs("a", "b"),
		Scores:       rows(1, map[ParticipantID]int{ParticipantJames: 7}),
	}
	res := Derive(snap)
	if res.CurrentSong == nil || res.CurrentSong.Title != "b" {
		t.Fatalf("unexpected current song %+v", res.CurrentSong)
	}
	if res.Submitted != 1 || res.Claimed != 1 || len(res.SongStats) != 2 {
		t.Fatalf("unexpected derived counts: %+v", res)
	}
	if res.SongStats[1].Count != 1 || res.SongStats[1].Complete {
		t.Fatalf("unexpected song stat: %+v", res.SongStats[1])
	}
}
