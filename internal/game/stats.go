package game

import "sort"

// SongAverage is the arithmetic mean of the scores. It returns 0 for an empty
// list, which callers must treat as "no data" rather than a rating.
func SongAverage(scores []ScoreRow) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s.Score
	}
	return float64(sum) / float64(len(scores))
}

// Spread is max minus min of the scores, 0 for fewer than two.
func Spread(scores []ScoreRow) int {
	if len(scores) == 0 {
		return 0
	}
	lo, hi := scores[0].Score, scores[0].Score
	for _, s := range scores[1:] {
		lo = min(lo, s.Score)
		hi = max(hi, s.Score)
	}
	return hi - lo
}

// ParticipantAverage is the mean over every song one participant scored.
func ParticipantAverage(scores []ScoreRow) float64 {
	return SongAverage(scores)
}

func mean(nums []float64) float64 {
	if len(nums) == 0 {
		return 0
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums))
}

type ParticipantAward struct {
	Participant Participant `json:"participant"`
	Avg         float64     `json:"avg"`
}

type SongAward struct {
	Song  Song    `json:"song"`
	Value float64 `json:"value"`
}

type Awards struct {
	Stan           *ParticipantAward         `json:"stan"`
	Hater          *ParticipantAward         `json:"hater"`
	MostDivisive   *SongAward                `json:"mostDivisive"`
	HighestRated   *SongAward                `json:"highestRated"`
	LowestRated    *SongAward                `json:"lowestRated"`
	AlbumAvg       float64                   `json:"albumAvg"`
	PersonAverages map[ParticipantID]float64 `json:"personAverages"`
}

type SongStat struct {
	Song     Song    `json:"song"`
	Avg      float64 `json:"avg"`
	Spread   int     `json:"spread"`
	Count    int     `json:"count"`
	Complete bool    `json:"complete"`
}

// ScoresForSong filters scores by song index, keeping input order.
func ScoresForSong(scores []ScoreRow, songIndex int) []ScoreRow {
	var out []ScoreRow
	for _, s := range scores {
		if s.SongIndex == songIndex {
			out = append(out, s)
		}
	}
	return out
}

// SongStats computes per-song aggregates in song input order. A song is
// complete when every roster slot has scored it.
func SongStats(songs []Song, scores []ScoreRow) []SongStat {
	out := make([]SongStat, 0, len(songs))
	for _, song := range songs {
		ss := ScoresForSong(scores, song.OrderIndex)
		out = append(out, SongStat{
			Song:     song,
			Avg:      SongAverage(ss),
			Spread:   Spread(ss),
			Count:    len(ss),
			Complete: len(ss) == RosterSize,
		})
	}
	return out
}

// ComputeAwards derives the end-of-album awards from a full snapshot.
//
// Ties go to the first candidate in input order: roster order for stan and
// hater, song order for the song awards. Only songs scored by all four slots
// compete for song awards.
func ComputeAwards(participants []Participant, scores []ScoreRow, songs []Song) Awards {
	type acc struct{ total, count int }
	totals := make(map[ParticipantID]*acc, len(participants))
	for _, p := range participants {
		totals[p.ParticipantID] = &acc{}
	}
	for _, s := range scores {
		if a := totals[s.ParticipantID]; a != nil {
			a.total += s.Score
			a.count++
		}
	}

	aw := Awards{PersonAverages: make(map[ParticipantID]float64, len(participants))}
	var submitted []float64
	for _, p := range participants {
		a := totals[p.ParticipantID]
		avg := 0.0
		if a.count > 0 {
			avg = float64(a.total) / float64(a.count)
		}
		aw.PersonAverages[p.ParticipantID] = avg
		if avg <= 0 {
			continue
		}
		submitted = append(submitted, avg)
		if aw.Stan == nil || avg > aw.Stan.Avg {
			aw.Stan = &ParticipantAward{Participant: p, Avg: avg}
		}
		if aw.Hater == nil || avg < aw.Hater.Avg {
			aw.Hater = &ParticipantAward{Participant: p, Avg: avg}
		}
	}
	aw.AlbumAvg = mean(submitted)

	var complete []SongStat
	for _, st := range SongStats(songs, scores) {
		if st.Complete {
			complete = append(complete, st)
		}
	}
	if len(complete) == 0 {
		return aw
	}

	pick := func(better func(a, b SongStat) bool) SongStat {
		sorted := append([]SongStat(nil), complete...)
		sort.SliceStable(sorted, func(i, j int) bool { return better(sorted[i], sorted[j]) })
		return sorted[0]
	}
	div := pick(func(a, b SongStat) bool { return a.Spread > b.Spread })
	hi := pick(func(a, b SongStat) bool { return a.Avg > b.Avg })
	lo := pick(func(a, b SongStat) bool { return a.Avg < b.Avg })
	aw.MostDivisive = &SongAward{Song: div.Song, Value: float64(div.Spread)}
	aw.HighestRated = &SongAward{Song: hi.Song, Value: hi.Avg}
	aw.LowestRated = &SongAward{Song: lo.Song, Value: lo.Avg}
	return aw
}

// SubmittedCount is the number of scores in for one song.
func SubmittedCount(scores []ScoreRow, songIndex int) int {
	return len(ScoresForSong(scores, songIndex))
}

// SubmissionStatus reports, per slot, whether that slot has scored the song.
func SubmissionStatus(participants []Participant, scores []ScoreRow, songIndex int) map[ParticipantID]bool {
	status := make(map[ParticipantID]bool, len(participants))
	for _, p := range participants {
		status[p.ParticipantID] = false
	}
	for _, s := range ScoresForSong(scores, songIndex) {
		if _, ok := status[s.ParticipantID]; ok {
			status[s.ParticipantID] = true
		}
	}
	return status
}

// CurrentSong returns the song at songIndex in play order, or nil.
func CurrentSong(songs []Song, songIndex int) *Song {
	sorted := append([]Song(nil), songs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })
	if songIndex < 0 || songIndex >= len(sorted) {
		return nil
	}
	s := sorted[songIndex]
	return &s
}
