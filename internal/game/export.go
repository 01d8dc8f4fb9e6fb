package game

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportResults appends a plain-text summary of a finished album to filename.
func ExportResults(r Results, filename string, now time.Time) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	fileExists := false
	if _, err := os.Stat(filename); err == nil {
		fileExists = true
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder
	if fileExists {
		sb.WriteString("\n\n")
	}
	sb.WriteString(fmt.Sprintf("Album Night Results - %s (session %s)\n", r.Session.Title, r.Session.Code))
	sb.WriteString(fmt.Sprintf("Finished: %s\n", now.Format("2006-01-02 15:04:05")))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	names := make(map[ParticipantID]string, len(r.Participants))
	sb.WriteString("Averages:\n")
	for _, p := range r.Participants {
		names[p.ParticipantID] = p.Name
		if avg := r.Awards.PersonAverages[p.ParticipantID]; avg > 0 {
			sb.WriteString(fmt.Sprintf("- %s: %.2f\n", p.Name, avg))
		} else {
			sb.WriteString(fmt.Sprintf("- %s: no scores\n", p.Name))
		}
	}
	sb.WriteString(fmt.Sprintf("Album average: %.2f\n\n", r.Awards.AlbumAvg))

	sb.WriteString("Tracks:\n")
	sb.WriteString(strings.Repeat("-", 40) + "\n")
	for _, st := range r.SongStats {
		line := fmt.Sprintf("%2d. %q", st.Song.OrderIndex+1, st.Song.Title)
		if st.Count == 0 {
			sb.WriteString(line + " - not scored\n")
			continue
		}
		sb.WriteString(fmt.Sprintf("%s - avg %.2f, spread %d (%d/%d scores)\n", line, st.Avg, st.Spread, st.Count, RosterSize))
		var parts []string
		for _, s := range ScoresForSong(r.Scores, st.Song.OrderIndex) {
			parts = append(parts, fmt.Sprintf("%s %d", names[s.ParticipantID], s.Score))
		}
		sb.WriteString("    " + strings.Join(parts, ", ") + "\n")
	}

	sb.WriteString("\nAwards:\n")
	if a := r.Awards.Stan; a != nil {
		sb.WriteString(fmt.Sprintf("- Biggest Stan: %s (%.2f)\n", a.Participant.Name, a.Avg))
	}
	if a := r.Awards.Hater; a != nil {
		sb.WriteString(fmt.Sprintf("- Toughest Critic: %s (%.2f)\n", a.Participant.Name, a.Avg))
	}
	if a := r.Awards.HighestRated; a != nil {
		sb.WriteString(fmt.Sprintf("- Highest Rated: %q (%.2f)\n", a.Song.Title, a.Value))
	}
	if a := r.Awards.LowestRated; a != nil {
		sb.WriteString(fmt.Sprintf("- Lowest Rated: %q (%.2f)\n", a.Song.Title, a.Value))
	}
	if a := r.Awards.MostDivisive; a != nil {
		sb.WriteString(fmt.Sprintf("- Most Divisive: %q (spread %.0f)\n", a.Song.Title, a.Value))
	}
	sb.WriteString(strings.Repeat("=", 50) + "\n")

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}
