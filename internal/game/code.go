package game

import (
	"math/rand"
	"strings"
)

const (
	CodeLength   = 6
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

func randomCode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// NormalizeCode upper-cases and trims a user-typed code and checks it against
// the code alphabet.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return "", ErrInvalidCode.with(map[string]string{"code": code})
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return "", ErrInvalidCode.with(map[string]string{"code": code})
		}
	}
	return code, nil
}

// ParseTracklist splits a pasted track list into titles, one per non-blank line.
func ParseTracklist(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	titles := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			titles = append(titles, l)
		}
	}
	return titles
}

// DefaultRosterNames are the display names of the four slots, in roster order.
var DefaultRosterNames = [RosterSize]string{"James", "Lee", "Ben", "Steph"}

// NewRoster builds the four unclaimed participant rows for a session.
func NewRoster(code string, names [RosterSize]string) []Participant {
	out := make([]Participant, 0, RosterSize)
	for i, id := range RosterIDs {
		out = append(out, Participant{SessionCode: code, ParticipantID: id, Name: names[i]})
	}
	return out
}
