// Package device issues the tokens that bind a phone to a participant slot.
package device

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kiliankoe/albumnight/internal/game"
)

const issuer = "albumnight"

type claims struct {
	Code          string `json:"code"`
	ParticipantID string `json:"pid"`
	// ClaimedAtMs pins the token to one claim of the slot.
	ClaimedAtMs int64 `json:"cat"`
	jwt.RegisteredClaims
}

// Binder signs and verifies HS256 device tokens.
type Binder struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewBinder returns a binder keyed by secret. An empty secret gets a random
// per-process key, so tokens do not survive a restart.
func NewBinder(secret string, ttl time.Duration) (*Binder, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	return &Binder{key: key, ttl: ttl, now: time.Now}, nil
}

func (b *Binder) Issue(bind game.Binding) (string, error) {
	now := b.now()
	c := claims{
		Code:          bind.Code,
		ParticipantID: string(bind.ParticipantID),
		ClaimedAtMs:   bind.ClaimedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  bind.Code + "/" + string(bind.ParticipantID),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if b.ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(b.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(b.key)
}

func (b *Binder) Verify(token string) (game.Binding, error) {
	if token == "" {
		return game.Binding{}, game.ErrNotBound
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return b.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil {
		e := *game.ErrNotBound
		e.Cause = err
		if errors.Is(err, jwt.ErrTokenExpired) {
			e.Meta = map[string]string{"reason": "expired"}
		}
		return game.Binding{}, &e
	}
	pid := game.ParticipantID(c.ParticipantID)
	if !pid.Valid() {
		return game.Binding{}, game.ErrNotBound
	}
	return game.Binding{
		Code:          c.Code,
		ParticipantID: pid,
		ClaimedAt:     time.UnixMilli(c.ClaimedAtMs).UTC(),
	}, nil
}
