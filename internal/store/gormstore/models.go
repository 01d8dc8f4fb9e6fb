package gormstore

import (
	"time"

	"github.com/kiliankoe/albumnight/internal/game"
)

type sessionModel struct {
	Code       string    `gorm:"primaryKey;size:6"`
	Title      string    `gorm:"not null"`
	Status     string    `gorm:"size:16;not null;default:lobby"`
	SongIndex  int       `gorm:"not null;default:0"`
	Locked     bool      `gorm:"not null;default:false"`
	AdminToken string    `gorm:"size:64;not null"`
	CreatedAt  time.Time `gorm:"type:datetime(3);not null"`
}

func (sessionModel) TableName() string { return "sessions" }

func (m sessionModel) toGame() game.Session {
	return game.Session{
		Code:       m.Code,
		Title:      m.Title,
		Status:     game.Status(m.Status),
		SongIndex:  m.SongIndex,
		Locked:     m.Locked,
		CreatedAt:  m.CreatedAt.UTC(),
		AdminToken: m.AdminToken,
	}
}

type participantModel struct {
	SessionCode   string `gorm:"primaryKey;size:6"`
	ParticipantID string `gorm:"primaryKey;size:16"`
	Name          string `gorm:"not null"`
	AvatarURL     *string
	Claimed       bool       `gorm:"not null;default:false"`
	ClaimedAt     *time.Time `gorm:"type:datetime(3)"`
}

func (participantModel) TableName() string { return "participants" }

func (m participantModel) toGame() game.Participant {
	p := game.Participant{
		SessionCode:   m.SessionCode,
		ParticipantID: game.ParticipantID(m.ParticipantID),
		Name:          m.Name,
		AvatarURL:     m.AvatarURL,
		Claimed:       m.Claimed,
	}
	if m.ClaimedAt != nil {
		at := m.ClaimedAt.UTC()
		p.ClaimedAt = &at
	}
	return p
}

type songModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	SessionCode string    `gorm:"size:6;not null;uniqueIndex:idx_song_order"`
	OrderIndex  int       `gorm:"not null;uniqueIndex:idx_song_order"`
	Title       string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"type:datetime(3);not null"`
}

func (songModel) TableName() string { return "songs" }

func (m songModel) toGame() game.Song {
	return game.Song{
		ID:          m.ID,
		SessionCode: m.SessionCode,
		OrderIndex:  m.OrderIndex,
		Title:       m.Title,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

type scoreModel struct {
	ID            string    `gorm:"primaryKey;size:36"`
	SessionCode   string    `gorm:"size:6;not null;uniqueIndex:idx_score_slot"`
	SongIndex     int       `gorm:"not null;uniqueIndex:idx_score_slot"`
	ParticipantID string    `gorm:"size:16;not null;uniqueIndex:idx_score_slot"`
	Score         int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"type:datetime(3);not null"`
	SubmittedAt   time.Time `gorm:"type:datetime(3);not null"`
}

func (scoreModel) TableName() string { return "scores" }

func (m scoreModel) toGame() game.ScoreRow {
	return game.ScoreRow{
		ID:            m.ID,
		SessionCode:   m.SessionCode,
		SongIndex:     m.SongIndex,
		ParticipantID: game.ParticipantID(m.ParticipantID),
		Score:         m.Score,
		CreatedAt:     m.CreatedAt.UTC(),
		SubmittedAt:   m.SubmittedAt.UTC(),
	}
}
