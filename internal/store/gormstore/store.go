// Package gormstore is a MySQL game.Store built on gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiliankoe/albumnight/internal/game"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to a MySQL DSN and migrates the schema. The DSN gets
// parseTime and clientFoundRows so compare-and-set updates count matched
// rows rather than changed ones.
func Open(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "parseTime=") {
		dsn += sep + "parseTime=true"
		sep = "&"
	}
	if !strings.Contains(dsn, "clientFoundRows=") {
		dsn += sep + "clientFoundRows=true"
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&sessionModel{}, &participantModel{}, &songModel{}, &scoreModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) session(tx *gorm.DB, code string, forUpdate bool) (sessionModel, error) {
	var m sessionModel
	q := tx
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.First(&m, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return m, game.ErrSessionNotFound
	}
	if err != nil {
		return m, game.Unavailable("get session", err)
	}
	return m, nil
}

func (s *Store) CreateSession(ctx context.Context, sess game.Session, roster []game.Participant) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := sessionModel{
			Code:       sess.Code,
			Title:      sess.Title,
			Status:     string(sess.Status),
			SongIndex:  sess.SongIndex,
			Locked:     sess.Locked,
			AdminToken: sess.AdminToken,
			CreatedAt:  sess.CreatedAt.UTC(),
		}
		if err := tx.Create(&m).Error; err != nil {
			return game.Unavailable("insert session", err)
		}
		rows := make([]participantModel, 0, len(roster))
		for _, p := range roster {
			rows = append(rows, participantModel{
				SessionCode:   sess.Code,
				ParticipantID: string(p.ParticipantID),
				Name:          p.Name,
				AvatarURL:     p.AvatarURL,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return game.Unavailable("insert participants", err)
		}
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, code string) (game.Session, error) {
	m, err := s.session(s.db.WithContext(ctx), code, false)
	if err != nil {
		return game.Session{}, err
	}
	return m.toGame(), nil
}

func (s *Store) requireSession(ctx context.Context, code string, n int) error {
	if n > 0 {
		return nil
	}
	_, err := s.session(s.db.WithContext(ctx), code, false)
	return err
}

func (s *Store) ListParticipants(ctx context.Context, code string) ([]game.Participant, error) {
	var rows []participantModel
	if err := s.db.WithContext(ctx).Where("session_code = ?", code).Find(&rows).Error; err != nil {
		return nil, game.Unavailable("list participants", err)
	}
	if err := s.requireSession(ctx, code, len(rows)); err != nil {
		return nil, err
	}
	byID := make(map[game.ParticipantID]game.Participant, len(rows))
	for _, r := range rows {
		byID[game.ParticipantID(r.ParticipantID)] = r.toGame()
	}
	out := make([]game.Participant, 0, len(rows))
	for _, id := range game.RosterIDs {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ListSongs(ctx context.Context, code string) ([]game.Song, error) {
	var rows []songModel
	if err := s.db.WithContext(ctx).Where("session_code = ?", code).Order("order_index ASC").Find(&rows).Error; err != nil {
		return nil, game.Unavailable("list songs", err)
	}
	if err := s.requireSession(ctx, code, len(rows)); err != nil {
		return nil, err
	}
	out := make([]game.Song, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toGame())
	}
	return out, nil
}

func (s *Store) ListScores(ctx context.Context, code string) ([]game.ScoreRow, error) {
	var rows []scoreModel
	if err := s.db.WithContext(ctx).Where("session_code = ?", code).
		Order("song_index ASC, created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, game.Unavailable("list scores", err)
	}
	if err := s.requireSession(ctx, code, len(rows)); err != nil {
		return nil, err
	}
	out := make([]game.ScoreRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toGame())
	}
	return out, nil
}

// UpsertScore holds the session row lock while it checks the scoring guard
// and writes, so a concurrent lock-in waits for it or rejects it.
func (s *Store) UpsertScore(ctx context.Context, code string, songIndex int, pid game.ParticipantID, score int) (game.ScoreRow, error) {
	var out scoreModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.session(tx, code, true)
		if err != nil {
			return err
		}
		if !game.CanScore(m.toGame(), songIndex) {
			return game.ErrScoringClosed
		}
		now := s.now().UTC()
		row := scoreModel{
			ID:            uuid.NewString(),
			SessionCode:   code,
			SongIndex:     songIndex,
			ParticipantID: string(pid),
			Score:         score,
			CreatedAt:     now,
			SubmittedAt:   now,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_code"}, {Name: "song_index"}, {Name: "participant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "submitted_at"}),
		}).Create(&row).Error
		if err != nil {
			return game.Unavailable("upsert score", err)
		}
		if err := tx.First(&out, "session_code = ? AND song_index = ? AND participant_id = ?", code, songIndex, string(pid)).Error; err != nil {
			return game.Unavailable("read score", err)
		}
		return nil
	})
	if err != nil {
		return game.ScoreRow{}, err
	}
	return out.toGame(), nil
}

// inLobby runs fn in a transaction holding the session row locked in lobby.
func (s *Store) inLobby(ctx context.Context, code string, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.session(tx, code, true)
		if err != nil {
			return err
		}
		if m.Status != string(game.StatusLobby) {
			return game.ErrStatusChanged
		}
		return fn(tx)
	})
}

// ReplaceSongs deletes then bulk-inserts as two separate writes, each guarded
// on lobby. An insert failure is reported as a partial replace.
func (s *Store) ReplaceSongs(ctx context.Context, code string, titles []string) error {
	if len(titles) > game.MaxSongs {
		return game.ErrTooManySongs
	}
	var deleted int64
	err := s.inLobby(ctx, code, func(tx *gorm.DB) error {
		res := tx.Where("session_code = ?", code).Delete(&songModel{})
		if res.Error != nil {
			return game.Unavailable("delete songs", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return err
	}
	if len(titles) == 0 {
		return nil
	}
	now := s.now().UTC()
	rows := make([]songModel, 0, len(titles))
	for i, t := range titles {
		rows = append(rows, songModel{
			ID:          uuid.NewString(),
			SessionCode: code,
			OrderIndex:  i,
			Title:       t,
			CreatedAt:   now,
		})
	}
	err = s.inLobby(ctx, code, func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return game.PartialReplace(code, int(deleted), 0, err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, code string, patch game.SessionPatch) error {
	updates := map[string]any{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.SongIndex != nil {
		updates["song_index"] = *patch.SongIndex
	}
	if patch.Locked != nil {
		updates["locked"] = *patch.Locked
	}
	db := s.db.WithContext(ctx)
	if len(updates) == 0 {
		m, err := s.session(db, code, false)
		if err != nil {
			return err
		}
		if !patch.Matches(m.toGame()) {
			return game.ErrStatusChanged
		}
		return nil
	}

	q := db.Model(&sessionModel{}).Where("code = ?", code)
	if patch.ExpectStatus != nil {
		q = q.Where("status = ?", string(*patch.ExpectStatus))
	}
	if patch.ExpectSongIndex != nil {
		q = q.Where("song_index = ?", *patch.ExpectSongIndex)
	}
	if patch.ExpectLocked != nil {
		q = q.Where("locked = ?", *patch.ExpectLocked)
	}
	if patch.RequireSongs {
		q = q.Where("EXISTS (SELECT 1 FROM songs WHERE songs.session_code = sessions.code)")
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return game.Unavailable("update session", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := s.session(db, code, false); err != nil {
		return err
	}
	return game.ErrStatusChanged
}

func (s *Store) ClaimParticipant(ctx context.Context, code string, pid game.ParticipantID, at time.Time) error {
	db := s.db.WithContext(ctx)
	at = at.UTC()
	res := db.Model(&participantModel{}).
		Where("session_code = ? AND participant_id = ? AND claimed = ?", code, string(pid), false).
		Updates(map[string]any{"claimed": true, "claimed_at": &at})
	if res.Error != nil {
		return game.Unavailable("claim participant", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var p participantModel
	err := db.First(&p, "session_code = ? AND participant_id = ?", code, string(pid)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if _, serr := s.session(db, code, false); serr != nil {
			return serr
		}
		return game.ErrUnknownSlot
	}
	if err != nil {
		return game.Unavailable("lookup participant", err)
	}
	return game.ErrSlotClaimed
}

func (s *Store) ResetSession(ctx context.Context, code string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.session(tx, code, true); err != nil {
			return err
		}
		err := tx.Model(&sessionModel{}).Where("code = ?", code).
			Updates(map[string]any{"status": string(game.StatusLobby), "song_index": 0, "locked": false}).Error
		if err != nil {
			return game.Unavailable("reset session", err)
		}
		if err := tx.Where("session_code = ?", code).Delete(&scoreModel{}).Error; err != nil {
			return game.Unavailable("clear scores", err)
		}
		err = tx.Model(&participantModel{}).Where("session_code = ?", code).
			Updates(map[string]any{"claimed": false, "claimed_at": nil}).Error
		if err != nil {
			return game.Unavailable("unclaim participants", err)
		}
		return nil
	})
}
