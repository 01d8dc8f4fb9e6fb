// Package sqlstore is a game.Store on database/sql. It runs on SQLite
// (modernc.org/sqlite, driver "sqlite") and Postgres (lib/pq, driver
// "postgres") with one schema.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiliankoe/albumnight/internal/game"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Open connects to dsn with driver and creates the schema if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if driver == DriverSQLite && !strings.HasPrefix(dsn, "file:") && !strings.HasPrefix(dsn, ":memory:") {
		if dir := filepath.Dir(strings.SplitN(dsn, "?", 2)[0]); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}
	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite serializes writers anyway; one connection keeps the
		// guarded upserts from hitting SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	st, err := New(ctx, db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// New wraps an existing handle and applies the schema.
func New(ctx context.Context, db *sql.DB, driver string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db, driver: driver, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// q rewrites ? placeholders to $n for Postgres.
func (s *Store) q(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) sessionExists(ctx context.Context, x execer, code string) (bool, error) {
	var one int
	err := x.QueryRowContext(ctx, s.q(`SELECT 1 FROM sessions WHERE code = ?`), code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, game.Unavailable("lookup session", err)
	}
	return true, nil
}

func (s *Store) CreateSession(ctx context.Context, sess game.Session, roster []game.Participant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return game.Unavailable("begin create session", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO sessions (code, title, status, song_index, locked, admin_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		sess.Code, sess.Title, string(sess.Status), sess.SongIndex, boolInt(sess.Locked), sess.AdminToken, toMillis(sess.CreatedAt))
	if err != nil {
		return game.Unavailable("insert session", err)
	}
	for _, p := range roster {
		_, err = tx.ExecContext(ctx, s.q(`INSERT INTO participants (session_code, participant_id, name, avatar_url, claimed)
			VALUES (?, ?, ?, ?, 0)`),
			sess.Code, string(p.ParticipantID), p.Name, p.AvatarURL)
		if err != nil {
			return game.Unavailable("insert participant", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return game.Unavailable("commit create session", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, code string) (game.Session, error) {
	var (
		sess      game.Session
		status    string
		locked    int
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, s.q(`SELECT code, title, status, song_index, locked, admin_token, created_at
		FROM sessions WHERE code = ?`), code).
		Scan(&sess.Code, &sess.Title, &status, &sess.SongIndex, &locked, &sess.AdminToken, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Session{}, game.ErrSessionNotFound
	}
	if err != nil {
		return game.Session{}, game.Unavailable("get session", err)
	}
	sess.Status = game.Status(status)
	sess.Locked = locked != 0
	sess.CreatedAt = fromMillis(createdAt)
	return sess, nil
}

// requireSession turns an empty list for an unknown code into not-found.
func (s *Store) requireSession(ctx context.Context, code string, n int) error {
	if n > 0 {
		return nil
	}
	ok, err := s.sessionExists(ctx, s.db, code)
	if err != nil {
		return err
	}
	if !ok {
		return game.ErrSessionNotFound
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, code string) ([]game.Participant, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT participant_id, name, avatar_url, claimed, claimed_at
		FROM participants WHERE session_code = ?`), code)
	if err != nil {
		return nil, game.Unavailable("list participants", err)
	}
	defer rows.Close()

	byID := make(map[game.ParticipantID]game.Participant, game.RosterSize)
	for rows.Next() {
		var (
			p         game.Participant
			pid       string
			avatar    sql.NullString
			claimed   int
			claimedAt sql.NullInt64
		)
		if err := rows.Scan(&pid, &p.Name, &avatar, &claimed, &claimedAt); err != nil {
			return nil, game.Unavailable("scan participant", err)
		}
		p.SessionCode = code
		p.ParticipantID = game.ParticipantID(pid)
		p.Claimed = claimed != 0
		if avatar.Valid {
			p.AvatarURL = &avatar.String
		}
		if claimedAt.Valid {
			at := fromMillis(claimedAt.Int64)
			p.ClaimedAt = &at
		}
		byID[p.ParticipantID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, game.Unavailable("list participants", err)
	}
	if err := s.requireSession(ctx, code, len(byID)); err != nil {
		return nil, err
	}
	out := make([]game.Participant, 0, len(byID))
	for _, id := range game.RosterIDs {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ListSongs(ctx context.Context, code string) ([]game.Song, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, order_index, title, created_at
		FROM songs WHERE session_code = ? ORDER BY order_index`), code)
	if err != nil {
		return nil, game.Unavailable("list songs", err)
	}
	defer rows.Close()

	var out []game.Song
	for rows.Next() {
		var (
			song      game.Song
			createdAt int64
		)
		if err := rows.Scan(&song.ID, &song.OrderIndex, &song.Title, &createdAt); err != nil {
			return nil, game.Unavailable("scan song", err)
		}
		song.SessionCode = code
		song.CreatedAt = fromMillis(createdAt)
		out = append(out, song)
	}
	if err := rows.Err(); err != nil {
		return nil, game.Unavailable("list songs", err)
	}
	if err := s.requireSession(ctx, code, len(out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListScores(ctx context.Context, code string) ([]game.ScoreRow, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, song_index, participant_id, score, created_at, submitted_at
		FROM scores WHERE session_code = ? ORDER BY song_index, created_at, id`), code)
	if err != nil {
		return nil, game.Unavailable("list scores", err)
	}
	defer rows.Close()

	var out []game.ScoreRow
	for rows.Next() {
		var (
			r                      game.ScoreRow
			pid                    string
			createdAt, submittedAt int64
		)
		if err := rows.Scan(&r.ID, &r.SongIndex, &pid, &r.Score, &createdAt, &submittedAt); err != nil {
			return nil, game.Unavailable("scan score", err)
		}
		r.SessionCode = code
		r.ParticipantID = game.ParticipantID(pid)
		r.CreatedAt = fromMillis(createdAt)
		r.SubmittedAt = fromMillis(submittedAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, game.Unavailable("list scores", err)
	}
	if err := s.requireSession(ctx, code, len(out)); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertScore inserts or overwrites a score in one statement. The insert only
// selects a row while the session is open for that song, so a concurrent lock
// can never be raced past.
func (s *Store) UpsertScore(ctx context.Context, code string, songIndex int, pid game.ParticipantID, score int) (game.ScoreRow, error) {
	now := toMillis(s.now())
	row := game.ScoreRow{
		SessionCode:   code,
		SongIndex:     songIndex,
		ParticipantID: pid,
		Score:         score,
	}
	var createdAt, submittedAt int64
	err := s.db.QueryRowContext(ctx, s.q(`INSERT INTO scores (id, session_code, song_index, participant_id, score, created_at, submitted_at)
		SELECT CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS INTEGER), CAST(? AS TEXT),
		       CAST(? AS INTEGER), CAST(? AS BIGINT), CAST(? AS BIGINT)
		WHERE EXISTS (
		    SELECT 1 FROM sessions
		    WHERE code = ? AND status = 'in_song' AND locked = 0 AND song_index = ?
		)
		ON CONFLICT (session_code, song_index, participant_id)
		DO UPDATE SET score = excluded.score, submitted_at = excluded.submitted_at
		RETURNING id, created_at, submitted_at`),
		uuid.NewString(), code, songIndex, string(pid), score, now, now,
		code, songIndex).
		Scan(&row.ID, &createdAt, &submittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		ok, lerr := s.sessionExists(ctx, s.db, code)
		if lerr != nil {
			return game.ScoreRow{}, lerr
		}
		if !ok {
			return game.ScoreRow{}, game.ErrSessionNotFound
		}
		return game.ScoreRow{}, game.ErrScoringClosed
	}
	if err != nil {
		return game.ScoreRow{}, game.Unavailable("upsert score", err)
	}
	row.CreatedAt = fromMillis(createdAt)
	row.SubmittedAt = fromMillis(submittedAt)
	return row, nil
}

// inLobby runs fn in a transaction that first checks, and on Postgres locks,
// the session row in lobby.
func (s *Store) inLobby(ctx context.Context, code string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return game.Unavailable("begin", err)
	}
	defer tx.Rollback()

	query := `SELECT status FROM sessions WHERE code = ?`
	if s.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}
	var status string
	err = tx.QueryRowContext(ctx, s.q(query), code).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return game.ErrSessionNotFound
	}
	if err != nil {
		return game.Unavailable("lock session", err)
	}
	if game.Status(status) != game.StatusLobby {
		return game.ErrStatusChanged
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return game.Unavailable("commit", err)
	}
	return nil
}

// ReplaceSongs deletes the song list and bulk-inserts titles. The two steps
// are separate writes, each guarded on lobby; a failed insert leaves the list
// empty and is reported as a partial replace so the caller can repeat the
// whole command.
func (s *Store) ReplaceSongs(ctx context.Context, code string, titles []string) error {
	if len(titles) > game.MaxSongs {
		return game.ErrTooManySongs
	}
	var deleted int64
	err := s.inLobby(ctx, code, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM songs WHERE session_code = ?`), code)
		if err != nil {
			return game.Unavailable("delete songs", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if len(titles) == 0 {
		return nil
	}

	now := toMillis(s.now())
	var sb strings.Builder
	sb.WriteString(`INSERT INTO songs (id, session_code, order_index, title, created_at) VALUES `)
	args := make([]any, 0, len(titles)*5)
	for i, t := range titles {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, uuid.NewString(), code, i, t, now)
	}
	err = s.inLobby(ctx, code, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(sb.String()), args...)
		return err
	})
	if err != nil {
		return game.PartialReplace(code, int(deleted), 0, err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, code string, patch game.SessionPatch) error {
	var (
		sets []string
		args []any
	)
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.SongIndex != nil {
		sets = append(sets, "song_index = ?")
		args = append(args, *patch.SongIndex)
	}
	if patch.Locked != nil {
		sets = append(sets, "locked = ?")
		args = append(args, boolInt(*patch.Locked))
	}
	if len(sets) == 0 {
		sess, err := s.GetSession(ctx, code)
		if err != nil {
			return err
		}
		if !patch.Matches(sess) {
			return game.ErrStatusChanged
		}
		return nil
	}

	query := `UPDATE sessions SET ` + strings.Join(sets, ", ") + ` WHERE code = ?`
	args = append(args, code)
	if patch.ExpectStatus != nil {
		query += ` AND status = ?`
		args = append(args, string(*patch.ExpectStatus))
	}
	if patch.ExpectSongIndex != nil {
		query += ` AND song_index = ?`
		args = append(args, *patch.ExpectSongIndex)
	}
	if patch.ExpectLocked != nil {
		query += ` AND locked = ?`
		args = append(args, boolInt(*patch.ExpectLocked))
	}
	if patch.RequireSongs {
		query += ` AND EXISTS (SELECT 1 FROM songs WHERE songs.session_code = sessions.code)`
	}
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return game.Unavailable("update session", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	ok, err := s.sessionExists(ctx, s.db, code)
	if err != nil {
		return err
	}
	if !ok {
		return game.ErrSessionNotFound
	}
	return game.ErrStatusChanged
}

func (s *Store) ClaimParticipant(ctx context.Context, code string, pid game.ParticipantID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE participants SET claimed = 1, claimed_at = ?
		WHERE session_code = ? AND participant_id = ? AND claimed = 0`),
		toMillis(at), code, string(pid))
	if err != nil {
		return game.Unavailable("claim participant", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var claimed int
	err = s.db.QueryRowContext(ctx, s.q(`SELECT claimed FROM participants WHERE session_code = ? AND participant_id = ?`),
		code, string(pid)).Scan(&claimed)
	if errors.Is(err, sql.ErrNoRows) {
		ok, lerr := s.sessionExists(ctx, s.db, code)
		if lerr != nil {
			return lerr
		}
		if !ok {
			return game.ErrSessionNotFound
		}
		return game.ErrUnknownSlot
	}
	if err != nil {
		return game.Unavailable("lookup participant", err)
	}
	return game.ErrSlotClaimed
}

func (s *Store) ResetSession(ctx context.Context, code string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return game.Unavailable("begin reset", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`UPDATE sessions SET status = 'lobby', song_index = 0, locked = 0 WHERE code = ?`), code)
	if err != nil {
		return game.Unavailable("reset session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return game.ErrSessionNotFound
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM scores WHERE session_code = ?`), code); err != nil {
		return game.Unavailable("clear scores", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE participants SET claimed = 0, claimed_at = NULL WHERE session_code = ?`), code); err != nil {
		return game.Unavailable("unclaim participants", err)
	}
	if err := tx.Commit(); err != nil {
		return game.Unavailable("commit reset", err)
	}
	return nil
}
