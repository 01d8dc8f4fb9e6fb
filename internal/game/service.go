package game

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// StoreTimeout bounds every store call and every change notification.
	StoreTimeout time.Duration
	// ReadRetries is the number of attempts for snapshot reads.
	ReadRetries  uint
	StrictLock   bool
	DefaultTitle string
	RosterNames  [RosterSize]string
	// ExportFile receives a plain-text summary when a session completes.
	ExportFile string
}

func DefaultOptions() Options {
	return Options{
		StoreTimeout: 5 * time.Second,
		ReadRetries:  3,
		DefaultTitle: "Album Night",
		RosterNames:  DefaultRosterNames,
	}
}

// Service owns the session lifecycle. It is safe for concurrent use; the
// store is the only shared state.
type Service struct {
	store  Store
	notify Notifier
	binder Binder
	opts   Options
	now    func() time.Time

	mu     sync.RWMutex
	active string
}

func NewService(store Store, binder Binder, notify Notifier, opts Options) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultOptions().StoreTimeout
	}
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = DefaultOptions().DefaultTitle
	}
	if opts.RosterNames == ([RosterSize]string{}) {
		opts.RosterNames = DefaultRosterNames
	}
	if notify == nil {
		notify = Notifiers(nil)
	}
	return &Service{store: store, notify: notify, binder: binder, opts: opts, now: time.Now}
}

func (s *Service) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// CreateSession opens a new session in the lobby with an unclaimed roster and
// returns its admin token.
func (s *Service) CreateSession(ctx context.Context) (Snapshot, string, error) {
	now := s.now().UTC()
	var code string
	for attempt := 0; ; attempt++ {
		code = randomCode(CodeLength)
		cctx, cancel := s.call(ctx)
		_, err := s.store.GetSession(cctx, code)
		cancel()
		if errors.Is(err, ErrSessionNotFound) {
			break
		}
		if err != nil {
			return Snapshot{}, "", err
		}
		if attempt > 16 {
			return Snapshot{}, "", Unavailable("allocate session code", errors.New("code space exhausted"))
		}
	}
	sess := Session{
		Code:       code,
		Title:      s.opts.DefaultTitle,
		Status:     StatusLobby,
		CreatedAt:  now,
		AdminToken: uuid.NewString(),
	}
	cctx, cancel := s.call(ctx)
	defer cancel()
	if err := s.store.CreateSession(cctx, sess, NewRoster(code, s.opts.RosterNames)); err != nil {
		return Snapshot{}, "", err
	}
	s.mu.Lock()
	s.active = code
	s.mu.Unlock()
	log.Info().Str("code", code).Msg("session created")
	s.changed(ctx, Change{Code: code, Collection: CollectionSessions, Action: "create", Status: StatusLobby})
	snap, err := s.Snapshot(ctx, code)
	return snap, sess.AdminToken, err
}

// Active returns the most recently created session code, if any.
func (s *Service) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Snapshot reads the full current state of a session.
func (s *Service) Snapshot(ctx context.Context, code string) (Snapshot, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return Snapshot{}, err
	}
	return retryRead(ctx, s.opts.ReadRetries, func() (Snapshot, error) {
		cctx, cancel := s.call(ctx)
		defer cancel()
		return readSnapshot(cctx, s.store, code)
	})
}

// Results reads the snapshot and derives every aggregate.
func (s *Service) Results(ctx context.Context, code string) (Results, error) {
	snap, err := s.Snapshot(ctx, code)
	if err != nil {
		return Results{}, err
	}
	return Derive(snap), nil
}

// Claim binds an unclaimed slot and returns a device token for it.
func (s *Service) Claim(ctx context.Context, code string, pid ParticipantID) (Snapshot, string, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return Snapshot{}, "", err
	}
	if !pid.Valid() {
		return Snapshot{}, "", ErrUnknownSlot.with(map[string]string{"participant_id": string(pid)})
	}
	at := s.now().UTC().Truncate(time.Millisecond)
	cctx, cancel := s.call(ctx)
	err = s.store.ClaimParticipant(cctx, code, pid, at)
	cancel()
	if err != nil {
		return Snapshot{}, "", err
	}
	token, err := s.binder.Issue(Binding{Code: code, ParticipantID: pid, ClaimedAt: at})
	if err != nil {
		return Snapshot{}, "", err
	}
	log.Info().Str("code", code).Str("participantId", string(pid)).Msg("slot claimed")
	s.changed(ctx, Change{Code: code, Collection: CollectionParticipants, Action: "claim"})
	snap, err := s.Snapshot(ctx, code)
	return snap, token, err
}

// Rejoin re-attaches a device to the slot it claimed earlier. It fails once
// the claim was cleared by a reset or replaced by another claim.
func (s *Service) Rejoin(ctx context.Context, code, token string) (Snapshot, Binding, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return Snapshot{}, Binding{}, err
	}
	b, err := s.bound(ctx, code, token)
	if err != nil {
		return Snapshot{}, Binding{}, err
	}
	log.Info().Str("code", code).Str("participantId", string(b.ParticipantID)).Msg("slot rejoined")
	snap, err := s.Snapshot(ctx, code)
	return snap, b, err
}

func (s *Service) bound(ctx context.Context, code, token string) (Binding, error) {
	b, err := s.binder.Verify(token)
	if err != nil {
		return Binding{}, err
	}
	if b.Code != code {
		return Binding{}, ErrNotBound
	}
	cctx, cancel := s.call(ctx)
	defer cancel()
	parts, err := s.store.ListParticipants(cctx, code)
	if err != nil {
		return Binding{}, err
	}
	for _, p := range parts {
		if p.ParticipantID != b.ParticipantID {
			continue
		}
		if p.Claimed && p.ClaimedAt != nil && p.ClaimedAt.UnixMilli() == b.ClaimedAt.UnixMilli() {
			return b, nil
		}
	}
	return Binding{}, ErrNotBound
}

// SubmitScore records the bound participant's score for songIndex. Repeating
// a submission overwrites the earlier score.
func (s *Service) SubmitScore(ctx context.Context, code, token string, songIndex, score int) (Snapshot, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return Snapshot{}, err
	}
	if score < MinScore || score > MaxScore {
		return Snapshot{}, ErrInvalidScore.with(map[string]string{"score": strconv.Itoa(score)})
	}
	b, err := s.bound(ctx, code, token)
	if err != nil {
		return Snapshot{}, err
	}
	cctx, cancel := s.call(ctx)
	_, err = s.store.UpsertScore(cctx, code, songIndex, b.ParticipantID, score)
	cancel()
	if err != nil {
		return Snapshot{}, err
	}
	log.Info().Str("code", code).Str("participantId", string(b.ParticipantID)).Int("songIndex", songIndex).Msg("score submitted")
	s.changed(ctx, Change{Code: code, Collection: CollectionScores, Action: "submit"})
	return s.Snapshot(ctx, code)
}

// Command carries the optional arguments of an admin event.
type Command struct {
	Event  Event
	Title  string
	Titles []string
}

// Apply runs one admin command. It checks the admin token, decides the
// transition against the current session, and issues a single partial update.
func (s *Service) Apply(ctx context.Context, code, adminToken string, cmd Command) (Snapshot, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return Snapshot{}, err
	}
	if !cmd.Event.Valid() {
		return Snapshot{}, ErrInvalidPhase.with(map[string]string{"event": string(cmd.Event)})
	}
	snap, err := s.Snapshot(ctx, code)
	if err != nil {
		return Snapshot{}, err
	}
	if subtle.ConstantTimeCompare([]byte(adminToken), []byte(snap.Session.AdminToken)) != 1 {
		return Snapshot{}, ErrNotHost
	}

	var titles []string
	if cmd.Event == EventReplaceSongs {
		titles = make([]string, 0, len(cmd.Titles))
		for _, t := range cmd.Titles {
			if t = strings.TrimSpace(t); t != "" {
				titles = append(titles, t)
			}
		}
	}
	patch, err := Transition(snap.Session, cmd.Event, Input{
		SongCount:  len(snap.Songs),
		Submitted:  SubmittedCount(snap.Scores, snap.Session.SongIndex),
		Title:      cmd.Title,
		Titles:     titles,
		StrictLock: s.opts.StrictLock,
	})
	if err != nil {
		return Snapshot{}, err
	}
	if cmd.Event == EventLock {
		if n := SubmittedCount(snap.Scores, snap.Session.SongIndex); n < RosterSize {
			log.Warn().Str("code", code).Int("submitted", n).Msg("locking scores before everyone submitted")
		}
	}

	from := snap.Session.Status
	change := Change{Code: code, Collection: CollectionSessions, Action: string(cmd.Event)}
	cctx, cancel := s.call(ctx)
	defer cancel()
	switch cmd.Event {
	case EventReset:
		err = s.store.ResetSession(cctx, code)
	case EventReplaceSongs:
		err = s.store.ReplaceSongs(cctx, code, titles)
		change.Collection = CollectionSongs
	default:
		err = s.store.UpdateSession(cctx, code, patch)
	}
	if err != nil {
		log.Warn().Err(err).Str("code", code).Str("event", string(cmd.Event)).Msg("admin command failed")
		return Snapshot{}, err
	}

	to := patch.Apply(snap.Session).Status
	change.Status = to
	log.Info().Str("code", code).Str("from", string(from)).Str("to", string(to)).Str("event", string(cmd.Event)).Msg("phase transition")
	s.changed(ctx, change)

	next, err := s.Snapshot(ctx, code)
	if err != nil {
		return Snapshot{}, err
	}
	if cmd.Event == EventFinish && s.opts.ExportFile != "" {
		if err := ExportResults(Derive(next), s.opts.ExportFile, s.now()); err != nil {
			log.Error().Err(err).Str("code", code).Msg("failed to export album results")
		} else {
			log.Info().Str("code", code).Str("file", s.opts.ExportFile).Msg("exported album results")
		}
	}
	return next, nil
}

func (s *Service) Rename(ctx context.Context, code, adminToken, title string) (Snapshot, error) {
	return s.Apply(ctx, code, adminToken, Command{Event: EventRename, Title: title})
}

func (s *Service) ReplaceSongs(ctx context.Context, code, adminToken string, titles []string) (Snapshot, error) {
	return s.Apply(ctx, code, adminToken, Command{Event: EventReplaceSongs, Titles: titles})
}

func (s *Service) StartAlbum(ctx context.Context, code, adminToken string) (Snapshot, error) {
	return s.Apply(ctx, code, adminToken, Command{Event: EventStart})
}

func (s *Service) LockScores(ctx context.Context, code, adminToken string) (Snapshot, error) {
	return s.Apply(ctx, code, adminToken, Command{Event: EventLock})
}

func (s *Service) Advance(ctx context.Context, code, adminToken string) (Snapshot, error) {
	return s.Apply(ctx, code, adminToken, Command{Event: EventAdvance})
}

func (s *Service) ShowAwards(ctx context.Context, code, adminToken string) (Snapshot, error) {
	return s.Apply(ctx, code, adminToken, Command{Event: EventShowAwards})
}

func (s *Service) Finish(ctx context.Context, code, adminToken string) (Snapshot, error) {
	return s.Apply(ctx, code, adminToken, Command{Event: EventFinish})
}

func (s *Service) Reset(ctx context.Context, code, adminToken string) (Snapshot, error) {
	return s.Apply(ctx, code, adminToken, Command{Event: EventReset})
}

// changed fans c out under its own deadline; the write it reports has
// already landed, so a caller's cancellation does not abort it.
func (s *Service) changed(ctx context.Context, c Change) {
	c.At = s.now().UTC()
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()
	if err := s.notify.Notify(nctx, c); err != nil {
		log.Warn().Err(err).Str("code", c.Code).Str("action", c.Action).Msg("change notification failed")
	}
}
