package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/albumnight/internal/feed"
	"github.com/kiliankoe/albumnight/internal/game"
	"github.com/rs/zerolog/log"
)

const (
	RoleTV          = "tv"
	RoleParticipant = "participant"
	RoleAdmin       = "admin"
)

type ConnCtx struct {
	Code          string
	Role          string
	ParticipantID game.ParticipantID
	DeviceToken   string
	AdminToken    string
}

type Server struct {
	svc *game.Service
	hub *feed.Hub

	mu      sync.RWMutex
	members map[string]map[string]socketio.Conn // sessionCode -> socketID -> Conn
}

func New(svc *game.Service, hub *feed.Hub) *Server {
	return &Server{svc: svc, hub: hub, members: make(map[string]map[string]socketio.Conn)}
}

// Run pushes a fresh state to every watcher of a session whenever it changes,
// until ctx is done.
func (srv *Server) Run(ctx context.Context) {
	changes, cancel := srv.hub.Subscribe("")
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			srv.emitStateTo(ctx, c.Code)
		}
	}
}

// Mount attaches Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	// album:watch (tv display or admin device)
	io.OnEvent("/", "album:watch", func(s socketio.Conn, payload struct {
		SessionCode string `json:"sessionCode"`
		AdminToken  string `json:"adminToken"`
	}) map[string]any {
		code, err := game.NormalizeCode(payload.SessionCode)
		if err != nil {
			return srv.err(s, err)
		}
		role := RoleTV
		if payload.AdminToken != "" {
			role = RoleAdmin
		}
		srv.attach(s, &ConnCtx{Code: code, Role: role, AdminToken: payload.AdminToken})
		log.Info().Str("sid", s.ID()).Str("code", code).Str("role", role).Msg("album:watch")
		if err := srv.emitState(context.Background(), s); err != nil {
			return srv.err(s, err)
		}
		return map[string]any{"ok": true}
	})

	// album:claim
	io.OnEvent("/", "album:claim", func(s socketio.Conn, payload struct {
		SessionCode   string `json:"sessionCode"`
		ParticipantID string `json:"participantId"`
	}) map[string]any {
		pid := game.ParticipantID(payload.ParticipantID)
		snap, token, err := srv.svc.Claim(context.Background(), payload.SessionCode, pid)
		if err != nil {
			return srv.err(s, err)
		}
		code := snap.Session.Code
		srv.attach(s, &ConnCtx{Code: code, Role: RoleParticipant, ParticipantID: pid, DeviceToken: token})
		log.Info().Str("sid", s.ID()).Str("code", code).Str("participantId", payload.ParticipantID).Msg("album:claim")
		return map[string]any{"deviceToken": token, "participantId": pid}
	})

	// album:rejoin (reconnection)
	io.OnEvent("/", "album:rejoin", func(s socketio.Conn, payload struct {
		SessionCode string `json:"sessionCode"`
		DeviceToken string `json:"deviceToken"`
	}) map[string]any {
		snap, b, err := srv.svc.Rejoin(context.Background(), payload.SessionCode, payload.DeviceToken)
		if err != nil {
			return srv.err(s, err)
		}
		code := snap.Session.Code
		srv.attach(s, &ConnCtx{Code: code, Role: RoleParticipant, ParticipantID: b.ParticipantID, DeviceToken: payload.DeviceToken})
		log.Info().Str("sid", s.ID()).Str("code", code).Str("participantId", string(b.ParticipantID)).Msg("album:rejoin")
		// send state to only this connection
		if err := srv.emitState(context.Background(), s); err != nil {
			return srv.err(s, err)
		}
		return map[string]any{"ok": true, "participantId": b.ParticipantID}
	})

	// album:submit
	io.OnEvent("/", "album:submit", func(s socketio.Conn, payload struct {
		SongIndex int `json:"songIndex"`
		Score     int `json:"score"`
	}) map[string]any {
		ctx, _ := s.Context().(*ConnCtx)
		if ctx == nil || ctx.Role != RoleParticipant {
			return srv.err(s, game.ErrNotBound)
		}
		if _, err := srv.svc.SubmitScore(context.Background(), ctx.Code, ctx.DeviceToken, payload.SongIndex, payload.Score); err != nil {
			return srv.err(s, err)
		}
		log.Info().Str("code", ctx.Code).Str("participantId", string(ctx.ParticipantID)).Int("songIndex", payload.SongIndex).Msg("album:submit")
		return map[string]any{"ok": true}
	})

	// album:admin
	io.OnEvent("/", "album:admin", func(s socketio.Conn, payload struct {
		Command    string   `json:"command"`
		AdminToken string   `json:"adminToken"`
		Title      string   `json:"title"`
		Titles     []string `json:"titles"`
		Text       string   `json:"text"`
	}) map[string]any {
		ctx, _ := s.Context().(*ConnCtx)
		if ctx == nil || ctx.Code == "" {
			return srv.err(s, game.ErrNotHost)
		}
		token := payload.AdminToken
		if token == "" {
			token = ctx.AdminToken
		}
		cmd := game.Command{Event: game.Event(payload.Command), Title: payload.Title, Titles: payload.Titles}
		if payload.Text != "" {
			cmd.Titles = game.ParseTracklist(payload.Text)
		}
		snap, err := srv.svc.Apply(context.Background(), ctx.Code, token, cmd)
		if err != nil {
			return srv.err(s, err)
		}
		log.Info().Str("code", ctx.Code).Str("command", payload.Command).Msg("album:admin")
		return map[string]any{"ok": true, "status": snap.Session.Status, "submitted": game.SubmittedCount(snap.Scores, snap.Session.SongIndex)}
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		if s == nil {
			log.Error().Err(e).Msg("socket error")
			return
		}
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		if ctx, ok := s.Context().(*ConnCtx); ok && ctx.Code != "" {
			srv.removeMember(ctx.Code, s)
		}
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io server stopped")
		}
	}()

	// Mount to router
	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// Basic CORS preflight for Socket.IO POST
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

// attach moves a connection into the room of cc.Code.
func (srv *Server) attach(s socketio.Conn, cc *ConnCtx) {
	if prev, ok := s.Context().(*ConnCtx); ok && prev.Code != "" && prev.Code != cc.Code {
		s.Leave(prev.Code)
		srv.removeMember(prev.Code, s)
	}
	s.SetContext(cc)
	s.Join(cc.Code)
	srv.addMember(cc.Code, s)
}

func (srv *Server) addMember(code string, c socketio.Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.members[code] == nil {
		srv.members[code] = make(map[string]socketio.Conn)
	}
	srv.members[code][c.ID()] = c
}

func (srv *Server) removeMember(code string, c socketio.Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if m := srv.members[code]; m != nil {
		delete(m, c.ID())
		if len(m) == 0 {
			delete(srv.members, code)
		}
	}
}

func (srv *Server) conns(code string) []socketio.Conn {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	out := make([]socketio.Conn, 0, len(srv.members[code]))
	for _, c := range srv.members[code] {
		out = append(out, c)
	}
	return out
}

// emitStateTo re-reads the session once and sends every member its view.
func (srv *Server) emitStateTo(ctx context.Context, code string) {
	conns := srv.conns(code)
	if len(conns) == 0 {
		return
	}
	res, err := srv.svc.Results(ctx, code)
	if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("state refresh failed")
		return
	}
	for _, c := range conns {
		cc, _ := c.Context().(*ConnCtx)
		c.Emit("album:state", statePayload(res, cc))
	}
}

func (srv *Server) emitState(ctx context.Context, s socketio.Conn) error {
	cc, _ := s.Context().(*ConnCtx)
	if cc == nil || cc.Code == "" {
		return game.ErrSessionNotFound
	}
	res, err := srv.svc.Results(ctx, cc.Code)
	if err != nil {
		return err
	}
	s.Emit("album:state", statePayload(res, cc))
	return nil
}

func statePayload(res game.Results, cc *ConnCtx) map[string]any {
	you := map[string]any{}
	if cc != nil {
		you["role"] = cc.Role
		if cc.ParticipantID != "" {
			you["participantId"] = cc.ParticipantID
			you["submitted"] = res.SubmissionStatus[cc.ParticipantID]
		}
	}
	return map[string]any{
		"sessionCode": res.Session.Code,
		"state":       res,
		"you":         you,
	}
}

func (srv *Server) err(s socketio.Conn, err error) map[string]any {
	e := game.AsError(err)
	s.Emit("error", map[string]any{"kind": e.Kind, "code": e.Code, "message": e.Message, "meta": e.Meta})
	return map[string]any{"error": e.Message, "code": e.Code, "kind": e.Kind}
}
