// Package api exposes the album session over HTTP.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/albumnight/internal/feed"
	"github.com/kiliankoe/albumnight/internal/game"
)

const adminHeader = "X-Admin-Token"

type Handler struct {
	svc *game.Service
	hub *feed.Hub
	// GM basic auth for session creation; empty disables it.
	gmUser, gmPass string
}

func New(svc *game.Service, hub *feed.Hub, gmUser, gmPass string) *Handler {
	return &Handler{svc: svc, hub: hub, gmUser: gmUser, gmPass: gmPass}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	api := r.Group("/api")
	create := []gin.HandlerFunc{h.createSession}
	if h.gmUser != "" && h.gmPass != "" {
		create = append([]gin.HandlerFunc{gin.BasicAuth(gin.Accounts{h.gmUser: h.gmPass})}, create...)
	}
	api.POST("/sessions", create...)
	api.GET("/session/active", h.active)

	s := api.Group("/sessions/:code")
	s.GET("", h.snapshot)
	s.GET("/results", h.results)
	s.GET("/feed", h.feed)
	s.POST("/claim", h.claim)
	s.POST("/rejoin", h.rejoin)
	s.POST("/scores", h.submitScore)

	s.PUT("/title", h.rename)
	s.PUT("/songs", h.replaceSongs)
	for path, ev := range map[string]game.Event{
		"/start":   game.EventStart,
		"/lock":    game.EventLock,
		"/advance": game.EventAdvance,
		"/awards":  game.EventShowAwards,
		"/finish":  game.EventFinish,
		"/reset":   game.EventReset,
	} {
		s.POST(path, h.command(ev))
	}
}

func (h *Handler) createSession(c *gin.Context) {
	snap, adminToken, err := h.svc.CreateSession(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"code":       snap.Session.Code,
		"adminToken": adminToken,
		"snapshot":   snap,
	})
}

func (h *Handler) active(c *gin.Context) {
	code := h.svc.Active()
	if code == "" {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionCode": code})
}

func (h *Handler) snapshot(c *gin.Context) {
	snap, err := h.svc.Snapshot(c.Request.Context(), c.Param("code"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) results(c *gin.Context) {
	res, err := h.svc.Results(c.Request.Context(), c.Param("code"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type claimReq struct {
	ParticipantID game.ParticipantID `json:"participantId"`
}

func (h *Handler) claim(c *gin.Context) {
	var req claimReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid claim request")
		return
	}
	snap, token, err := h.svc.Claim(c.Request.Context(), c.Param("code"), req.ParticipantID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deviceToken": token,
		"participant": participant(snap, req.ParticipantID),
		"snapshot":    snap,
	})
}

type rejoinReq struct {
	DeviceToken string `json:"deviceToken"`
}

func (h *Handler) rejoin(c *gin.Context) {
	var req rejoinReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid rejoin request")
		return
	}
	if req.DeviceToken == "" {
		req.DeviceToken = bearer(c)
	}
	snap, b, err := h.svc.Rejoin(c.Request.Context(), c.Param("code"), req.DeviceToken)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"participant": participant(snap, b.ParticipantID),
		"snapshot":    snap,
	})
}

type scoreReq struct {
	SongIndex *int `json:"songIndex"`
	Score     int  `json:"score"`
}

func (h *Handler) submitScore(c *gin.Context) {
	var req scoreReq
	if err := c.ShouldBindJSON(&req); err != nil || req.SongIndex == nil {
		badRequest(c, "songIndex and score are required")
		return
	}
	snap, err := h.svc.SubmitScore(c.Request.Context(), c.Param("code"), bearer(c), *req.SongIndex, req.Score)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, game.Derive(snap))
}

type titleReq struct {
	Title string `json:"title"`
}

func (h *Handler) rename(c *gin.Context) {
	var req titleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid title request")
		return
	}
	h.apply(c, game.Command{Event: game.EventRename, Title: req.Title})
}

// songsReq accepts either a pasted track list or explicit titles.
type songsReq struct {
	Text   string   `json:"text"`
	Titles []string `json:"titles"`
}

func (h *Handler) replaceSongs(c *gin.Context) {
	var req songsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid song list")
		return
	}
	titles := req.Titles
	if req.Text != "" {
		titles = game.ParseTracklist(req.Text)
	}
	h.apply(c, game.Command{Event: game.EventReplaceSongs, Titles: titles})
}

func (h *Handler) command(ev game.Event) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.apply(c, game.Command{Event: ev})
	}
}

func (h *Handler) apply(c *gin.Context, cmd game.Command) {
	snap, err := h.svc.Apply(c.Request.Context(), c.Param("code"), c.GetHeader(adminHeader), cmd)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, game.Derive(snap))
}

func bearer(c *gin.Context) string {
	v := c.GetHeader("Authorization")
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}

func participant(snap game.Snapshot, id game.ParticipantID) *game.Participant {
	for i := range snap.Participants {
		if snap.Participants[i].ParticipantID == id {
			return &snap.Participants[i]
		}
	}
	return nil
}
