package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kiliankoe/albumnight/internal/game"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// feed streams change notifications for one session. The first message is a
// synthetic "hello" change so clients fetch their initial snapshot on it.
func (h *Handler) feed(c *gin.Context) {
	code, err := game.NormalizeCode(c.Param("code"))
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := h.svc.Snapshot(c.Request.Context(), code); err != nil {
		fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("feed upgrade failed")
		return
	}
	defer conn.Close()

	changes, cancel := h.hub.Subscribe(code)
	defer cancel()
	log.Info().Str("code", code).Str("remote", c.ClientIP()).Msg("feed connected")

	// Reader: handles pongs and notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Str("code", code).Msg("feed read error")
				}
				return
			}
		}
	}()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}
	if err := write(game.Change{Code: code, Action: "hello", At: time.Now().UTC()}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			log.Info().Str("code", code).Msg("feed disconnected")
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			if err := write(ch); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
