package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/albumnight/internal/game"
	"github.com/rs/zerolog/log"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k game.Kind) int {
	switch k {
	case game.KindValidation:
		return http.StatusBadRequest
	case game.KindGuard:
		return http.StatusConflict
	case game.KindUnavailable:
		return http.StatusServiceUnavailable
	case game.KindNotFound:
		return http.StatusNotFound
	case game.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error     *game.Error `json:"error"`
	Retryable bool        `json:"retryable"`
}

func fail(c *gin.Context, err error) {
	e := game.AsError(err)
	status := StatusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Str("kind", string(e.Kind)).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, errorBody{Error: e, Retryable: e.Retryable()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: &game.Error{
		Kind:    game.KindValidation,
		Code:    "BAD_REQUEST",
		Message: msg,
	}})
}
