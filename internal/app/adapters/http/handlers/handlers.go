package handlers

import (
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"krosty/internal/app/domain/bus"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/domain/session"
	"krosty/internal/app/domain/token"
	"krosty/internal/app/infrastructure/config"
	"krosty/pkg/logger"
	"math"
	"net/http"
	"strconv"
	"time"
)

type Handlers struct {
	log     logger.Logger
	manager *config.Manager
	engine  *session.Engine
	bus     *bus.Bus
	tokens  *token.Store
	started time.Time
}

func New(log logger.Logger, manager *config.Manager, engine *session.Engine, events *bus.Bus, tokens *token.Store) *Handlers {
	return &Handlers{
		log:     log,
		manager: manager,
		engine:  engine,
		bus:     events,
		tokens:  tokens,
		started: time.Now(),
	}
}

type errorResponse struct {
	Error      string `json:"error"`
	RetryAfter string `json:"retry_after,omitempty"`
}

// abortWithError maps engine errors onto HTTP statuses.
func (h *Handlers) abortWithError(c *gin.Context, err error) {
	var (
		limited  *chat.RateLimitedError
		rejected *chat.RejectedError
	)

	switch {
	case errors.As(err, &limited):
		if limited.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: err.Error(), RetryAfter: limited.RetryAfter.String()})
	case errors.As(err, &rejected):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, chat.ErrInvalidChannel):
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, chat.ErrUnauthenticated):
		c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, chat.ErrDisconnected), errors.Is(err, session.ErrEngineClosed):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		h.log.Error("Request failed", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
}

func badRequest(c *gin.Context, format string, args ...any) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(format, args...)})
}
