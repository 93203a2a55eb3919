package handlers

import (
	"github.com/gin-gonic/gin"
	"krosty/internal/app/infrastructure/config"
	"net/http"
	"strings"
)

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type tokenStatus struct {
	Present     bool `json:"present"`
	NeedsReauth bool `json:"needs_reauth"`
}

// TokenStatusHandler never returns the credential itself.
func (h *Handlers) TokenStatusHandler(c *gin.Context) {
	_, ok := h.tokens.Current()
	c.JSON(http.StatusOK, tokenStatus{Present: ok, NeedsReauth: h.tokens.NeedsReauth()})
}

func (h *Handlers) SetTokenHandler(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		badRequest(c, "token is required")
		return
	}

	if err := h.tokens.Set(req.Token); err != nil {
		h.log.Error("Failed to persist token", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "token set but not persisted"})
		return
	}
	h.log.Info("Token updated")
	c.Status(http.StatusNoContent)
}

func (h *Handlers) ClearTokenHandler(c *gin.Context) {
	if err := h.tokens.Set(""); err != nil {
		h.log.Error("Failed to clear persisted token", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "token cleared but vault not"})
		return
	}
	h.log.Info("Token cleared")
	c.Status(http.StatusNoContent)
}

type logLevelRequest struct {
	Level string `json:"level" binding:"required"`
}

func (h *Handlers) LogLevelHandler(c *gin.Context) {
	var req logLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "level is required")
		return
	}

	level := strings.ToLower(strings.TrimSpace(req.Level))
	if err := h.manager.Update(func(cfg *config.Config) {
		cfg.App.LogLevel = level
	}); err != nil {
		badRequest(c, "%v", err)
		return
	}

	h.log.SetLogLevel(level)
	c.JSON(http.StatusOK, gin.H{"level": h.log.GetLogLevel()})
}
