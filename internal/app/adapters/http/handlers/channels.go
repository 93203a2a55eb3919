package handlers

import (
	"github.com/gin-gonic/gin"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/domain/session"
	"krosty/internal/app/infrastructure/config"
	"log/slog"
	"net/http"
	"slices"
	"time"
)

func (h *Handlers) ListChannelsHandler(c *gin.Context) {
	sessions := h.engine.Sessions()
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, newSessionView(s))
	}
	c.JSON(http.StatusOK, views)
}

// openRequest with Remember set also adds the channel to the config, so it
// is opened again on start.
type openRequest struct {
	Channel  string `json:"channel" binding:"required"`
	Remember bool   `json:"remember"`
}

func (h *Handlers) OpenChannelHandler(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: %v", err)
		return
	}

	id, err := chat.ParseChannelID(req.Channel)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if s, ok := h.engine.Find(id); ok {
		c.JSON(http.StatusOK, newSessionView(s))
		return
	}

	s, err := h.engine.Open(string(id))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	if req.Remember {
		if err := h.manager.Update(func(cfg *config.Config) {
			if !slices.Contains(cfg.Channels, string(id)) {
				cfg.Channels = append(cfg.Channels, string(id))
			}
		}); err != nil {
			h.log.Error("Failed to remember channel", err, slog.String("channel", string(id)))
		}
	}

	c.JSON(http.StatusCreated, newSessionView(s))
}

func (h *Handlers) CloseChannelHandler(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	h.engine.Close(s)

	channel := string(s.Channel())
	if err := h.manager.Update(func(cfg *config.Config) {
		cfg.Channels = slices.DeleteFunc(cfg.Channels, func(ch string) bool { return ch == channel })
	}); err != nil {
		h.log.Error("Failed to forget channel", err, slog.String("channel", channel))
	}

	c.Status(http.StatusNoContent)
}

func (h *Handlers) ReconnectHandler(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	s.Reconnect()
	c.JSON(http.StatusAccepted, newSessionView(s))
}

type actionRequest struct {
	Kind      string `json:"kind" binding:"required"`
	Content   string `json:"content"`
	ReplyTo   string `json:"reply_to"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Duration  string `json:"duration"`
	Reason    string `json:"reason"`
}

func (r actionRequest) action() (chat.Action, error) {
	switch r.Kind {
	case chat.ActionSendMessage.String():
		if r.ReplyTo != "" {
			return chat.Reply(r.Content, r.ReplyTo), nil
		}
		return chat.SendMessage(r.Content), nil
	case chat.ActionDeleteMessage.String():
		return chat.DeleteMessage(r.MessageID), nil
	case chat.ActionTimeoutUser.String():
		d, err := time.ParseDuration(r.Duration)
		if err != nil {
			return chat.Action{}, &chat.RejectedError{Reason: "invalid duration " + r.Duration}
		}
		return chat.TimeoutUser(r.UserID, d, r.Reason), nil
	case chat.ActionBanUser.String():
		return chat.BanUser(r.UserID, r.Reason), nil
	}
	return chat.Action{}, &chat.RejectedError{Reason: "unknown action kind " + r.Kind}
}

type ackResponse struct {
	MessageID string    `json:"message_id,omitempty"`
	At        time.Time `json:"at"`
}

func (h *Handlers) ActionHandler(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: %v", err)
		return
	}
	action, err := req.action()
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	ack, err := s.Send(c.Request.Context(), action)
	if err != nil {
		h.log.Debug("Action failed",
			slog.String("channel", string(s.Channel())),
			slog.String("kind", action.Kind.String()),
			slog.String("error", err.Error()),
		)
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ackResponse{MessageID: ack.MessageID, At: ack.At})
}

func (h *Handlers) lookup(c *gin.Context) (*session.Session, bool) {
	id, err := chat.ParseChannelID(c.Param("channel"))
	if err != nil {
		h.abortWithError(c, err)
		return nil, false
	}

	s, ok := h.engine.Find(id)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "no session for channel " + string(id)})
		return nil, false
	}
	return s, true
}
