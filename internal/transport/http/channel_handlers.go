package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/legacy-gateway/internal/core"
	"github.com/vovakirdan/legacy-gateway/internal/service/messages"
)

// ChannelHandlers exposes the message endpoints that drive gateway dispatches.
type ChannelHandlers struct {
	messages *messages.Service
	log      *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(svc *messages.Service, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{messages: svc, log: logger}
}

// SendMessageRequest is the body of a message post.
type SendMessageRequest struct {
	Content string `json:"content"`
	TTS     bool   `json:"tts"`
	Nonce   string `json:"nonce"`
}

// SendMessage creates a message in the channel.
// POST /api/channels/:channel_id/messages
func (h *ChannelHandlers) SendMessage(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), account.ID, c.Param("channel_id"), req.Content, req.TTS, req.Nonce)
	if err != nil && msg == nil {
		h.writeError(c, err)
		return
	}
	if err != nil {
		h.log.Warn().Err(err).Str("message_id", msg.ID).Msg("message stored but not dispatched")
	}
	c.JSON(http.StatusOK, core.MessagePayload(msg))
}

// Typing starts the typing indicator.
// POST /api/channels/:channel_id/typing
func (h *ChannelHandlers) Typing(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if err := h.messages.Typing(c.Request.Context(), account.ID, c.Param("channel_id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Ack moves the caller's read marker.
// POST /api/channels/:channel_id/messages/:message_id/ack
func (h *ChannelHandlers) Ack(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	err := h.messages.Acknowledge(c.Request.Context(), account.ID, c.Param("channel_id"), c.Param("message_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChannelHandlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, messages.ErrChannelNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown channel"})
	case errors.Is(err, messages.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "missing permissions"})
	case errors.Is(err, messages.ErrEmptyMessage), errors.Is(err, messages.ErrMessageTooLong):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Str("channel_id", c.Param("channel_id")).Msg("channel request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
