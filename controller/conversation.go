package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/gesukichi/DeepAMARIS/chat"
	"github.com/gesukichi/DeepAMARIS/dao"
	"github.com/gesukichi/DeepAMARIS/logic"
	"github.com/gesukichi/DeepAMARIS/pkg"
)

// ConversationController serves the stateless chat endpoint.
type ConversationController struct {
	messageLogic *logic.MessageLogic
	stream       bool
}

func NewConversationController(messageLogic *logic.MessageLogic, stream bool) *ConversationController {
	return &ConversationController{messageLogic: messageLogic, stream: stream}
}

type turnRequest struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	Messages       []chat.Message `json:"messages" binding:"required"`
}

// Conversation handles POST /conversation. Nothing is persisted; the
// sanitize-inject-complete pipeline is the same as the history path.
func (c *ConversationController) Conversation(ctx *gin.Context) {
	var req turnRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.stream {
		streamTurn(ctx, func(stream logic.StreamFunc) (*logic.ChatResponse, error) {
			return c.messageLogic.Chat(ctx.Request.Context(), req.Messages, stream)
		})
		return
	}

	resp, err := c.messageLogic.Chat(ctx.Request.Context(), req.Messages, nil)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// streamTurn runs a turn in SSE mode: content deltas as "message"
// events, a final "done" event carrying the response envelope.
func streamTurn(ctx *gin.Context, run func(logic.StreamFunc) (*logic.ChatResponse, error)) {
	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")

	resp, err := run(func(delta string) {
		ctx.SSEvent("message", delta)
		ctx.Writer.Flush()
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.SSEvent("done", resp)
	ctx.Writer.Flush()
}

// respondError maps the error taxonomy to HTTP statuses. Retryable
// upstream and storage failures get 503 so clients may back off and
// retry; structural failures are terminal.
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, logic.ErrInvalidRequest):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dao.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, dao.ErrUnavailable):
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable", "retryable": true})
	case errors.Is(err, pkg.ErrUpstreamUnavailable):
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "completion service unavailable", "retryable": true})
	case errors.Is(err, pkg.ErrUpstreamInvalid):
		log.Error().Err(err).Msg("upstream rejected sanitized request")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "completion request failed"})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
