package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gesukichi/DeepAMARIS/chat"
	"github.com/gesukichi/DeepAMARIS/logic"
)

// HistoryController serves the persisted-conversation endpoints. Every
// payload crossing this boundary passes the client-facing filter: tool
// messages stay in storage and never reach the UI.
type HistoryController struct {
	messageLogic *logic.MessageLogic
	convoLogic   *logic.ConversationLogic
	stream       bool
}

func NewHistoryController(messageLogic *logic.MessageLogic, convoLogic *logic.ConversationLogic, stream bool) *HistoryController {
	return &HistoryController{messageLogic: messageLogic, convoLogic: convoLogic, stream: stream}
}

func parseOptionalConversationID(ctx *gin.Context, raw string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return nil, false
	}
	return &id, true
}

// Generate handles POST /history/generate: a persisted conversation turn.
func (c *HistoryController) Generate(ctx *gin.Context) {
	userID, err := extractUserID(ctx)
	if err != nil {
		return
	}

	var req turnRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	convoID, ok := parseOptionalConversationID(ctx, req.ConversationID)
	if !ok {
		return
	}

	if c.stream {
		streamTurn(ctx, func(stream logic.StreamFunc) (*logic.ChatResponse, error) {
			return c.messageLogic.ContinueConversation(ctx.Request.Context(), userID, convoID, req.Messages, stream)
		})
		return
	}

	resp, err := c.messageLogic.ContinueConversation(ctx.Request.Context(), userID, convoID, req.Messages, nil)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// Update handles POST /history/update: persists an exchange that was
// generated in an earlier request (e.g. after a client-side retry
// resolution), tool turns included.
func (c *HistoryController) Update(ctx *gin.Context) {
	userID, err := extractUserID(ctx)
	if err != nil {
		return
	}

	type updateRequest struct {
		ConversationID string         `json:"conversation_id" binding:"required"`
		Messages       []chat.Message `json:"messages" binding:"required"`
	}
	var req updateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	convoID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	if err := c.convoLogic.AppendExchange(userID, convoID, req.Messages); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// Read handles POST /history/read. The stored record keeps the full
// role range; the response is filtered for the client.
func (c *HistoryController) Read(ctx *gin.Context) {
	userID, err := extractUserID(ctx)
	if err != nil {
		return
	}

	type readRequest struct {
		ConversationID string `json:"conversation_id" binding:"required"`
	}
	var req readRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	convoID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	convo, msgs, err := c.convoLogic.Read(userID, convoID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"conversation_id": convo.ID.String(),
		"title":           convo.Title,
		"messages":        chat.FilterForClient(msgs),
	})
}

// List handles GET /history/list
func (c *HistoryController) List(ctx *gin.Context) {
	userID, err := extractUserID(ctx)
	if err != nil {
		return
	}

	convos, err := c.convoLogic.List(userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, convos)
}

// Rename handles POST /history/rename
func (c *HistoryController) Rename(ctx *gin.Context) {
	userID, err := extractUserID(ctx)
	if err != nil {
		return
	}

	type renameRequest struct {
		ConversationID string `json:"conversation_id" binding:"required"`
		Title          string `json:"title" binding:"required"`
	}
	var req renameRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	convoID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	if err := c.convoLogic.Rename(userID, convoID, req.Title); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete handles DELETE /history/delete
func (c *HistoryController) Delete(ctx *gin.Context) {
	userID, err := extractUserID(ctx)
	if err != nil {
		return
	}

	type deleteRequest struct {
		ConversationID string `json:"conversation_id" binding:"required"`
	}
	var req deleteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	convoID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	if err := c.convoLogic.Delete(userID, convoID); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// MessageFeedback handles POST /history/message_feedback
func (c *HistoryController) MessageFeedback(ctx *gin.Context) {
	userID, err := extractUserID(ctx)
	if err != nil {
		return
	}

	type feedbackRequest struct {
		MessageID       string `json:"message_id" binding:"required"`
		MessageFeedback string `json:"message_feedback" binding:"required"`
	}
	var req feedbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msgID, err := uuid.Parse(req.MessageID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}

	if err := c.convoLogic.UpdateMessageFeedback(userID, msgID, req.MessageFeedback); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "message_id": req.MessageID})
}
