package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/lexchat/internal/attachment"
	"github.com/suPer8Hu/lexchat/internal/chat"
	"github.com/suPer8Hu/lexchat/internal/common"
)

type chatbotReq struct {
	Message          string                 `json:"message"`
	ChatID           string                 `json:"chat_id"`
	PreviousMessages []chat.PreviousMessage `json:"previous_messages"`
	Attachments      []attachment.Ref       `json:"attachments"`
}

func anonymousSession(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(AnonymousSessionHeader))
}

// Chat answers one message. Without a token the caller is anonymous and must
// send X-Anonymous-Session-ID.
func (h *Handler) Chat(c *gin.Context) {
	var req chatbotReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	in := &chat.Request{
		AnonymousSessionID: anonymousSession(c),
		ChatID:             strings.TrimSpace(req.ChatID),
		Message:            req.Message,
		PreviousMessages:   req.PreviousMessages,
		Attachments:        req.Attachments,
	}
	if uid, ok := userIDFromContext(c); ok {
		in.Actor = &chat.Actor{UserID: uid}
	}

	resp, err := h.ChatSvc.Chat(c.Request.Context(), in)
	if err != nil {
		h.chatError(c, err, "failed to process chat message")
		return
	}
	common.OK(c, resp)
}

func (h *Handler) AnonymousMessages(c *gin.Context) {
	msgs, err := h.ChatSvc.AnonymousMessages(c.Request.Context(), anonymousSession(c), c.Param("chat_id"))
	if err != nil {
		h.chatError(c, err, "failed to load anonymous chat")
		return
	}
	common.OK(c, msgs)
}

func (h *Handler) ClearAnonymous(c *gin.Context) {
	if err := h.ChatSvc.ClearAnonymous(c.Request.Context(), anonymousSession(c)); err != nil {
		h.chatError(c, err, "failed to clear anonymous session")
		return
	}
	common.OK(c, gin.H{"cleared": true})
}
