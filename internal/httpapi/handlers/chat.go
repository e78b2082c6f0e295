package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/lexchat/internal/chat"
	"github.com/suPer8Hu/lexchat/internal/common"
)

type createChatReq struct {
	Title string `json:"title"`
}

func (h *Handler) CreateChat(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	var req createChatReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	ch, err := h.ChatSvc.CreateChat(c.Request.Context(), uid, req.Title)
	if err != nil {
		h.chatError(c, err, "failed to create chat")
		return
	}
	common.OK(c, ch)
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	chats, err := h.ChatSvc.ListChats(c.Request.Context(), uid)
	if err != nil {
		h.chatError(c, err, "failed to list chats")
		return
	}
	if chats == nil {
		chats = []chat.Chat{}
	}
	common.OK(c, chats)
}

func (h *Handler) GetChat(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	ch, err := h.ChatSvc.GetChat(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.chatError(c, err, "failed to load chat")
		return
	}
	common.OK(c, ch)
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	msgs, err := h.ChatSvc.Messages(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.chatError(c, err, "failed to list messages")
		return
	}
	common.OK(c, messagesOrEmpty(msgs))
}

type addMessageReq struct {
	Role    string        `json:"role"`
	Content string        `json:"content"`
	Sources []chat.Source `json:"sources"`
}

func (h *Handler) AddChatMessage(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	var req addMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	m, err := h.ChatSvc.AddMessage(c.Request.Context(), uid, c.Param("id"), req.Role, req.Content, req.Sources)
	if err != nil {
		h.chatError(c, err, "failed to add message")
		return
	}
	common.OK(c, m)
}

func (h *Handler) ShareChat(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	ch, err := h.ChatSvc.ShareChat(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.chatError(c, err, "failed to share chat")
		return
	}
	common.OK(c, gin.H{"chat_id": ch.ID, "is_shared": ch.IsShared})
}

func (h *Handler) GetSharedChat(c *gin.Context) {
	ch, err := h.ChatSvc.SharedChat(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.chatError(c, err, "failed to load shared chat")
		return
	}
	common.OK(c, ch)
}

func (h *Handler) ListSharedMessages(c *gin.Context) {
	msgs, err := h.ChatSvc.SharedMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.chatError(c, err, "failed to list messages")
		return
	}
	common.OK(c, messagesOrEmpty(msgs))
}

func messagesOrEmpty(msgs []chat.Message) []chat.Message {
	if msgs == nil {
		return []chat.Message{}
	}
	return msgs
}
