package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/lexchat/internal/attachment"
	"github.com/suPer8Hu/lexchat/internal/chat"
	"github.com/suPer8Hu/lexchat/internal/common"
	"github.com/suPer8Hu/lexchat/internal/config"
	"github.com/suPer8Hu/lexchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/lexchat/internal/logger"
	"github.com/suPer8Hu/lexchat/internal/usage"
	"gorm.io/gorm"
)

const AnonymousSessionHeader = "X-Anonymous-Session-ID"

type Handler struct {
	DB          *gorm.DB
	Cfg         config.Config
	Log         *logger.Logger
	ChatSvc     *chat.Service
	Attachments *attachment.Repo
	Storage     attachment.Storage
	Usage       *usage.Repo
}

func NewHandler(db *gorm.DB, cfg config.Config, log *logger.Logger, chatSvc *chat.Service, storage attachment.Storage) *Handler {
	return &Handler{
		DB:          db,
		Cfg:         cfg,
		Log:         log,
		ChatSvc:     chatSvc,
		Attachments: attachment.NewRepo(db),
		Storage:     storage,
		Usage:       usage.NewRepo(db),
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (string, bool) {
	return middleware.UserID(c)
}

func requireUser(c *gin.Context) (string, bool) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	}
	return uid, ok
}

// chatError maps chat errors onto the response envelope. Anything unexpected
// is logged and reported without detail.
func (h *Handler) chatError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, chat.ErrMissingSession):
		common.Fail(c, http.StatusBadRequest, 10003, "anonymous session id required")
	case errors.Is(err, chat.ErrBadRequest):
		common.Fail(c, http.StatusBadRequest, 10001, err.Error())
	case errors.Is(err, chat.ErrChatNotFound):
		common.Fail(c, http.StatusNotFound, 40004, "chat not found")
	default:
		h.Log.Error(msg, "err", err, "path", c.FullPath(), "request_id", c.GetString(middleware.RequestIDKey))
		common.Fail(c, http.StatusInternalServerError, 50001, msg)
	}
}
