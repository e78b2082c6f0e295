package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/lexchat/internal/common"
	"github.com/suPer8Hu/lexchat/internal/config"
	"github.com/suPer8Hu/lexchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/lexchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/lexchat/internal/logger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(h *handlers.Handler, cfg config.Config, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.MaxMultipartMemory = 32 << 20

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	if cfg.OtelEnabled {
		r.Use(otelgin.Middleware(cfg.OtelServiceName))
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	api := r.Group("/api/v1")
	authed := middleware.AuthRequired(cfg.JWTSecret)
	optional := middleware.OptionalAuth(cfg.JWTSecret)

	// auth
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.GET("/auth/me", authed, h.Me)
	api.POST("/auth/logout", h.Logout)

	// chatbot (token optional, anonymous callers send X-Anonymous-Session-ID)
	bot := api.Group("/chatbot", optional)
	bot.POST("/chat", h.Chat)
	bot.GET("/anonymous/:chat_id/messages", h.AnonymousMessages)
	bot.DELETE("/anonymous", h.ClearAnonymous)

	// chats (JWT required), shared chats are public
	chats := api.Group("/chat")
	chats.POST("/chats", authed, h.CreateChat)
	chats.GET("/chats", authed, h.ListChats)
	chats.GET("/chats/:id", authed, h.GetChat)
	chats.GET("/chats/:id/messages", authed, h.ListChatMessages)
	chats.POST("/chats/:id/messages", authed, h.AddChatMessage)
	chats.POST("/chats/:id/share", authed, h.ShareChat)
	chats.GET("/shared/:id", h.GetSharedChat)
	chats.GET("/shared/:id/messages", h.ListSharedMessages)

	// attachments
	att := api.Group("/attachments", optional)
	att.POST("/upload", h.UploadAttachment)
	att.GET("/file/:id", h.ServeAttachment)

	// usage
	use := api.Group("/usage", authed)
	use.GET("/recent", h.RecentUsage)
	use.GET("/total", h.TotalUsage)

	// admin dashboard
	dash := api.Group("/dashboard", authed, middleware.AdminRequired(h.DB))
	dash.GET("/monthly-average", h.MonthlyAverageUsage)
	dash.GET("/user-monthly-usage", h.UserMonthlyUsage)
	dash.GET("/recent-token-usage", h.RecentTokenUsage)

	return r
}
