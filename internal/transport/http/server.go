package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lanchat-server/internal/auth"
	"github.com/vovakirdan/lanchat-server/internal/config"
	"github.com/vovakirdan/lanchat-server/internal/core"
	"github.com/vovakirdan/lanchat-server/internal/store"
)

// Deps groups what the HTTP layer talks to.
type Deps struct {
	Hub      *core.Hub
	Router   *core.Router
	Unread   *core.UnreadAggregator
	Presence *core.Presence
	Auth     *auth.Service
	Users    store.UserStore
}

// NewServer builds the HTTP server with the REST API and the websocket endpoint.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/ws", gin.WrapH(NewWSHandler(deps.Hub, deps.Auth, cfg, logger)))

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	messageHandlers := NewMessageHandlers(deps.Router, deps.Unread, logger)
	userHandlers := NewUserHandlers(deps.Users, deps.Presence, logger)

	api := router.Group("/api")
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("")
	authed.Use(AuthMiddleware(deps.Auth, cfg.AuthRequired, logger))
	authed.POST("/change-password", apiHandlers.ChangePassword)
	authed.GET("/users", userHandlers.ListUsers)
	authed.GET("/messages/:chatId", messageHandlers.History)
	authed.GET("/unread-counts/:username", messageHandlers.UnreadCounts)
	authed.GET("/file/:messageId", messageHandlers.File)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
