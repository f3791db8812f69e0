package http

import (
	stdhttp "net/http"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/legacy-gateway/internal/auth"
	"github.com/vovakirdan/legacy-gateway/internal/config"
	"github.com/vovakirdan/legacy-gateway/internal/core"
	"github.com/vovakirdan/legacy-gateway/internal/service/messages"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Config   config.Config
	Auth     *auth.Service
	Registry *core.Registry
	Ready    *core.ReadyBuilder
	Messages *messages.Service
	Clock    clock.Clock
	Logger   *zerolog.Logger
}

// NewRouter builds the gin engine with the gateway and REST routes.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(d.Logger))

	gateway := gin.WrapH(NewGatewayHandler(d.Config.Gateway, d.Auth, d.Registry, d.Ready, d.Clock, d.Logger))
	api := NewAPIHandlers(d.Auth, d.Config.Gateway.URL, d.Logger)
	channels := NewChannelHandlers(d.Messages, d.Logger)

	router.GET("/health", healthHandler)
	router.GET("/", gateway)
	router.GET("/gateway", gateway)

	router.GET("/api/gateway", api.Gateway)
	router.POST("/api/auth/register", api.Register)
	router.POST("/api/auth/login", api.Login)

	authed := router.Group("/api")
	authed.Use(AuthMiddleware(d.Auth, d.Logger))
	authed.GET("/users/@me", Me)
	authed.POST("/channels/:channel_id/messages", channels.SendMessage)
	authed.POST("/channels/:channel_id/typing", channels.Typing)
	authed.POST("/channels/:channel_id/messages/:message_id/ack", channels.Ack)

	return router
}

// NewServer builds an HTTP server around NewRouter.
func NewServer(d Deps) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              d.Config.Addr,
		Handler:           NewRouter(d),
		ReadHeaderTimeout: d.Config.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
