package http

import (
	"context"
	"os"

	"github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctrl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(RequestLogger(cfg.Mode == "debug"))
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("MeetSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		if _, err := os.Stat(cfg.StaticPath); err == nil {
			r.Static("/static", cfg.StaticPath)
			r.GET("/", func(c *gin.Context) {
				c.File(cfg.StaticPath + "/index.html")
			})
		}
	}

	h := &Handlers{Orch: o}
	r.GET("/healthz", h.Health)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Bool("auth_required", cfg.Auth.Required).Msg("router setup")

	api := r.Group("/api")
	api.Use(AuthMiddleware(cfg.Auth))

	api.GET("/rooms", h.ActiveRooms)
	api.POST("/rooms", h.CreateRoom)
	api.GET("/rooms/:code", h.GetRoom)
	api.GET("/rooms/:code/participants", h.Participants)
	api.GET("/chat/:roomId", h.ChatHistory)

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("token", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
