package http

import (
	"context"

	"github.com/dkeye/roomview/internal/adapters/signal"
	"github.com/dkeye/roomview/internal/auth"
	"github.com/dkeye/roomview/internal/config"
	"github.com/dkeye/roomview/internal/hub"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, issuer *auth.Issuer, h *hub.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RoomviewSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	wsURL := cfg.LiveKit.WSURL
	if wsURL == "" {
		wsURL = config.DefaultLiveKitURL
	}
	tokens := &TokenHandler{
		Issuer:  issuer,
		Limiter: NewGrantLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		WSURL:   wsURL,
	}
	ctrl := signal.NewSignalWSController(h, issuer, cfg.ReadLimit, cfg.PingPeriod)

	api := r.Group("/api")
	api.GET("/get-token", tokens.GetToken)
	api.GET("/whoami", WhoAmI)
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(200, h.Rooms.List())
	})
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
