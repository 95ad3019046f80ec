package http

import (
	"github.com/dkeye/Jam/internal/app/orch"
	"github.com/dkeye/Jam/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientTokenKey = "client_token"
	nicknameKey    = "nickname"

	sessionRate  = 0.2
	sessionBurst = 5
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware keeps the client token in the signed session so it
// cannot be forged or swapped per request. Must run after sessions.Sessions.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientTokenKey).(string)
		if _, err := uuid.Parse(token); err != nil {
			token = genClientToken()
			s.Set(clientTokenKey, token)
			if err := s.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	switch cfg.Mode {
	case gin.ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case gin.TestMode:
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if err := r.SetTrustedProxies(nil); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("trusted proxies")
	}
	if cfg.Mode == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("JamSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &Handlers{Orch: o}
	limited := NewClientRateLimiter(cfg.SaveRate, cfg.SaveBurst).Middleware(ByClient)
	perIP := NewClientRateLimiter(sessionRate, sessionBurst).Middleware(ByIP)

	api := r.Group("/api")
	api.GET("/session", h.whoAmI)
	api.POST("/session", perIP, h.setNickname)

	sched := api.Group("/rooms/:roomID/schedule", RequireNickname())
	sched.POST("", limited, h.mount)
	sched.GET("", h.state)
	sched.DELETE("", h.unmount)
	sched.POST("/toggle", h.toggle)
	sched.POST("/save", limited, h.save)
	sched.POST("/refresh", limited, h.refresh)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
