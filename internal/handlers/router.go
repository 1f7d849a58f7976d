package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"

	"github.com/retailchat-ai/server/internal/agent/session"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// RouterConfig describes where generated artifacts are served from.
type RouterConfig struct {
	AssetFs     afero.Fs
	AssetDir    string
	AssetPrefix string
	// AllowOrigins lists CORS origins; empty allows all.
	AllowOrigins []string
}

func NewRouter(chat *ChatHandler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(), gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.AllowOrigins)))

	r.GET("/health", HealthCheck)

	if cfg.AssetFs != nil && cfg.AssetPrefix != "" {
		r.StaticFS(cfg.AssetPrefix, afero.NewHttpFs(cfg.AssetFs).Dir(cfg.AssetDir))
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/sessions", chat.OpenSession)

		sessions := v1.Group("/sessions/:id", RequireSessionID())
		{
			sessions.POST("/reset", chat.ResetSession)
			sessions.POST("/files", chat.UploadFile)
			sessions.POST("/chat", chat.Chat)
			sessions.GET("/messages", chat.Messages)
			sessions.GET("/cart", chat.Cart)
		}
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

// RequireSessionID aborts requests whose :id is not a session id.
func RequireSessionID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := session.ValidID(c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request through zerolog.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logx.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}
