package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	AllowedOrigins []string
	// AdminSecret signs and verifies admin bearer tokens.
	AdminSecret []byte
}

func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", HeaderAuthorization, HeaderRequestID},
			ExposeHeaders: []string{HeaderRequestID},
			MaxAge:        10 * time.Minute,
		}))
	}

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/registry", h.Registry)

		api.GET("/accounts/:salt", h.GetAccount)
		api.POST("/accounts", h.CreateAccount)
		api.POST("/accounts/assign", h.AssignAccount)

		api.GET("/events", h.ListEvents)

		admin := api.Group("", requireAdmin(cfg.AdminSecret))
		admin.POST("/authorizations", h.IssueAuthorization)
		admin.GET("/authorizations", h.ListAuthorizations)
		admin.POST("/signer", h.SetSigner)
	}

	return r
}
