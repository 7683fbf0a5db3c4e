package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/decleanup/dcu/core"
)

// SetupRouter wires the HTTP surface onto a gin engine.
func SetupRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/nonce", h.Nonce)
		auth.POST("/verify", h.Verify)
		auth.POST("/logout", RequireAuth(h.auth), h.Logout)
	}

	authed := api.Group("", RequireAuth(h.auth))
	{
		authed.GET("/dashboard/data", h.Dashboard)

		authed.POST("/submissions", h.CreateSubmission)
		authed.GET("/submissions", h.ListSubmissions)
		authed.GET("/submissions/:id", h.GetSubmission)
		authed.POST("/submissions/:id/verify",
			RequireRole(core.RoleValidator, core.RoleAdmin), h.ReviewSubmission)

		authed.POST("/rewards/claim", h.ClaimReward)
	}

	return router
}
