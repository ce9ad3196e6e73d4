package main

import (
	"database/sql"
	"net/http"
	"time"

	"callbridge/internal/auth"
	"callbridge/internal/httpapi"
	"callbridge/internal/ratelimit"
	"callbridge/internal/rbac"
	"callbridge/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authManager *auth.Manager, callbackLimiter *ratelimit.Limiter, db *sql.DB, rdb *redis.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Registration and token issuance are the only unauthenticated API calls.
	r.POST("/users", h.Register)
	r.POST("/auth/token", h.IssueToken)

	// Provider callbacks (public, rate limited per client IP).
	// The record id in the path is unguessable; malformed ids are rejected
	// before any lookup.
	callbacks := r.Group("/calls/provider-callback")
	callbacks.Use(ratelimit.Middleware(callbackLimiter))
	{
		callbacks.POST("/:call_id", h.CallInstructions)
		callbacks.POST("/:call_id/status", h.CallStatus)
	}

	// protected API group
	api := r.Group("/")
	api.Use(auth.RequireAccessToken(authManager))
	{
		api.GET("/me", h.Me)
		api.GET("/users/:user_id", h.GetUser)

		api.POST("/messages", h.SendMessage)
		api.GET("/messages", h.ListMessages)

		api.POST("/calls/start", h.StartCall)
		api.GET("/calls", h.ListCalls)
		api.GET("/calls/:call_id", h.GetCall)

		// ADMIN routes
		admin := api.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.GET("/calls", h.AdminListCalls)
			admin.GET("/users", h.ListUsers)
		}
	}
}
