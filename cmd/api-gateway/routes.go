package main

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tilawah-live-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tilawah-live-api/internal/middleware"
	"github.com/noah-isme/tilawah-live-api/internal/models"
)

type routes struct {
	access     *handler.AccessHandler
	sessions   *handler.SessionHandler
	presence   *handler.PresenceHandler
	scholars   *handler.ScholarHandler
	metrics    *handler.MetricsHandler
	authorizer gin.HandlerFunc
}

func (rt routes) register(r *gin.Engine, prefix string) {
	r.GET("/health", rt.metrics.Health)
	r.GET("/ready", rt.metrics.Ready)
	r.GET("/metrics", rt.metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(rt.authorizer)

	accessGroup := api.Group("/access")
	accessGroup.POST("/requests", rt.access.Request)
	accessGroup.GET("/status", rt.access.Status)
	accessGroup.GET("/requests", internalmiddleware.RequireRoles(models.RoleAdmin), rt.access.List)
	accessGroup.POST("/requests/:id/decision", internalmiddleware.RequireRoles(models.RoleAdmin), rt.access.Decide)

	participants := internalmiddleware.RequireRoles(models.RoleParent, models.RoleStudent, models.RoleAdmin)
	live := api.Group("/live")
	live.POST("/batches/:batchId/sessions", participants, rt.sessions.Start)
	live.POST("/batches/:batchId/leave", participants, rt.sessions.Leave)
	live.POST("/batches/:batchId/ping", participants, rt.presence.Ping)
	live.PUT("/sessions/:id/position", participants, rt.sessions.UpdatePosition)
	live.GET("/sessions/:id", internalmiddleware.RequireRoles(models.RoleParent, models.RoleStudent, models.RoleScholar, models.RoleAdmin), rt.sessions.Get)
	live.POST("/sessions/:id/end", internalmiddleware.RequireRoles(models.RoleScholar, models.RoleAdmin), rt.sessions.End)

	scholars := api.Group("/scholars/:scholarId")
	scholars.Use(internalmiddleware.RBAC(internalmiddleware.RoleSelf, string(models.RoleAdmin)))
	scholars.GET("/live-sessions", rt.scholars.ListActive)
	scholars.GET("/live-sessions/export", rt.scholars.Export)
}
