package main

import (
	"eldercare-platform/internal/httpapi"
	"eldercare-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", httpapi.Health)

	// NOTE: credentials are validated upstream; see httpapi.Login.
	r.POST("/v1/auth/login", h.Login)
	r.POST("/v1/auth/refresh", h.Refresh)

	// Media join tokens. The path matches what call clients are configured with.
	r.POST("/api/agora/token", authMW, h.IssueRTCToken)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", h.Me)

		// APPOINTMENTS routes
		appts := v1.Group("/appointments")
		{
			appts.GET("", h.ListAppointments)
			appts.GET("/:appointment_id/calls", h.CallHistory)
		}

		// CALLS routes
		calls := v1.Group("/calls")
		{
			calls.GET("/:call_id/recordings", h.CallRecordings)

			starters := calls.Group("")
			starters.Use(rbac.RequireAnyRole(rbac.RoleDoctor, rbac.RoleCaregiver))
			starters.POST("", h.StartCall)
			starters.POST("/:call_id/end", h.EndCall)
			starters.POST("/:call_id/recordings", h.SaveRecording)
		}

		// RECORDINGS routes
		recs := v1.Group("/recordings")
		recs.Use(rbac.RequireAnyRole(rbac.RoleDoctor, rbac.RoleCaregiver))
		{
			recs.PATCH("/:recording_id", h.UpdateRecording)
		}

		// REPORTS routes
		reports := v1.Group("/reports")
		{
			reports.GET("/calls", rbac.RequireAnyRole(rbac.RoleDoctor), h.CallsSummary)
			reports.GET("/starters", rbac.RequireAdmin(), h.StarterBreakdown)
		}
	}
}
