package httpserver

import (
	"context"
	"net/http"
	"time"

	"docportal/internal/access"
	"docportal/internal/handler"
	"docportal/internal/identity"
	"docportal/pkg/otel"
	"docportal/pkg/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadyCheck 就绪探针，通常是 pool.Ping
type ReadyCheck func(ctx context.Context) error

type Handlers struct {
	Auth        *handler.AuthHandler
	Project     *handler.ProjectHandler
	Requirement *handler.RequirementHandler
	Upload      *handler.UploadHandler
	Review      *handler.ReviewHandler
	Admin       *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	h Handlers,
	resolver *identity.Resolver,
	evaluator *access.Evaluator,
	ready ReadyCheck,
) *Router {
	r := gin.Default()
	r.Use(otel.GinMiddleware(), TraceMiddleware(), MetricsMiddleware())

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if ready != nil {
			if err := ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/auth/login", h.Auth.Login)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(resolver))
	{
		auth.POST("/auth/logout", h.Auth.Logout)
		auth.GET("/auth/me", h.Auth.Me)

		auth.POST("/projects", h.Project.Create)
		auth.GET("/projects", h.Project.List)
		auth.GET("/projects/:id", h.Project.Get)
		auth.GET("/projects/:id/members", h.Project.ListMembers)
		auth.POST("/projects/:id/members", h.Project.AddMember)
		auth.DELETE("/projects/:id/members/:consultantId", h.Project.RemoveMember)

		auth.GET("/projects/:id/document-requests", h.Requirement.List)
		auth.POST("/projects/:id/document-requests", h.Requirement.Create)
		auth.GET("/document-requests/:id", h.Requirement.Get)
		auth.PATCH("/document-requests/:id", h.Requirement.Update)
		auth.DELETE("/document-requests/:id", h.Requirement.Delete)

		auth.POST("/document-requests/:id/uploads/init", h.Upload.Init)
		auth.POST("/document-requests/:id/uploads/complete", h.Upload.Complete)
		auth.POST("/document-requests/:id/attachment/signed-download", h.Upload.AttachmentDownload)
		auth.POST("/document-requests/:id/attachment/signed-upload", h.Upload.AttachmentUpload)
		auth.POST("/files/:fileId/signed-download", h.Upload.FileDownload)

		auth.POST("/document-requests/:id/review", h.Review.Decide)
	}

	if h.Admin != nil {
		admin := r.Group("/admin")
		admin.Use(AuthMiddleware(resolver), RequirePermission(evaluator, rbac.PermissionReplayOutbox))
		{
			admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
			admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
		}
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
