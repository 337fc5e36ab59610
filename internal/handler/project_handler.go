package handler

import (
	"net/http"

	"docportal/internal/service/project"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProjectHandler struct {
	projectService *project.Service
	logger         *zap.Logger
}

func NewProjectHandler(projectService *project.Service, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projectService: projectService, logger: logger}
}

// Create POST /projects
func (h *ProjectHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req project.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	created, err := h.projectService.Create(c.Request.Context(), p.ID, req)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID))
		return
	}
	c.JSON(http.StatusCreated, created)
}

// List GET /projects
func (h *ProjectHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	projects, err := h.projectService.List(c.Request.Context(), p.ID)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// Get GET /projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	projectID := c.Param("id")
	got, err := h.projectService.Get(c.Request.Context(), p.ID, projectID)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("project_id", projectID))
		return
	}
	c.JSON(http.StatusOK, got)
}

// ListMembers GET /projects/:id/members
func (h *ProjectHandler) ListMembers(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	projectID := c.Param("id")
	members, err := h.projectService.ListMembers(c.Request.Context(), p.ID, projectID)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("project_id", projectID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// AddMember POST /projects/:id/members
func (h *ProjectHandler) AddMember(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req struct {
		ConsultantID string `json:"consultant_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	projectID := c.Param("id")
	if err := h.projectService.AddMember(c.Request.Context(), p.ID, projectID, req.ConsultantID); err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("project_id", projectID))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project_id": projectID, "consultant_id": req.ConsultantID})
}

// RemoveMember DELETE /projects/:id/members/:consultantId
func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	projectID := c.Param("id")
	if err := h.projectService.RemoveMember(c.Request.Context(), p.ID, projectID, c.Param("consultantId")); err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("project_id", projectID))
		return
	}
	c.Status(http.StatusNoContent)
}
