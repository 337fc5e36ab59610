package handler

import (
	"net/http"

	"docportal/internal/service/requirement"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RequirementHandler struct {
	requirementService *requirement.Service
	logger             *zap.Logger
}

func NewRequirementHandler(requirementService *requirement.Service, logger *zap.Logger) *RequirementHandler {
	return &RequirementHandler{requirementService: requirementService, logger: logger}
}

// Create POST /projects/:id/document-requests
func (h *RequirementHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req requirement.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	projectID := c.Param("id")
	created, err := h.requirementService.Create(c.Request.Context(), p.ID, projectID, req)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("project_id", projectID))
		return
	}
	c.JSON(http.StatusCreated, created)
}

// List GET /projects/:id/document-requests
func (h *RequirementHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	projectID := c.Param("id")
	list, err := h.requirementService.ListByProject(c.Request.Context(), p.ID, projectID)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("project_id", projectID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_requests": list})
}

// Get GET /document-requests/:id
func (h *RequirementHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id := c.Param("id")
	got, err := h.requirementService.Get(c.Request.Context(), p.ID, id)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("requirement_id", id))
		return
	}
	c.JSON(http.StatusOK, got)
}

// Update PATCH /document-requests/:id
func (h *RequirementHandler) Update(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var patch requirement.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c)
		return
	}
	id := c.Param("id")
	updated, err := h.requirementService.Update(c.Request.Context(), p.ID, id, patch)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("requirement_id", id))
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete DELETE /document-requests/:id
func (h *RequirementHandler) Delete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.requirementService.Delete(c.Request.Context(), p.ID, id); err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("requirement_id", id))
		return
	}
	c.Status(http.StatusNoContent)
}
