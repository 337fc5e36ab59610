package handler

import (
	"net/http"

	"docportal/internal/service/review"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReviewHandler struct {
	reviewService *review.Service
	logger        *zap.Logger
}

func NewReviewHandler(reviewService *review.Service, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService, logger: logger}
}

// Decide POST /document-requests/:id/review
func (h *ReviewHandler) Decide(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req struct {
		Action string `json:"action" binding:"required"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	id := c.Param("id")
	res, err := h.reviewService.DecideAsCaller(c.Request.Context(), p.ID, id, review.Action(req.Action), req.Note)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("requirement_id", id))
		return
	}
	c.JSON(http.StatusOK, res)
}
