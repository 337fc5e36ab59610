package handler

import (
	"net/http"

	"docportal/internal/service/upload"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UploadHandler struct {
	uploadService *upload.Service
	logger        *zap.Logger
}

func NewUploadHandler(uploadService *upload.Service, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{uploadService: uploadService, logger: logger}
}

// Init POST /document-requests/:id/uploads/init
func (h *UploadHandler) Init(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req struct {
		Files []upload.FileDescriptor `json:"files"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	id := c.Param("id")
	res, err := h.uploadService.Init(c.Request.Context(), p.ID, id, req.Files)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("requirement_id", id))
		return
	}
	c.JSON(http.StatusOK, res)
}

// Complete POST /document-requests/:id/uploads/complete
func (h *UploadHandler) Complete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req struct {
		Version int                   `json:"version"`
		Items   []upload.UploadedItem `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	id := c.Param("id")
	res, err := h.uploadService.Complete(c.Request.Context(), p.ID, id, req.Version, req.Items)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("requirement_id", id))
		return
	}
	c.JSON(http.StatusOK, res)
}

// FileDownload POST /files/:fileId/signed-download
func (h *UploadHandler) FileDownload(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	fileID := c.Param("fileId")
	d, err := h.uploadService.SignedFileDownload(c.Request.Context(), p.ID, fileID)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("file_id", fileID))
		return
	}
	c.JSON(http.StatusOK, d)
}

// AttachmentDownload POST /document-requests/:id/attachment/signed-download
func (h *UploadHandler) AttachmentDownload(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id := c.Param("id")
	d, err := h.uploadService.SignedAttachmentDownload(c.Request.Context(), p.ID, id)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("requirement_id", id))
		return
	}
	c.JSON(http.StatusOK, d)
}

// AttachmentUpload POST /document-requests/:id/attachment/signed-upload
func (h *UploadHandler) AttachmentUpload(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	id := c.Param("id")
	placement, err := h.uploadService.AttachmentPlacement(c.Request.Context(), p.ID, id, req.Name)
	if err != nil {
		writeError(c, h.logger, err, zap.String("caller_id", p.ID), zap.String("requirement_id", id))
		return
	}
	c.JSON(http.StatusOK, placement)
}
