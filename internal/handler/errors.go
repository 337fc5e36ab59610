package handler

import (
	"errors"
	"net/http"

	"docportal/internal/apperr"
	"docportal/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError 把错误类别映射为状态码。内部错误只返回笼统信息，细节写日志。
func writeError(c *gin.Context, log *zap.Logger, err error, fields ...zap.Field) {
	var ve *apperr.ValidationError
	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": apperr.ErrUnauthenticated.Error()})
	case errors.Is(err, apperr.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": apperr.ErrForbidden.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": apperr.ErrNotFound.Error()})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message})
	case errors.Is(err, apperr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": apperr.ErrValidation.Error()})
	case errors.Is(err, apperr.ErrTooManyRequests):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": apperr.ErrTooManyRequests.Error()})
	default:
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			append(fields,
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)...,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}
