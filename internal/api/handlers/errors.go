package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/evtrip/internal/service"
)

// respondError 将服务层错误映射为 HTTP 响应
// 5xx 只返回通用信息，错误细节只写日志
func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "reason": verr.Reason})
	case errors.Is(err, service.ErrUnknownVehicleProfile):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown vehicle profile", "reason": service.ReasonUnknownVehicle})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
	case errors.Is(err, service.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Username already taken", "reason": "username_taken"})
	case errors.Is(err, service.ErrTripNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Trip not found"})
	default:
		h.logger.Error(fallback, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func badRequest(c *gin.Context, reason, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "reason": reason})
}
