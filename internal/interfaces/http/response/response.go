package response

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
	"sepolia-wallet.backend/pkg/logger"
)

// Success sends a success response
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Error maps err onto its HTTP representation and sends it. Wrapped
// domain sentinels keep their message; anything else becomes a 500.
func Error(c *gin.Context, err error) {
	appErr := domainerrors.FromError(err)
	if appErr.Code == domainerrors.CodeInternalError {
		logger.Error(c.Request.Context(), "Request failed", zap.Error(err))
	}

	c.JSON(appErr.Status, gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
		"error":   appErr.Message,
	})
}

// ErrorWithError sends an error response with a specific status and message
func ErrorWithError(c *gin.Context, status int, code string, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
		"error":   message,
	})
}
