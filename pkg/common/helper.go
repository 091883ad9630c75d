package common

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"goldex.com/pkg/logger"
	"goldex.com/pkg/xerr"
)

// Response is the envelope every JSON endpoint answers with. Extra keys
// (cached, symbol, days, ...) are merged in by Success.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success writes {"success":true, ...extra}. data is omitted when nil.
func Success(c *gin.Context, status int, data interface{}, extra gin.H) {
	body := gin.H{"success": true}
	if data != nil {
		body["data"] = data
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func Fail(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, Response{
		Success: false,
		Error:   message,
	})
}

// FailFromErr maps internal failures to {success:false,error} + status.
// Client errors are logged at warn, everything else at error.
func FailFromErr(c *gin.Context, err error) {
	status := xerr.HTTPStatus(err)
	fields := []zap.Field{
		zap.String("request_id", RequestIDFromGin(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= 500 {
		logger.Error(c.Request.Context(), "http error", fields...)
	} else {
		logger.Warn(c.Request.Context(), "http error", fields...)
	}
	Fail(c, status, xerr.Message(err))
}
