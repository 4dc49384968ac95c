package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/auth"
	"github.com/khoahotran/tagvault/pkg/logger"
)

const (
	GinContextKeyOperatorID = "operatorID"
)

func AuthMiddleware(jwtSvc *auth.JWTService, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			return
		}

		claims, err := jwtSvc.ValidateToken(tokenString)
		if err != nil {
			log.Debug("Rejected token", zap.Error(err), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(GinContextKeyOperatorID, claims.OperatorID)

		c.Next()
	}
}

// ErrorMiddleware renders the last error a handler attached with c.Error.
func ErrorMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status := apperror.ToHTTPStatus(err)

		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			appErr = apperror.NewInternal("unexpected error", err)
		}
		if status >= http.StatusInternalServerError {
			log.Error("Request failed", err, zap.String("method", c.Request.Method), zap.String("path", c.FullPath()))
		}
		c.AbortWithStatusJSON(status, appErr.ToJSON())
	}
}

func GetOperatorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	operatorID, ok := ctx.Value(GinContextKeyOperatorID).(uuid.UUID)
	return operatorID, ok
}

func GetOperatorIDFromGinContext(c *gin.Context) (uuid.UUID, bool) {
	operatorID, ok := c.Get(GinContextKeyOperatorID)
	if !ok {
		return uuid.Nil, false
	}
	operatorUUID, ok := operatorID.(uuid.UUID)
	if !ok {
		return uuid.Nil, false
	}
	return operatorUUID, true
}
