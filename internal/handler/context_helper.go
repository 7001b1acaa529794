package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFields identifies the caller in audit-style log lines.
func actorFields(c *gin.Context) []zap.Field {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil
	}
	return []zap.Field{zap.String("actor_id", claims.UserID), zap.String("actor_role", string(claims.Role))}
}
