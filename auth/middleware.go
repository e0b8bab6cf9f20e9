package auth

import (
	"dm-lab/errors"
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

type TokenValidator interface {
	ValidateToken(tokenString string) (*CustomClaims, error)
}

// RequireAuth rejects requests without a valid "Bearer <token>" header
// and stores the caller id in the gin context.
func RequireAuth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abort(c, errors.Authentication("authorization token is missing"))
			return
		}
		claims, err := tokens.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			abort(c, err)
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// UserID returns the authenticated caller set by RequireAuth.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{
		"error":   errors.Code(err),
		"message": errors.Message(err),
	})
}
