package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"comm-terminal/internal/config"
	"comm-terminal/internal/session"
	"comm-terminal/pkg/utils"
)

// AuthMiddleware verifies the bearer token and stamps the session onto the
// request context so outbound backend calls reuse the caller's credentials.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid authorization header format")
			c.Abort()
			return
		}

		token := parts[1]

		claims, err := utils.ValidateToken(token, cfg.JWT.Secret)
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Token subject is not a valid user id")
			c.Abort()
			return
		}

		c.Set(session.GinUserIDKey, claims.UserID)
		c.Set("email", claims.Email)

		ctx := session.WithUserID(c.Request.Context(), userID)
		ctx = session.WithToken(ctx, token)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
