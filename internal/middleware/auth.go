package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/response"
)

type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = strings.TrimSpace(parts[1])
			}
		}

		// Fallback to query parameter "token" (browsers cannot set headers on websockets)
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			abort(c, "authorization required")
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			abort(c, "invalid or expired token")
			return
		}

		if _, err := uuid.Parse(claims.Subject); err != nil {
			abort(c, "invalid token claims")
			return
		}

		c.Set("user_id", claims.Subject)
		c.Next()
	}
}

func abort(c *gin.Context, message string) {
	response.ResponseError(c, apperror.New(http.StatusUnauthorized, message, apperror.ErrUnauthorized))
	c.Abort()
}
