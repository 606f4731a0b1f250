package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lanchat-server/internal/auth"
)

// ContextKeyUsername is the context key for storing the token username.
const ContextKeyUsername = "username"

// AuthMiddleware validates a bearer token when one is presented and stores
// the identity in the context. With required set, requests without a token
// are rejected; otherwise they pass through anonymously.
func AuthMiddleware(authService *auth.Service, required bool, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if required {
				logger.Debug().Str("path", c.Request.URL.Path).Msg("missing authorization header")
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
				return
			}
			c.Next()
			return
		}

		token := bearerToken(authHeader)
		if token == "" {
			logger.Debug().Msg("invalid authorization header format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(ContextKeyUsername, claims.Username)

		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

// bearerToken extracts the token from "Bearer <token>".
func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// identity returns the token username when the request carried one,
// otherwise the username the client supplied.
func identity(c *gin.Context, supplied string) string {
	if v, ok := c.Get(ContextKeyUsername); ok {
		if name, ok := v.(string); ok && name != "" {
			return name
		}
	}
	return strings.TrimSpace(supplied)
}
