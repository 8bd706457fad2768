package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/agentstation/sheetsync/internal/server/response"
)

// AuthConfig holds token authentication settings.
type AuthConfig struct {
	// Token is the expected value. Empty disables authentication.
	Token       string
	HeaderName  string
	PublicPaths []string
}

// DefaultAuthConfig returns an AuthConfig for token.
func DefaultAuthConfig(token string) AuthConfig {
	return AuthConfig{
		Token:       token,
		HeaderName:  "X-Status-Token",
		PublicPaths: []string{"/healthz"},
	}
}

// Auth rejects requests without a valid token. The token is read from the
// configured header or an Authorization bearer value.
func Auth(cfg AuthConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Token == "" || isPublicPath(c.Request.URL.Path, cfg.PublicPaths) {
			c.Next()
			return
		}

		token := extractToken(c, cfg.HeaderName)
		if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
			logger.Warn().
				Str("path", c.Request.URL.Path).
				Str("remote_addr", c.Request.RemoteAddr).
				Bool("token_provided", token != "").
				Msg("Authentication failed")
			response.Unauthorized(c, "Provide a valid token in the "+cfg.HeaderName+" header")
			return
		}
		c.Next()
	}
}

func isPublicPath(path string, publicPaths []string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func extractToken(c *gin.Context, header string) string {
	if v := c.GetHeader(header); v != "" {
		return v
	}
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
