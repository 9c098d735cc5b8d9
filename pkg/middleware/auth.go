package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding verified token claims.
const ClaimsKey = "claims"

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier
func AuthMiddleware(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		scheme, token, ok := strings.Cut(auth, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		idToken, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}

		var claims map[string]interface{}
		if err := idToken.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// Claims returns the verified claims of the request, if any.
func Claims(c *gin.Context) (map[string]interface{}, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	cm, ok := v.(map[string]interface{})
	return cm, ok
}

// Subject returns the `sub` claim or "".
func Subject(c *gin.Context) string {
	cm, _ := Claims(c)
	sub, _ := cm["sub"].(string)
	return sub
}

// Author identifies the caller for version metadata: email when present,
// otherwise the subject. Empty when the request carries no claims.
func Author(c *gin.Context) string {
	cm, ok := Claims(c)
	if !ok {
		return ""
	}
	if email, _ := cm["email"].(string); email != "" {
		return email
	}
	if name, _ := cm["preferred_username"].(string); name != "" {
		return name
	}
	sub, _ := cm["sub"].(string)
	return sub
}

// clientKey picks the rate limit key: the authenticated subject when
// present, the client IP otherwise.
func clientKey(c *gin.Context) string {
	if sub := Subject(c); sub != "" {
		return "sub:" + sub
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
