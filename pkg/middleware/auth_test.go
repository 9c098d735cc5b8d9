package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier implements Verifier
type fakeVerifier struct{}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	switch raw {
	case "goodtoken":
		return &fakeToken{data: map[string]interface{}{"sub": "user1", "email": "test@example.com"}}, nil
	case "subonly":
		return &fakeToken{data: map[string]interface{}{"sub": "svc-account"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func serve(t *testing.T, header string) *httptest.ResponseRecorder {
	t.Helper()
	g := gin.New()
	g.GET("/", AuthMiddleware(&fakeVerifier{}), func(c *gin.Context) {
		claims, ok := Claims(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"claims": claims, "author": Author(c)})
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, serve(t, "").Code)
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, serve(t, "BadHeader").Code)
	require.Equal(t, http.StatusUnauthorized, serve(t, "Basic goodtoken").Code)
	require.Equal(t, http.StatusUnauthorized, serve(t, "Bearer ").Code)
}

func TestAuthMiddleware_BadToken(t *testing.T) {
	rw := serve(t, "Bearer forged")
	require.Equal(t, http.StatusUnauthorized, rw.Code)
	require.Contains(t, rw.Body.String(), "invalid token")
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	rw := serve(t, "Bearer goodtoken")
	require.Equal(t, http.StatusOK, rw.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Contains(t, got, "claims")
	require.Equal(t, "test@example.com", got["author"])
}

func TestAuthor_FallsBackToSubject(t *testing.T) {
	rw := serve(t, "bearer subonly")
	require.Equal(t, http.StatusOK, rw.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "svc-account", got["author"])
}

func TestAuthor_NoClaims(t *testing.T) {
	g := gin.New()
	g.GET("/", func(c *gin.Context) {
		_, ok := Claims(c)
		require.False(t, ok)
		c.String(http.StatusOK, Author(c))
	})
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rw.Code)
	require.Empty(t, rw.Body.String())
}
