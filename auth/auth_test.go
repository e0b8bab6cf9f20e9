package auth

import (
	"dm-lab/errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testSecret = "a-test-secret-that-is-long-enough-for-hs256"

func TestTokenService_RoundTrip(t *testing.T) {
	req := require.New(t)
	tokens, err := NewTokenService(testSecret, time.Hour)
	req.NoError(err)

	token, err := tokens.GenerateToken("alice", []string{"user"})
	req.NoError(err)

	claims, err := tokens.ValidateToken(token)
	req.NoError(err)
	req.Equal("alice", claims.UserID)

	userID, err := tokens.Authenticate(token, "alice")
	req.NoError(err)
	req.Equal("alice", userID)

	// Then a mismatching announced id is refused
	_, err = tokens.Authenticate(token, "bob")
	req.ErrorIs(err, errors.ErrAuthentication)
}

func TestTokenService_Rejects(t *testing.T) {
	req := require.New(t)
	tokens, err := NewTokenService(testSecret, -time.Minute)
	req.NoError(err)
	other, err := NewTokenService(strings.Repeat("x", 40), time.Hour)
	req.NoError(err)

	expired, err := tokens.GenerateToken("alice", nil)
	req.NoError(err)
	_, err = tokens.ValidateToken(expired)
	req.ErrorIs(err, errors.ErrAuthentication)

	foreign, err := other.GenerateToken("alice", nil)
	req.NoError(err)
	_, err = tokens.ValidateToken(foreign)
	req.ErrorIs(err, errors.ErrAuthentication)

	_, err = tokens.ValidateToken("")
	req.ErrorIs(err, errors.ErrAuthentication)

	_, err = NewTokenService("short", time.Hour)
	req.Error(err)
}

func TestRequireAuth(t *testing.T) {
	req := require.New(t)
	gin.SetMode(gin.TestMode)
	tokens, err := NewTokenService(testSecret, time.Hour)
	req.NoError(err)

	r := gin.New()
	r.GET("/me", RequireAuth(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	// When no token is sent
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	req.Equal(http.StatusUnauthorized, w.Code)
	req.Contains(w.Body.String(), errors.CodeAuthentication)

	// When a valid token is sent
	token, err := tokens.GenerateToken("alice", nil)
	req.NoError(err)
	request := httptest.NewRequest(http.MethodGet, "/me", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, request)
	req.Equal(http.StatusOK, w.Code)
	req.Equal("alice", w.Body.String())
}

func TestValidatePayload(t *testing.T) {
	req := require.New(t)

	type payload struct {
		ChatID string `validate:"required"`
	}
	req.NoError(ValidatePayload(payload{ChatID: "bob"}))

	err := ValidatePayload(payload{})
	req.ErrorIs(err, errors.ErrValidation)
	req.Contains(err.Error(), "ChatID failed on required")
}
