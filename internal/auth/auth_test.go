package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"maitred/internal/apperr"
	"maitred/internal/models"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLoader map[uint]*models.User

func (m mapLoader) LoadUser(_ context.Context, id uint) (*models.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user %d not found", id)
}

func setupRouter(a *Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/private", a.Required(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": CurrentUser(c).ID})
	})
	r.GET("/public", a.Optional(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"anonymous": CurrentUser(c) == nil})
	})
	return r
}

func TestAuthenticateRoundTrip(t *testing.T) {
	a := New("s3cret", mapLoader{4: {ID: 4, Name: "Asha"}})

	token, err := a.IssueToken(4, time.Hour)
	require.NoError(t, err)

	user, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "Asha", user.Name)
}

func TestAuthenticateRejects(t *testing.T) {
	a := New("s3cret", mapLoader{4: {ID: 4}})

	expired, err := a.IssueToken(4, -time.Minute)
	require.NoError(t, err)
	unknown, err := a.IssueToken(99, time.Hour)
	require.NoError(t, err)
	foreign, err := New("other", nil).IssueToken(4, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.StandardClaims{Subject: "4"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired": expired,
		"unknown": unknown,
		"foreign": foreign,
		"none":    none,
		"garbage": "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), token)
			assert.True(t, apperr.Is(err, apperr.KindUnauthenticated), "got %v", err)
		})
	}
}

func TestRequiredMiddleware(t *testing.T) {
	a := New("s3cret", mapLoader{4: {ID: 4}})
	r := setupRouter(a)
	token, err := a.IssueToken(4, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":4}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOptionalMiddleware(t *testing.T) {
	a := New("s3cret", mapLoader{})
	r := setupRouter(a)

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set("Authorization", "Bearer junk")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"anonymous":true}`, w.Body.String())
}
