package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"maitred/internal/apperr"
	"maitred/internal/models"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

const userKey = "maitred.user"

// UserLoader resolves the account named by a token.
type UserLoader interface {
	LoadUser(ctx context.Context, id uint) (*models.User, error)
}

// Authenticator validates HS256 tokens whose subject is a user id.
type Authenticator struct {
	secret []byte
	users  UserLoader
}

func New(secret string, users UserLoader) *Authenticator {
	return &Authenticator{secret: []byte(secret), users: users}
}

// IssueToken signs a token for userID valid for ttl.
func (a *Authenticator) IssueToken(userID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.StandardClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate parses tokenString and loads its user.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.Unauthenticated("invalid token")
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return nil, apperr.Unauthenticated("invalid token subject")
	}

	user, err := a.users.LoadUser(ctx, uint(id))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Unauthenticated("unknown user")
		}
		return nil, err
	}
	return user, nil
}

// TokenFromRequest reads a bearer token from the Authorization header, or
// from the token query parameter for websocket upgrades.
func TokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
		return strings.TrimSpace(header)
	}
	return c.Query("token")
}

// Required rejects requests without a valid token.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := TokenFromRequest(c)
		if tokenString == "" {
			abort(c, apperr.Unauthenticated("authorization header required"))
			return
		}

		user, err := a.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			abort(c, err)
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	status := apperr.HTTPStatus(apperr.KindOf(err))
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// Optional attaches the user when a valid token is present and otherwise
// lets the request through anonymously.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := TokenFromRequest(c); tokenString != "" {
			if user, err := a.Authenticate(c.Request.Context(), tokenString); err == nil {
				c.Set(userKey, user)
			}
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}
