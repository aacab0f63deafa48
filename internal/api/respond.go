package api

import (
	"errors"
	"net/http"
	"strconv"

	"maitred/internal/apperr"
	"maitred/internal/auth"
	"maitred/internal/models"

	"github.com/gin-gonic/gin"
)

// writeError renders err as {success:false, message, ...details}. Anything
// that is not a domain error is logged and reported as a bare 500.
func (s *Server) writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	c.Error(err)

	if status == http.StatusInternalServerError {
		s.logger.Error("unhandled error", "path", c.Request.URL.Path, "error", err)
		c.AbortWithStatusJSON(status, gin.H{"success": false, "message": "internal server error"})
		return
	}

	body := gin.H{"success": false, "message": err.Error(), "error": kind.String()}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		for k, v := range appErr.Details {
			body[k] = v
		}
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.writeError(c, apperr.Validation("invalid request body: %v", err))
}

// idParam parses a positive id path parameter.
func idParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid %s %q", name, c.Param(name))
	}
	return uint(id), nil
}

// queryUint parses an optional unsigned query parameter; absent is zero.
func queryUint(c *gin.Context, name string) (uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid %s %q", name, raw)
	}
	return uint(v), nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("invalid %s %q", name, raw)
	}
	return v, nil
}

// requireStaff writes the authorization failure itself and reports whether
// the handler may continue.
func (s *Server) requireStaff(c *gin.Context, restaurantID uint, roles ...models.Role) bool {
	if err := s.svc.Staff.RequireStaff(c.Request.Context(), auth.CurrentUser(c), restaurantID, roles...); err != nil {
		s.writeError(c, err)
		return false
	}
	return true
}
