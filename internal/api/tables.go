package api

import (
	"net/http"

	"maitred/internal/apperr"
	"maitred/internal/models"

	"github.com/gin-gonic/gin"
)

type flagRequest struct {
	Active *bool `json:"active"`
}

// tableFromPath resolves the :tableId parameter to its table so the
// handlers can scope by the owning restaurant.
func (s *Server) tableFromPath(c *gin.Context) (*models.Table, bool) {
	tableID, err := idParam(c, "tableId")
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	table, err := s.svc.Tables.Get(c.Request.Context(), tableID)
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return table, true
}

func (s *Server) bindFlag(c *gin.Context) (bool, bool) {
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return false, false
	}
	if req.Active == nil {
		s.writeError(c, apperr.Validation("active is required"))
		return false, false
	}
	return *req.Active, true
}

// bindFlagFor reads the requested flag state. Anyone at the table may raise a
// flag; only the restaurant's staff may lower it.
func (s *Server) bindFlagFor(c *gin.Context, table *models.Table) (bool, bool) {
	active, ok := s.bindFlag(c)
	if !ok {
		return false, false
	}
	if !active && !s.requireStaff(c, table.RestaurantID) {
		return false, false
	}
	return active, true
}

// handleServiceRequest is called by guests raising the flag and by waiters
// lowering it.
func (s *Server) handleServiceRequest(c *gin.Context) {
	table, ok := s.tableFromPath(c)
	if !ok {
		return
	}
	active, ok := s.bindFlagFor(c, table)
	if !ok {
		return
	}

	updated, err := s.svc.Tables.SetServiceRequest(c.Request.Context(), table.RestaurantID, table.ID, active)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "table": updated})
}

func (s *Server) handleBillRequest(c *gin.Context) {
	table, ok := s.tableFromPath(c)
	if !ok {
		return
	}
	active, ok := s.bindFlagFor(c, table)
	if !ok {
		return
	}

	updated, err := s.svc.Tables.SetBillRequest(c.Request.Context(), table.RestaurantID, table.ID, active)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "table": updated})
}

func (s *Server) handleAssignWaiter(c *gin.Context) {
	table, ok := s.tableFromPath(c)
	if !ok {
		return
	}
	var req struct {
		WaiterID uint `json:"waiterId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if !s.requireStaff(c, table.RestaurantID, models.RoleManager) {
		return
	}

	updated, err := s.svc.Tables.AssignWaiter(c.Request.Context(), table.RestaurantID, table.ID, req.WaiterID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "table": updated})
}

func (s *Server) handleListTables(c *gin.Context) {
	restaurantID, err := idParam(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	tables, err := s.svc.Tables.List(c.Request.Context(), restaurantID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tables": tables})
}
