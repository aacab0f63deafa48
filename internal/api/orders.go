package api

import (
	"net/http"
	"strings"

	"maitred/internal/apperr"
	"maitred/internal/auth"
	"maitred/internal/models"
	"maitred/internal/service"

	"github.com/gin-gonic/gin"
)

// Order management handlers

// handlePlaceOrder accepts orders from guests at the table as well as from
// staff, so authentication is optional here.
func (s *Server) handlePlaceOrder(c *gin.Context) {
	var in service.PlaceOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	order, err := s.svc.Orders.PlaceOrder(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "order": order})
}

func (s *Server) handleListOrders(c *gin.Context) {
	restaurantID, err := queryUint(c, "restaurantId")
	if err != nil {
		s.writeError(c, err)
		return
	}
	if restaurantID == 0 {
		s.writeError(c, apperr.Validation("restaurantId is required"))
		return
	}
	tableID, err := queryUint(c, "tableId")
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !s.requireStaff(c, restaurantID) {
		return
	}

	orders, err := s.svc.Orders.List(c.Request.Context(), service.OrderFilter{
		RestaurantID: restaurantID,
		TableID:      tableID,
		Status:       models.OrderStatus(strings.ToUpper(c.Query("status"))),
		Active:       c.Query("active") == "true",
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": orders})
}

func (s *Server) handleGetOrder(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	order, err := s.svc.Orders.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	// Guests can follow an order by id; contact details are for staff.
	if s.svc.Staff.RequireStaff(c.Request.Context(), auth.CurrentUser(c), order.RestaurantID) != nil {
		order.CustomerName = ""
		order.CustomerPhone = ""
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

func (s *Server) handleAdvanceStatus(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	current, err := s.svc.Orders.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !s.requireStaff(c, current.RestaurantID) {
		return
	}

	order, err := s.svc.Orders.AdvanceStatus(c.Request.Context(), id, models.OrderStatus(strings.ToUpper(req.Status)))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

func (s *Server) handleMarkTablePaid(c *gin.Context) {
	tableID, err := idParam(c, "tableId")
	if err != nil {
		s.writeError(c, err)
		return
	}
	table, err := s.svc.Tables.Get(c.Request.Context(), tableID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !s.requireStaff(c, table.RestaurantID, models.RoleWaiter, models.RoleManager) {
		return
	}

	orders, err := s.svc.Orders.MarkTablePaid(c.Request.Context(), table.RestaurantID, tableID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": orders})
}

func (s *Server) handleFreeTable(c *gin.Context) {
	var req struct {
		RestaurantID uint `json:"restaurantId"`
		TableID      uint `json:"tableId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.RestaurantID == 0 || req.TableID == 0 {
		s.writeError(c, apperr.Validation("restaurantId and tableId are required"))
		return
	}
	if !s.requireStaff(c, req.RestaurantID, models.RoleWaiter, models.RoleManager) {
		return
	}

	table, err := s.svc.Orders.FreeTable(c.Request.Context(), req.RestaurantID, req.TableID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "table": table})
}
