package api

import (
	"net/http"

	"maitred/internal/apperr"
	"maitred/internal/auth"
	"maitred/internal/models"
	"maitred/internal/service"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleGetRestaurant(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	restaurant, err := s.svc.Restaurants.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "restaurant": restaurant})
}

func (s *Server) handleRestaurantStatus(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req struct {
		Open *bool `json:"open"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.Open == nil {
		s.writeError(c, apperr.Validation("open is required"))
		return
	}
	if !s.requireStaff(c, id, models.RoleManager) {
		return
	}

	restaurant, err := s.svc.Restaurants.SetOpen(c.Request.Context(), id, *req.Open)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "restaurant": restaurant})
}

func (s *Server) handleMenuStock(c *gin.Context) {
	itemID, err := idParam(c, "itemId")
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req struct {
		Available *bool `json:"available"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.Available == nil {
		s.writeError(c, apperr.Validation("available is required"))
		return
	}

	item, err := s.svc.Restaurants.MenuItem(c.Request.Context(), itemID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !s.requireStaff(c, item.RestaurantID, models.RoleKitchen, models.RoleManager) {
		return
	}

	item, err = s.svc.Restaurants.SetMenuItemAvailability(c.Request.Context(), itemID, *req.Available)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "item": item})
}

// Staff management handlers

func (s *Server) handleUpdateMembership(c *gin.Context) {
	restaurantID, err := idParam(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	userID, err := idParam(c, "userId")
	if err != nil {
		s.writeError(c, err)
		return
	}
	var in service.MembershipInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	user, err := s.svc.Staff.UpdateMembership(c.Request.Context(), auth.CurrentUser(c), restaurantID, userID, in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (s *Server) handleOnlineStaff(c *gin.Context) {
	restaurantID, err := idParam(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !s.requireStaff(c, restaurantID) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "staff": s.hub.OnlineStaff(restaurantID)})
}

func (s *Server) handleAddReview(c *gin.Context) {
	restaurantID, err := idParam(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	review, err := s.svc.Restaurants.AddReview(c.Request.Context(), restaurantID, auth.CurrentUser(c).ID, req.Rating, req.Comment)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "review": review})
}
