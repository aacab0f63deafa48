package api

import (
	"net/http"

	"maitred/internal/apperr"
	"maitred/internal/auth"
	"maitred/internal/models"
	"maitred/internal/service"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleCreateBooking(c *gin.Context) {
	var in service.CreateBookingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	in.UserID = auth.CurrentUser(c).ID

	booking, err := s.svc.Bookings.CreateBooking(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "booking": booking})
}

// handleListBookings shows staff every booking of their restaurant. Anyone
// else only sees their own.
func (s *Server) handleListBookings(c *gin.Context) {
	user := auth.CurrentUser(c)
	restaurantID, err := queryUint(c, "restaurantId")
	if err != nil {
		s.writeError(c, err)
		return
	}
	page, err := queryInt(c, "page")
	if err != nil {
		s.writeError(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.writeError(c, err)
		return
	}

	filter := service.BookingFilter{
		RestaurantID: restaurantID,
		Date:         c.Query("date"),
		Status:       models.BookingStatus(c.Query("status")),
		Page:         page,
		Limit:        limit,
	}
	if restaurantID == 0 {
		filter.UserID = user.ID
	} else if err := s.svc.Staff.RequireStaff(c.Request.Context(), user, restaurantID); err != nil {
		if !apperr.Is(err, apperr.KindAuthorization) {
			s.writeError(c, err)
			return
		}
		filter.UserID = user.ID
	}

	result, err := s.svc.Bookings.ListBookings(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"bookings": result.Bookings,
		"pagination": gin.H{
			"page":  result.Page,
			"limit": result.Limit,
			"pages": result.Pages,
			"total": result.Total,
		},
	})
}

func (s *Server) handleCancelBooking(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	booking, err := s.svc.Bookings.CancelBooking(c.Request.Context(), id, auth.CurrentUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": booking})
}
