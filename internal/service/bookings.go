package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"maitred/internal/apperr"
	"maitred/internal/database"
	"maitred/internal/models"
	"maitred/internal/realtime"

	"github.com/jinzhu/gorm"
)

const (
	dateLayout    = "2006-01-02"
	timeLayout    = "15:04"
	minutesPerDay = 24 * 60
)

// Bookings is the reservation ledger. A table never holds two
// non-cancelled bookings whose [start, end) windows intersect on one date.
type Bookings struct {
	*core
	slotMinutes  int
	defaultLimit int
	maxLimit     int
}

type CreateBookingInput struct {
	RestaurantID uint   `json:"restaurantId"`
	TableID      uint   `json:"tableId"`
	Date         string `json:"date"`
	StartTime    string `json:"startTime"`
	GuestCount   int    `json:"guestCount"`
	Notes        string `json:"notes"`
	UserID       uint   `json:"-"`
}

type BookingFilter struct {
	RestaurantID uint
	Date         string
	Status       models.BookingStatus
	UserID       uint
	Page         int
	Limit        int
}

type BookingPage struct {
	Bookings []models.Booking `json:"bookings"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	Pages    int              `json:"pages"`
}

func parseDate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return apperr.Validation("date must be YYYY-MM-DD").With("date", date)
	}
	return nil
}

// parseClock returns minutes since midnight for an HH:MM string.
func parseClock(clock string) (int, error) {
	t, err := time.Parse(timeLayout, clock)
	if err != nil || len(clock) != len(timeLayout) {
		return 0, apperr.Validation("time must be HH:MM").With("startTime", clock)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func (b *Bookings) validate(in CreateBookingInput) (start int, err error) {
	if in.RestaurantID == 0 {
		return 0, apperr.Validation("restaurantId is required")
	}
	if in.TableID == 0 {
		return 0, apperr.Validation("tableId is required")
	}
	if in.UserID == 0 {
		return 0, apperr.Unauthenticated("a user is required to book")
	}
	if err := parseDate(in.Date); err != nil {
		return 0, err
	}
	if start, err = parseClock(in.StartTime); err != nil {
		return 0, err
	}
	if in.GuestCount < 1 {
		return 0, apperr.Validation("guestCount must be at least 1")
	}

	now := b.now()
	today := now.Format(dateLayout)
	if in.Date < today || (in.Date == today && start < now.Hour()*60+now.Minute()) {
		return 0, apperr.Validation("booking cannot be in the past").With("date", in.Date)
	}
	return start, nil
}

// CreateBooking reserves the table for one slot starting at StartTime. The
// slot length comes from the restaurant, or the configured default.
func (b *Bookings) CreateBooking(ctx context.Context, in CreateBookingInput) (*models.Booking, error) {
	start, err := b.validate(in)
	if err != nil {
		b.record("create_booking", err)
		return nil, err
	}

	unlock := b.locks.Lock(bookingLockKey(in.RestaurantID, in.TableID, in.Date))
	defer unlock()

	var booking *models.Booking
	err = database.WithTx(ctx, b.db, func(tx *gorm.DB) error {
		restaurant, err := loadRestaurant(tx, in.RestaurantID)
		if err != nil {
			return err
		}
		// The table row lock serializes overlap checks across processes;
		// the keylock only covers this one.
		table, err := loadTable(forUpdate(tx), in.RestaurantID, in.TableID)
		if err != nil {
			return err
		}
		if in.GuestCount > table.Capacity {
			return apperr.Validation("table %d seats at most %d guests", table.ID, table.Capacity).
				With("capacity", table.Capacity)
		}

		slot := restaurant.BookingSlotMinutes
		if slot <= 0 {
			slot = b.slotMinutes
		}
		end := start + slot
		if end > minutesPerDay {
			return apperr.Validation("booking must end by midnight").With("slotMinutes", slot)
		}

		var existing models.Booking
		err = tx.Where("table_id = ? AND date = ? AND status <> ? AND start_minute < ? AND end_minute > ?",
			in.TableID, in.Date, models.BookingCancelled, end, start).
			Order("start_minute asc").
			First(&existing).Error
		switch {
		case err == nil:
			return apperr.Conflict("table %d is already booked from %s to %s", in.TableID, existing.StartTime, existing.EndTime).
				With("conflictingBookingId", existing.ID)
		case !gorm.IsRecordNotFoundError(err):
			return fmt.Errorf("check booking overlap: %w", err)
		}

		booking = &models.Booking{
			RestaurantID: in.RestaurantID,
			TableID:      in.TableID,
			UserID:       in.UserID,
			Date:         in.Date,
			StartTime:    formatClock(start),
			EndTime:      formatClock(end % minutesPerDay),
			StartMinute:  start,
			EndMinute:    end,
			GuestCount:   in.GuestCount,
			Status:       models.BookingConfirmed,
			Notes:        strings.TrimSpace(in.Notes),
		}
		if err := tx.Create(booking).Error; err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		return nil
	})
	b.record("create_booking", err)
	if err != nil {
		return nil, err
	}

	b.logger.Info("booking created", "booking_id", booking.ID, "restaurant_id", booking.RestaurantID,
		"table_id", booking.TableID, "date", booking.Date, "start", booking.StartTime)

	b.publish(bookingEvent(realtime.EventBookingCreated, booking))
	return booking, nil
}

func loadBooking(tx *gorm.DB, bookingID uint) (*models.Booking, error) {
	var booking models.Booking
	if err := tx.Where("id = ?", bookingID).First(&booking).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("booking %d not found", bookingID)
		}
		return nil, fmt.Errorf("load booking %d: %w", bookingID, err)
	}
	return &booking, nil
}

// canCancel allows the booking's owner, the restaurant owner and floor
// staff working at the restaurant.
func canCancel(restaurant *models.Restaurant, booking *models.Booking, user *models.User) bool {
	if booking.UserID == user.ID || restaurant.OwnerID == user.ID {
		return true
	}
	return user.WorksAt(restaurant.ID) && user.HasRole(models.RoleOwner, models.RoleManager, models.RoleWaiter)
}

// CancelBooking marks the booking cancelled. Cancelling twice succeeds
// without a second event.
func (b *Bookings) CancelBooking(ctx context.Context, bookingID uint, requestedBy *models.User) (*models.Booking, error) {
	if requestedBy == nil {
		err := apperr.Unauthenticated("authentication required")
		b.record("cancel_booking", err)
		return nil, err
	}

	current, err := loadBooking(b.db, bookingID)
	if err != nil {
		b.record("cancel_booking", err)
		return nil, err
	}

	unlock := b.locks.Lock(bookingLockKey(current.RestaurantID, current.TableID, current.Date))
	defer unlock()

	var (
		booking   *models.Booking
		cancelled bool
	)
	err = database.WithTx(ctx, b.db, func(tx *gorm.DB) error {
		var err error
		if booking, err = loadBooking(tx, bookingID); err != nil {
			return err
		}
		restaurant, err := loadRestaurant(tx, booking.RestaurantID)
		if err != nil {
			return err
		}
		if !canCancel(restaurant, booking, requestedBy) {
			return apperr.Authorization("not allowed to cancel booking %d", bookingID)
		}
		if booking.Status == models.BookingCancelled {
			return nil
		}

		now := b.now()
		booking.Status = models.BookingCancelled
		booking.CancelledBy = &requestedBy.ID
		booking.CancelledAt = &now
		if err := tx.Save(booking).Error; err != nil {
			return fmt.Errorf("cancel booking %d: %w", bookingID, err)
		}
		cancelled = true
		return nil
	})
	b.record("cancel_booking", err)
	if err != nil {
		return nil, err
	}

	if cancelled {
		b.logger.Info("booking cancelled", "booking_id", booking.ID, "by", requestedBy.ID)
		b.publish(bookingEvent(realtime.EventBookingCancelled, booking))
	}
	return booking, nil
}

// ListBookings pages through bookings ordered by date, start time and id.
func (b *Bookings) ListBookings(ctx context.Context, filter BookingFilter) (*BookingPage, error) {
	if filter.RestaurantID == 0 && filter.UserID == 0 {
		return nil, apperr.Validation("restaurantId is required")
	}
	if filter.Date != "" {
		if err := parseDate(filter.Date); err != nil {
			return nil, err
		}
	}
	switch filter.Status {
	case "", models.BookingConfirmed, models.BookingCancelled:
	default:
		return nil, apperr.Validation("unknown booking status %q", filter.Status)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = b.defaultLimit
	}
	if limit > b.maxLimit {
		limit = b.maxLimit
	}

	query := b.db.Model(&models.Booking{})
	if filter.RestaurantID != 0 {
		query = query.Where("restaurant_id = ?", filter.RestaurantID)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Date != "" {
		query = query.Where("date = ?", filter.Date)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}
	pages := (total + limit - 1) / limit
	// Anything past the last page is empty; clamping keeps the offset small.
	if page > pages+1 {
		page = pages + 1
	}

	bookings := make([]models.Booking, 0)
	err := query.Order("date asc, start_minute asc, id asc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	return &BookingPage{
		Bookings: bookings,
		Total:    total,
		Page:     page,
		Limit:    limit,
		Pages:    pages,
	}, nil
}
