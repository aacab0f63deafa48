package models

import "time"

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking reserves a table for a [start, end) window on one date. Bookings
// are cancelled, never deleted.
type Booking struct {
	ID           uint          `gorm:"primary_key" json:"id"`
	RestaurantID uint          `gorm:"index;not null" json:"restaurantId"`
	TableID      uint          `gorm:"index:idx_booking_slot;not null" json:"tableId"`
	UserID       uint          `gorm:"index" json:"userId"`
	Date         string        `gorm:"type:varchar(10);index:idx_booking_slot;not null" json:"date"`
	StartTime    string        `gorm:"type:varchar(5)" json:"startTime"`
	EndTime      string        `gorm:"type:varchar(5)" json:"endTime"`
	StartMinute  int           `json:"-"`
	EndMinute    int           `json:"-"`
	GuestCount   int           `json:"guestCount"`
	Status       BookingStatus `gorm:"type:varchar(20);not null" json:"status"`
	Notes        string        `gorm:"type:text" json:"notes"`
	CancelledBy  *uint         `json:"cancelledBy,omitempty"`
	CancelledAt  *time.Time    `json:"cancelledAt,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect.
func Overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}
