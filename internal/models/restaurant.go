package models

import "time"

// Restaurant owns its tables, menu and bookings.
type Restaurant struct {
	ID      uint   `gorm:"primary_key" json:"id"`
	Name    string `gorm:"type:varchar(120);not null" json:"name"`
	OwnerID uint   `gorm:"index" json:"ownerId"`
	IsOpen  bool   `json:"isOpen"`
	// BookingSlotMinutes is the reservation length; 0 falls back to the
	// configured default.
	BookingSlotMinutes int       `json:"bookingSlotMinutes"`
	Tables             []Table    `gorm:"foreignkey:RestaurantID" json:"tables,omitempty"`
	MenuItems          []MenuItem `gorm:"foreignkey:RestaurantID" json:"menuItems,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Table is a physical table and the state of its current dining session.
type Table struct {
	ID               uint      `gorm:"primary_key" json:"id"`
	RestaurantID     uint      `gorm:"index;not null" json:"restaurantId"`
	Number           int       `json:"number"`
	Capacity         int       `json:"capacity"`
	IsOccupied       bool      `json:"isOccupied"`
	CurrentOrderID   *uint     `json:"currentOrderId"`
	AssignedWaiterID *uint     `json:"assignedWaiterId"`
	RequestService   bool      `json:"requestService"`
	RequestBill      bool      `json:"requestBill"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Release clears the session state. A free table never carries an order,
// a waiter or an open request.
func (t *Table) Release() {
	t.IsOccupied = false
	t.CurrentOrderID = nil
	t.AssignedWaiterID = nil
	t.RequestService = false
	t.RequestBill = false
}

// Review is a customer rating of a restaurant.
type Review struct {
	ID           uint      `gorm:"primary_key" json:"id"`
	RestaurantID uint      `gorm:"index;not null" json:"restaurantId"`
	UserID       uint      `json:"userId"`
	Rating       int       `json:"rating"`
	Comment      string    `gorm:"type:text" json:"comment"`
	CreatedAt    time.Time `json:"createdAt"`
}
