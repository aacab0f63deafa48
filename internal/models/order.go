package models

import "time"

// OrderStatus represents the possible states of an order
type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "PLACED"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusServed    OrderStatus = "SERVED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCompleted OrderStatus = "COMPLETED"
)

// orderSequence is the only legal progression; each status may only move to
// the one after it.
var orderSequence = []OrderStatus{
	OrderStatusPlaced,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusServed,
	OrderStatusPaid,
	OrderStatusCompleted,
}

// Valid reports whether s is a known status literal.
func (s OrderStatus) Valid() bool {
	return s.rank() >= 0
}

func (s OrderStatus) rank() int {
	for i, status := range orderSequence {
		if status == s {
			return i
		}
	}
	return -1
}

// CanAdvanceTo reports whether next immediately follows s.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	from, to := s.rank(), next.rank()
	return from >= 0 && to == from+1
}

// Unserved reports whether the kitchen or floor still owes the guest food.
func (s OrderStatus) Unserved() bool {
	return s == OrderStatusPlaced || s == OrderStatusPreparing || s == OrderStatusReady
}

// Settled reports whether the order no longer blocks freeing its table.
func (s OrderStatus) Settled() bool {
	return s == OrderStatusPaid || s == OrderStatusCompleted
}

// PaymentStatus tracks whether the bill was paid.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Order is a set of line items placed against a table. Total is computed on
// the server from menu prices captured at placement.
type Order struct {
	ID            uint          `gorm:"primary_key" json:"id"`
	RestaurantID  uint          `gorm:"index;not null" json:"restaurantId"`
	TableID       uint          `gorm:"index;not null" json:"tableId"`
	Items         []OrderItem   `gorm:"foreignkey:OrderID" json:"items"`
	Total         int64         `json:"total"`
	Status        OrderStatus   `gorm:"type:varchar(20);index;not null" json:"status"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);not null" json:"paymentStatus"`
	CustomerName  string        `json:"customerName"`
	CustomerPhone string        `json:"customerPhone"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	PaidAt        *time.Time    `json:"paidAt,omitempty"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
}

// OrderItem represents an item in an order. Name and UnitPrice are
// snapshots of the menu at placement time.
type OrderItem struct {
	ID         uint   `gorm:"primary_key" json:"id"`
	OrderID    uint   `gorm:"index;not null" json:"orderId"`
	MenuItemID uint   `json:"menuItemId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unitPrice"`
	Subtotal   int64  `json:"subtotal"`
}

// ComputeTotal recalculates line subtotals and the order total.
func (o *Order) ComputeTotal() {
	var total int64
	for i := range o.Items {
		o.Items[i].Subtotal = o.Items[i].UnitPrice * int64(o.Items[i].Quantity)
		total += o.Items[i].Subtotal
	}
	o.Total = total
}
