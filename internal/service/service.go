// Package service holds the authoritative table, order and booking state.
// Every mutation runs under a keyed lock and a database transaction, and
// publishes its events after commit while the lock is still held, so the
// publish order for one table matches its commit order.
package service

import (
	"fmt"
	"log/slog"
	"time"

	"maitred/internal/apperr"
	"maitred/internal/keylock"
	"maitred/internal/logging"
	"maitred/internal/models"
	"maitred/internal/realtime"

	"github.com/jinzhu/gorm"
)

// MutationRecorder counts mutation outcomes. monitoring.Monitor implements it.
type MutationRecorder interface {
	RecordMutation(operation, outcome string)
	ObserveOrderTurnaround(elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordMutation(string, string)       {}
func (nopRecorder) ObserveOrderTurnaround(time.Duration) {}

type discardPublisher struct{}

func (discardPublisher) Publish(realtime.Event) {}

type Deps struct {
	DB      *gorm.DB
	Locks   *keylock.Locker
	Events  realtime.Publisher
	Logger  *slog.Logger
	Metrics MutationRecorder
	// Now defaults to time.Now.
	Now func() time.Time

	DefaultSlotMinutes int
	DefaultPageLimit   int
	MaxPageLimit       int
}

// Service groups the components that share one store and one lock table.
type Service struct {
	Tables      *Tables
	Orders      *Orders
	Bookings    *Bookings
	Staff       *Staff
	Restaurants *Restaurants
}

func New(d Deps) *Service {
	if d.Locks == nil {
		d.Locks = keylock.New()
	}
	if d.Events == nil {
		d.Events = discardPublisher{}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.DefaultSlotMinutes <= 0 {
		d.DefaultSlotMinutes = 90
	}
	if d.DefaultPageLimit <= 0 {
		d.DefaultPageLimit = 10
	}
	if d.MaxPageLimit < d.DefaultPageLimit {
		d.MaxPageLimit = 100
	}

	c := &core{
		db:      d.DB,
		locks:   d.Locks,
		events:  d.Events,
		logger:  d.Logger.With("component", "service"),
		metrics: d.Metrics,
		now:     d.Now,
	}

	return &Service{
		Tables: &Tables{core: c},
		Orders: &Orders{core: c},
		Bookings: &Bookings{
			core:         c,
			slotMinutes:  d.DefaultSlotMinutes,
			defaultLimit: d.DefaultPageLimit,
			maxLimit:     d.MaxPageLimit,
		},
		Staff:       &Staff{core: c},
		Restaurants: &Restaurants{core: c},
	}
}

type core struct {
	db      *gorm.DB
	locks   *keylock.Locker
	events  realtime.Publisher
	logger  *slog.Logger
	metrics MutationRecorder
	now     func() time.Time
}

func (c *core) publish(events ...realtime.Event) {
	for _, e := range events {
		c.events.Publish(e)
	}
}

// record counts the outcome of a mutation and logs failures that are not
// ordinary client errors.
func (c *core) record(operation string, err error) {
	if err == nil {
		c.metrics.RecordMutation(operation, "ok")
		return
	}
	kind := apperr.KindOf(err)
	c.metrics.RecordMutation(operation, kind.String())
	if kind == apperr.KindInternal {
		c.logger.Error("mutation failed", "operation", operation, "error", err)
	} else {
		c.logger.Debug("mutation rejected", "operation", operation, "kind", kind.String(), "error", err)
	}
}

func tableLockKey(restaurantID, tableID uint) string {
	return fmt.Sprintf("table:%d:%d", restaurantID, tableID)
}

func bookingLockKey(restaurantID, tableID uint, date string) string {
	return fmt.Sprintf("booking:%d:%d:%s", restaurantID, tableID, date)
}

func loadRestaurant(tx *gorm.DB, restaurantID uint) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	if err := tx.Where("id = ?", restaurantID).First(&restaurant).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("restaurant %d not found", restaurantID)
		}
		return nil, fmt.Errorf("load restaurant %d: %w", restaurantID, err)
	}
	return &restaurant, nil
}

// rowLockClause is the suffix that makes a select hold row locks until the
// transaction ends. sqlite has none; its single connection already
// serializes writers.
func rowLockClause(dialect string) string {
	if dialect == "sqlite3" {
		return ""
	}
	return "FOR UPDATE"
}

// forUpdate scopes tx so the next select locks the rows it reads. Checks
// that guard a later insert read through it, so two processes sharing one
// database cannot both pass them.
func forUpdate(tx *gorm.DB) *gorm.DB {
	clause := rowLockClause(tx.Dialect().GetName())
	if clause == "" {
		return tx
	}
	return tx.Set("gorm:query_option", clause)
}

// loadTable returns the table only if it belongs to the restaurant.
func loadTable(tx *gorm.DB, restaurantID, tableID uint) (*models.Table, error) {
	var table models.Table
	err := tx.Where("id = ? AND restaurant_id = ?", tableID, restaurantID).First(&table).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("table %d not found in restaurant %d", tableID, restaurantID)
		}
		return nil, fmt.Errorf("load table %d: %w", tableID, err)
	}
	return &table, nil
}

func loadUser(tx *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("user %d not found", userID)
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return &user, nil
}

func tableEvent(name string, table *models.Table) realtime.Event {
	return realtime.Event{
		Name:         name,
		RestaurantID: table.RestaurantID,
		Rooms: []string{
			realtime.StaffRoom(table.RestaurantID),
			realtime.OwnerRoom(table.RestaurantID),
			realtime.TableRoom(table.RestaurantID, table.ID),
		},
		Payload: *table,
	}
}

func orderEvent(name string, order *models.Order) realtime.Event {
	return realtime.Event{
		Name:         name,
		RestaurantID: order.RestaurantID,
		Rooms: []string{
			realtime.StaffRoom(order.RestaurantID),
			realtime.OwnerRoom(order.RestaurantID),
			realtime.TableRoom(order.RestaurantID, order.TableID),
		},
		Payload: *order,
	}
}

func bookingEvent(name string, booking *models.Booking) realtime.Event {
	return realtime.Event{
		Name:         name,
		RestaurantID: booking.RestaurantID,
		Rooms: []string{
			realtime.StaffRoom(booking.RestaurantID),
			realtime.OwnerRoom(booking.RestaurantID),
		},
		Payload: *booking,
	}
}

// restaurantEvent targets everyone following the restaurant.
func restaurantEvent(name string, restaurantID uint, payload interface{}) realtime.Event {
	return realtime.Event{
		Name:         name,
		RestaurantID: restaurantID,
		Rooms: []string{
			realtime.PublicRoom(restaurantID),
			realtime.StaffRoom(restaurantID),
			realtime.OwnerRoom(restaurantID),
		},
		Payload: payload,
	}
}
