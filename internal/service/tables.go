package service

import (
	"context"
	"fmt"

	"maitred/internal/apperr"
	"maitred/internal/database"
	"maitred/internal/models"
	"maitred/internal/realtime"

	"github.com/jinzhu/gorm"
)

// Tables is the single source of truth for table occupancy and the service
// and bill request flags. Each mutation publishes the full table snapshot.
type Tables struct {
	*core
}

func (t *Tables) Get(ctx context.Context, tableID uint) (*models.Table, error) {
	var table models.Table
	if err := t.db.Where("id = ?", tableID).First(&table).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("table %d not found", tableID)
		}
		return nil, fmt.Errorf("load table %d: %w", tableID, err)
	}
	return &table, nil
}

// List returns the restaurant's tables ordered by number.
func (t *Tables) List(ctx context.Context, restaurantID uint) ([]models.Table, error) {
	if _, err := loadRestaurant(t.db, restaurantID); err != nil {
		return nil, err
	}
	var tables []models.Table
	if err := t.db.Where("restaurant_id = ?", restaurantID).Order("number asc, id asc").Find(&tables).Error; err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// mutate loads the table under its lock and transaction, applies fn and
// saves it, then publishes one event named by event.
func (t *Tables) mutate(ctx context.Context, operation, event string, restaurantID, tableID uint, fn func(tx *gorm.DB, table *models.Table) error) (*models.Table, error) {
	unlock := t.locks.Lock(tableLockKey(restaurantID, tableID))
	defer unlock()

	var table *models.Table
	err := database.WithTx(ctx, t.db, func(tx *gorm.DB) error {
		var err error
		if table, err = loadTable(tx, restaurantID, tableID); err != nil {
			return err
		}
		if err := fn(tx, table); err != nil {
			return err
		}
		if err := tx.Save(table).Error; err != nil {
			return fmt.Errorf("save table %d: %w", tableID, err)
		}
		return nil
	})
	t.record(operation, err)
	if err != nil {
		return nil, err
	}

	t.publish(tableEvent(event, table))
	return table, nil
}

// Occupy binds the table to orderID. It fails with a conflict when the
// table is already held by a different order.
func (t *Tables) Occupy(ctx context.Context, restaurantID, tableID, orderID uint) (*models.Table, error) {
	return t.mutate(ctx, "occupy_table", realtime.EventTableUpdate, restaurantID, tableID, func(tx *gorm.DB, table *models.Table) error {
		var order models.Order
		err := tx.Where("id = ? AND table_id = ?", orderID, tableID).First(&order).Error
		if gorm.IsRecordNotFoundError(err) {
			return apperr.NotFound("order %d not found on table %d", orderID, tableID)
		}
		if err != nil {
			return fmt.Errorf("load order %d: %w", orderID, err)
		}
		return occupy(table, orderID)
	})
}

func occupy(table *models.Table, orderID uint) error {
	if table.IsOccupied && (table.CurrentOrderID == nil || *table.CurrentOrderID != orderID) {
		conflict := apperr.Conflict("table %d is already occupied", table.ID).With("tableId", table.ID)
		if table.CurrentOrderID != nil {
			conflict.With("currentOrderId", *table.CurrentOrderID)
		}
		return conflict
	}
	table.IsOccupied = true
	table.CurrentOrderID = &orderID
	return nil
}

// Free releases the table unconditionally. Callers that close a dining
// session go through Orders.FreeTable, which checks the orders first.
func (t *Tables) Free(ctx context.Context, restaurantID, tableID uint) (*models.Table, error) {
	return t.mutate(ctx, "free_table", realtime.EventTableFreed, restaurantID, tableID, func(_ *gorm.DB, table *models.Table) error {
		table.Release()
		return nil
	})
}

// SetServiceRequest raises or lowers the call-waiter flag. Raising it on a
// free table is rejected since a free table carries no requests.
func (t *Tables) SetServiceRequest(ctx context.Context, restaurantID, tableID uint, active bool) (*models.Table, error) {
	return t.mutate(ctx, "service_request", realtime.EventTableServiceUpdate, restaurantID, tableID, func(_ *gorm.DB, table *models.Table) error {
		if active && !table.IsOccupied {
			return apperr.Precondition("table %d is not occupied", table.ID).With("tableId", table.ID)
		}
		table.RequestService = active
		return nil
	})
}

// SetBillRequest raises or lowers the bill flag, with the same rule as
// SetServiceRequest.
func (t *Tables) SetBillRequest(ctx context.Context, restaurantID, tableID uint, active bool) (*models.Table, error) {
	return t.mutate(ctx, "bill_request", realtime.EventTableBillUpdate, restaurantID, tableID, func(_ *gorm.DB, table *models.Table) error {
		if active && !table.IsOccupied {
			return apperr.Precondition("table %d is not occupied", table.ID).With("tableId", table.ID)
		}
		table.RequestBill = active
		return nil
	})
}

// AssignWaiter sets the waiter for the table; the last call wins. A zero
// waiterID clears the assignment.
func (t *Tables) AssignWaiter(ctx context.Context, restaurantID, tableID, waiterID uint) (*models.Table, error) {
	return t.mutate(ctx, "assign_waiter", realtime.EventTableUpdate, restaurantID, tableID, func(tx *gorm.DB, table *models.Table) error {
		if waiterID == 0 {
			table.AssignedWaiterID = nil
			return nil
		}

		waiter, err := loadUser(tx, waiterID)
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Validation("waiter %d does not exist", waiterID)
		}
		if err != nil {
			return err
		}
		if !waiter.HasRole(models.RoleWaiter) || !waiter.WorksAt(restaurantID) {
			return apperr.Validation("user %d is not a waiter at restaurant %d", waiterID, restaurantID)
		}

		table.AssignedWaiterID = &waiter.ID
		return nil
	})
}
