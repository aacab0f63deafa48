package service

import (
	"context"
	"fmt"
	"strings"

	"maitred/internal/apperr"
	"maitred/internal/database"
	"maitred/internal/models"
	"maitred/internal/realtime"

	"github.com/jinzhu/gorm"
)

const maxItemQuantity = 99

// Orders runs the order lifecycle. A table's active orders are every order
// on it that has not reached COMPLETED; together they form the dining
// session that FreeTable closes.
type Orders struct {
	*core
}

type OrderItemInput struct {
	MenuItemID uint `json:"menuItemId"`
	Quantity   int  `json:"quantity"`
}

type PlaceOrderInput struct {
	RestaurantID  uint             `json:"restaurantId"`
	TableID       uint             `json:"tableId"`
	Items         []OrderItemInput `json:"items"`
	CustomerName  string           `json:"customerName"`
	CustomerPhone string           `json:"customerPhone"`
}

type OrderFilter struct {
	RestaurantID uint
	TableID      uint
	Status       models.OrderStatus
	// Active limits the result to orders that have not reached COMPLETED.
	Active bool
}

func (in PlaceOrderInput) validate() error {
	if in.RestaurantID == 0 {
		return apperr.Validation("restaurantId is required")
	}
	if in.TableID == 0 {
		return apperr.Validation("tableId is required")
	}
	if len(in.Items) == 0 {
		return apperr.Validation("order must contain at least one item")
	}
	for i, item := range in.Items {
		if item.MenuItemID == 0 {
			return apperr.Validation("item %d: menuItemId is required", i)
		}
		if item.Quantity < 1 || item.Quantity > maxItemQuantity {
			return apperr.Validation("item %d: quantity must be between 1 and %d", i, maxItemQuantity).
				With("menuItemId", item.MenuItemID)
		}
	}
	return nil
}

// PlaceOrder prices the items from the menu, stores the order and occupies
// the table when it was free. Client-sent prices never reach this point.
func (o *Orders) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error) {
	if err := in.validate(); err != nil {
		o.record("place_order", err)
		return nil, err
	}

	unlock := o.locks.Lock(tableLockKey(in.RestaurantID, in.TableID))
	defer unlock()

	var (
		order          *models.Order
		table          *models.Table
		becameOccupied bool
	)
	err := database.WithTx(ctx, o.db, func(tx *gorm.DB) error {
		restaurant, err := loadRestaurant(tx, in.RestaurantID)
		if err != nil {
			return err
		}
		if !restaurant.IsOpen {
			return apperr.Unavailable("restaurant %d is not accepting orders", restaurant.ID).
				With("restaurantId", restaurant.ID)
		}

		if table, err = loadTable(tx, in.RestaurantID, in.TableID); err != nil {
			return err
		}

		if order, err = priceOrder(tx, in); err != nil {
			return err
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if !table.IsOccupied {
			if err := occupy(table, order.ID); err != nil {
				return err
			}
			if err := tx.Save(table).Error; err != nil {
				return fmt.Errorf("occupy table %d: %w", table.ID, err)
			}
			becameOccupied = true
		}
		return nil
	})
	o.record("place_order", err)
	if err != nil {
		return nil, err
	}

	o.logger.Info("order placed", "order_id", order.ID, "restaurant_id", order.RestaurantID,
		"table_id", order.TableID, "total", order.Total)

	o.publish(orderEvent(realtime.EventNewOrder, order))
	if becameOccupied {
		o.publish(tableEvent(realtime.EventTableUpdate, table))
	}
	return order, nil
}

// priceOrder builds the order from authoritative menu rows. The rows stay
// locked until the order commits, so a concurrent stock change either lands
// first and is seen here or waits for the order.
func priceOrder(tx *gorm.DB, in PlaceOrderInput) (*models.Order, error) {
	ids := make([]uint, 0, len(in.Items))
	for _, item := range in.Items {
		ids = append(ids, item.MenuItemID)
	}

	var menu []models.MenuItem
	if err := forUpdate(tx).Where("restaurant_id = ? AND id IN (?)", in.RestaurantID, ids).Find(&menu).Error; err != nil {
		return nil, fmt.Errorf("load menu items: %w", err)
	}
	byID := make(map[uint]models.MenuItem, len(menu))
	for _, m := range menu {
		byID[m.ID] = m
	}

	var missing, unavailable []uint
	order := &models.Order{
		RestaurantID:  in.RestaurantID,
		TableID:       in.TableID,
		Status:        models.OrderStatusPlaced,
		PaymentStatus: models.PaymentPending,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerPhone: strings.TrimSpace(in.CustomerPhone),
	}
	for _, item := range in.Items {
		m, ok := byID[item.MenuItemID]
		switch {
		case !ok:
			missing = append(missing, item.MenuItemID)
			continue
		case !m.IsAvailable:
			unavailable = append(unavailable, item.MenuItemID)
			continue
		}
		order.Items = append(order.Items, models.OrderItem{
			MenuItemID: m.ID,
			Name:       m.Name,
			Quantity:   item.Quantity,
			UnitPrice:  m.Price,
		})
	}

	if len(missing) > 0 {
		return nil, apperr.Validation("menu items not found in restaurant %d", in.RestaurantID).
			With("missingItems", missing)
	}
	if len(unavailable) > 0 {
		return nil, apperr.Unavailable("some items are no longer available").
			With("unavailableItems", unavailable)
	}

	order.ComputeTotal()
	return order, nil
}

func (o *Orders) Get(ctx context.Context, orderID uint) (*models.Order, error) {
	return loadOrder(o.db, orderID)
}

func loadOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := tx.Preload("Items").Where("id = ?", orderID).First(&order).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("order %d not found", orderID)
		}
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	return &order, nil
}

// List returns orders newest first.
func (o *Orders) List(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	if filter.RestaurantID == 0 {
		return nil, apperr.Validation("restaurantId is required")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validation("unknown order status %q", filter.Status)
	}

	query := o.db.Preload("Items").Where("restaurant_id = ?", filter.RestaurantID)
	if filter.TableID != 0 {
		query = query.Where("table_id = ?", filter.TableID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Active {
		query = query.Where("status <> ?", models.OrderStatusCompleted)
	}

	var orders []models.Order
	if err := query.Order("created_at desc, id desc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func activeOrders(tx *gorm.DB, restaurantID, tableID uint) ([]models.Order, error) {
	var orders []models.Order
	err := tx.Preload("Items").
		Where("restaurant_id = ? AND table_id = ? AND status <> ?", restaurantID, tableID, models.OrderStatusCompleted).
		Order("id asc").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("load active orders: %w", err)
	}
	return orders, nil
}

// setStatus writes the status columns of the given orders and mirrors the
// change onto the in-memory copies.
func (o *Orders) setStatus(tx *gorm.DB, orders []*models.Order, status models.OrderStatus) error {
	if len(orders) == 0 {
		return nil
	}

	now := o.now()
	updates := map[string]interface{}{"status": status, "updated_at": now}
	switch status {
	case models.OrderStatusPaid:
		updates["payment_status"] = models.PaymentPaid
		updates["paid_at"] = now
	case models.OrderStatusCompleted:
		updates["completed_at"] = now
	}

	ids := make([]uint, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}
	if err := tx.Model(&models.Order{}).Where("id IN (?)", ids).Updates(updates).Error; err != nil {
		return fmt.Errorf("update orders to %s: %w", status, err)
	}

	for _, order := range orders {
		order.Status = status
		order.UpdatedAt = now
		switch status {
		case models.OrderStatusPaid:
			order.PaymentStatus = models.PaymentPaid
			paidAt := now
			order.PaidAt = &paidAt
		case models.OrderStatusCompleted:
			completedAt := now
			order.CompletedAt = &completedAt
		}
	}
	return nil
}

// AdvanceStatus moves the order exactly one step along
// PLACED, PREPARING, READY, SERVED, PAID, COMPLETED.
func (o *Orders) AdvanceStatus(ctx context.Context, orderID uint, next models.OrderStatus) (*models.Order, error) {
	if !next.Valid() {
		err := apperr.Validation("unknown order status %q", next)
		o.record("advance_status", err)
		return nil, err
	}

	current, err := loadOrder(o.db, orderID)
	if err != nil {
		o.record("advance_status", err)
		return nil, err
	}

	unlock := o.locks.Lock(tableLockKey(current.RestaurantID, current.TableID))
	defer unlock()

	var order *models.Order
	err = database.WithTx(ctx, o.db, func(tx *gorm.DB) error {
		var err error
		if order, err = loadOrder(tx, orderID); err != nil {
			return err
		}
		if !order.Status.CanAdvanceTo(next) {
			return apperr.InvalidTransition("cannot move order %d from %s to %s", order.ID, order.Status, next).
				With("from", order.Status).
				With("to", next)
		}
		return o.setStatus(tx, []*models.Order{order}, next)
	})
	o.record("advance_status", err)
	if err != nil {
		return nil, err
	}

	o.publish(orderEvent(realtime.EventOrderUpdate, order))
	return order, nil
}

// MarkTablePaid settles every active order of the table at once. All of
// them must have been served; orders that are already PAID are left as
// they are. The bill request flag is cleared.
func (o *Orders) MarkTablePaid(ctx context.Context, restaurantID, tableID uint) ([]models.Order, error) {
	unlock := o.locks.Lock(tableLockKey(restaurantID, tableID))
	defer unlock()

	var (
		orders      []models.Order
		changed     []*models.Order
		table       *models.Table
		billCleared bool
	)
	err := database.WithTx(ctx, o.db, func(tx *gorm.DB) error {
		var err error
		if table, err = loadTable(tx, restaurantID, tableID); err != nil {
			return err
		}
		if orders, err = activeOrders(tx, restaurantID, tableID); err != nil {
			return err
		}
		if len(orders) == 0 {
			return apperr.Precondition("table %d has no active orders", tableID).With("tableId", tableID)
		}

		var unserved []uint
		for i := range orders {
			switch {
			case orders[i].Status.Unserved():
				unserved = append(unserved, orders[i].ID)
			case orders[i].Status == models.OrderStatusServed:
				changed = append(changed, &orders[i])
			}
		}
		if len(unserved) > 0 {
			return apperr.Precondition("%d orders on table %d have not been served", len(unserved), tableID).
				With("unservedOrders", len(unserved)).
				With("orderIds", unserved)
		}

		if err := o.setStatus(tx, changed, models.OrderStatusPaid); err != nil {
			return err
		}

		if table.RequestBill {
			table.RequestBill = false
			if err := tx.Save(table).Error; err != nil {
				return fmt.Errorf("clear bill request on table %d: %w", tableID, err)
			}
			billCleared = true
		}
		return nil
	})
	o.record("mark_table_paid", err)
	if err != nil {
		return nil, err
	}

	o.logger.Info("table paid", "restaurant_id", restaurantID, "table_id", tableID, "orders", len(changed))

	for _, order := range changed {
		o.publish(orderEvent(realtime.EventOrderUpdate, order))
	}
	if billCleared {
		o.publish(tableEvent(realtime.EventTableBillUpdate, table))
	}
	return orders, nil
}

// FreeTable closes the dining session: every active order must be PAID or
// COMPLETED. The orders are marked COMPLETED and the table is released.
func (o *Orders) FreeTable(ctx context.Context, restaurantID, tableID uint) (*models.Table, error) {
	unlock := o.locks.Lock(tableLockKey(restaurantID, tableID))
	defer unlock()

	var (
		table   *models.Table
		changed []*models.Order
	)
	err := database.WithTx(ctx, o.db, func(tx *gorm.DB) error {
		var err error
		if table, err = loadTable(tx, restaurantID, tableID); err != nil {
			return err
		}
		orders, err := activeOrders(tx, restaurantID, tableID)
		if err != nil {
			return err
		}

		for i := range orders {
			if !orders[i].Status.Settled() {
				return apperr.Precondition("order %d is still %s", orders[i].ID, orders[i].Status).
					With("orderId", orders[i].ID).
					With("status", orders[i].Status)
			}
			changed = append(changed, &orders[i])
		}

		if err := o.setStatus(tx, changed, models.OrderStatusCompleted); err != nil {
			return err
		}

		table.Release()
		if err := tx.Save(table).Error; err != nil {
			return fmt.Errorf("free table %d: %w", tableID, err)
		}
		return nil
	})
	o.record("free_table", err)
	if err != nil {
		return nil, err
	}

	o.logger.Info("table freed", "restaurant_id", restaurantID, "table_id", tableID, "orders", len(changed))

	for _, order := range changed {
		if order.CompletedAt != nil {
			o.metrics.ObserveOrderTurnaround(order.CompletedAt.Sub(order.CreatedAt))
		}
		o.publish(orderEvent(realtime.EventOrderUpdate, order))
	}
	o.publish(tableEvent(realtime.EventTableFreed, table))
	return table, nil
}
