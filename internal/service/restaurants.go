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

const maxReviewLength = 2000

// Restaurants covers the restaurant-wide state that dashboards and the
// public menu follow: opening status, menu stock and reviews.
type Restaurants struct {
	*core
}

// Get returns the restaurant with its tables and menu.
func (r *Restaurants) Get(ctx context.Context, restaurantID uint) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	err := r.db.
		Preload("Tables", func(db *gorm.DB) *gorm.DB { return db.Order("number asc") }).
		Preload("MenuItems", func(db *gorm.DB) *gorm.DB { return db.Order("category asc, name asc") }).
		Where("id = ?", restaurantID).
		First(&restaurant).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("restaurant %d not found", restaurantID)
		}
		return nil, fmt.Errorf("load restaurant %d: %w", restaurantID, err)
	}
	return &restaurant, nil
}

// SetOpen toggles whether the restaurant accepts orders.
func (r *Restaurants) SetOpen(ctx context.Context, restaurantID uint, open bool) (*models.Restaurant, error) {
	unlock := r.locks.Lock(fmt.Sprintf("restaurant:%d", restaurantID))
	defer unlock()

	var restaurant *models.Restaurant
	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		var err error
		if restaurant, err = loadRestaurant(tx, restaurantID); err != nil {
			return err
		}
		restaurant.IsOpen = open
		return tx.Model(restaurant).Update("is_open", open).Error
	})
	r.record("set_restaurant_status", err)
	if err != nil {
		return nil, err
	}

	r.publish(restaurantEvent(realtime.EventRestaurantStatusUpdate, restaurantID, *restaurant))
	return restaurant, nil
}

// SetMenuItemAvailability marks a dish in or out of stock. Orders read the
// menu rows locked inside their own transaction, so an item going out of
// stock is never sold by an order that commits after this.
func (r *Restaurants) SetMenuItemAvailability(ctx context.Context, itemID uint, available bool) (*models.MenuItem, error) {
	unlock := r.locks.Lock(fmt.Sprintf("menu:%d", itemID))
	defer unlock()

	var item models.MenuItem
	err := database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("id = ?", itemID).First(&item).Error; err != nil {
			if gorm.IsRecordNotFoundError(err) {
				return apperr.NotFound("menu item %d not found", itemID)
			}
			return fmt.Errorf("load menu item %d: %w", itemID, err)
		}
		item.IsAvailable = available
		return tx.Model(&item).Update("is_available", available).Error
	})
	r.record("set_menu_stock", err)
	if err != nil {
		return nil, err
	}

	r.publish(restaurantEvent(realtime.EventMenuStockUpdate, item.RestaurantID, item))
	return &item, nil
}

// MenuItem returns a single menu item; used to scope authorization.
func (r *Restaurants) MenuItem(ctx context.Context, itemID uint) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.db.Where("id = ?", itemID).First(&item).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("menu item %d not found", itemID)
		}
		return nil, fmt.Errorf("load menu item %d: %w", itemID, err)
	}
	return &item, nil
}

// AddReview stores a rating from 1 to 5.
func (r *Restaurants) AddReview(ctx context.Context, restaurantID, userID uint, rating int, comment string) (*models.Review, error) {
	comment = strings.TrimSpace(comment)
	var err error
	switch {
	case userID == 0:
		err = apperr.Unauthenticated("authentication required")
	case rating < 1 || rating > 5:
		err = apperr.Validation("rating must be between 1 and 5")
	case len(comment) > maxReviewLength:
		err = apperr.Validation("comment is longer than %d characters", maxReviewLength)
	}
	if err != nil {
		r.record("add_review", err)
		return nil, err
	}

	review := &models.Review{RestaurantID: restaurantID, UserID: userID, Rating: rating, Comment: comment}
	err = database.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if _, err := loadRestaurant(tx, restaurantID); err != nil {
			return err
		}
		return tx.Create(review).Error
	})
	r.record("add_review", err)
	if err != nil {
		return nil, err
	}

	r.publish(realtime.Event{
		Name:         realtime.EventReviewAdded,
		RestaurantID: restaurantID,
		Rooms:        []string{realtime.PublicRoom(restaurantID), realtime.OwnerRoom(restaurantID)},
		Payload:      *review,
	})
	return review, nil
}
