package database

import (
	"context"
	"fmt"

	"maitred/internal/models"

	"github.com/jinzhu/gorm"
)

// Seed creates a demo restaurant with an owner, staff, tables and a menu
// when the database holds no restaurants yet.
func Seed(db *gorm.DB) error {
	var count int
	if err := db.Model(&models.Restaurant{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count restaurants: %w", err)
	}
	if count > 0 {
		return nil
	}

	return WithTx(context.Background(), db, func(tx *gorm.DB) error {
		owner := models.User{Name: "Owner", Email: "owner@maitred.local", Roles: models.StringSlice{"owner"}}
		if err := tx.Create(&owner).Error; err != nil {
			return fmt.Errorf("seed owner: %w", err)
		}

		restaurant := models.Restaurant{
			Name:               "Maitred Demo Kitchen",
			OwnerID:            owner.ID,
			IsOpen:             true,
			BookingSlotMinutes: 90,
		}
		if err := tx.Create(&restaurant).Error; err != nil {
			return fmt.Errorf("seed restaurant: %w", err)
		}

		owner.WorkingAt = &restaurant.ID
		if err := tx.Save(&owner).Error; err != nil {
			return fmt.Errorf("seed owner membership: %w", err)
		}

		staff := []models.User{
			{Name: "Manager", Email: "manager@maitred.local", Roles: models.StringSlice{"manager"}},
			{Name: "Kitchen", Email: "kitchen@maitred.local", Roles: models.StringSlice{"kitchen"}},
			{Name: "Waiter", Email: "waiter@maitred.local", Roles: models.StringSlice{"waiter"}},
		}
		for i := range staff {
			staff[i].WorkingAt = &restaurant.ID
			if err := tx.Create(&staff[i]).Error; err != nil {
				return fmt.Errorf("seed staff %s: %w", staff[i].Email, err)
			}
		}

		for number, capacity := range []int{2, 2, 4, 4, 6, 8} {
			table := models.Table{RestaurantID: restaurant.ID, Number: number + 1, Capacity: capacity}
			if err := tx.Create(&table).Error; err != nil {
				return fmt.Errorf("seed table %d: %w", table.Number, err)
			}
		}

		menu := []models.MenuItem{
			{Name: "Paneer Tikka", Category: string(models.MenuCategoryStarter), Price: 24000},
			{Name: "Dal Makhani", Category: string(models.MenuCategoryMain), Price: 20000},
			{Name: "Butter Naan", Category: string(models.MenuCategorySide), Price: 6000},
			{Name: "Jeera Rice", Category: string(models.MenuCategorySide), Price: 15000},
			{Name: "Gulab Jamun", Category: string(models.MenuCategoryDessert), Price: 9000},
			{Name: "Masala Chai", Category: string(models.MenuCategoryBeverage), Price: 5000},
		}
		for i := range menu {
			menu[i].RestaurantID = restaurant.ID
			menu[i].IsAvailable = true
			if err := models.ValidateMenuItem(&menu[i]); err != nil {
				return err
			}
			if err := tx.Create(&menu[i]).Error; err != nil {
				return fmt.Errorf("seed menu item %s: %w", menu[i].Name, err)
			}
		}
		return nil
	})
}
