package models

import (
	"fmt"
	"time"
)

// MenuItem represents a dish on the menu. Price is in minor currency units.
type MenuItem struct {
	ID           uint      `gorm:"primary_key" json:"id"`
	RestaurantID uint      `gorm:"index;not null" json:"restaurantId"`
	Name         string    `gorm:"type:varchar(120);not null" json:"name"`
	Category     string    `json:"category"`
	Price        int64     `json:"price"`
	IsAvailable  bool      `json:"isAvailable"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// MenuCategory represents the category of a menu item
type MenuCategory string

const (
	MenuCategoryStarter  MenuCategory = "starter"
	MenuCategoryMain     MenuCategory = "main"
	MenuCategorySide     MenuCategory = "side"
	MenuCategoryDessert  MenuCategory = "dessert"
	MenuCategoryBeverage MenuCategory = "beverage"
)

// ValidateMenuItem validates a menu item
func ValidateMenuItem(item *MenuItem) error {
	if item.Name == "" {
		return fmt.Errorf("menu item name is required")
	}
	if item.Price <= 0 {
		return fmt.Errorf("menu item price must be greater than 0")
	}
	if item.RestaurantID == 0 {
		return fmt.Errorf("menu item must belong to a restaurant")
	}
	return nil
}

// IsInCategory checks if the item belongs to a specific category
func (mi *MenuItem) IsInCategory(category MenuCategory) bool {
	return mi.Category == string(category)
}
