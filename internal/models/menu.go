package models

import "time"

type MenuCategory string

const (
	CategoryBread     MenuCategory = "bread"
	CategoryCake      MenuCategory = "cake"
	CategoryCroissant MenuCategory = "croissant"
	CategoryFruitTart MenuCategory = "fruittart"
	CategoryPastry    MenuCategory = "pastry"
	CategoryCookie    MenuCategory = "cookie"
	CategoryMuffin    MenuCategory = "muffin"
	CategoryDonut     MenuCategory = "donut"
)

var MenuCategories = []struct {
	Value MenuCategory `json:"value"`
	Label string       `json:"label"`
}{
	{CategoryBread, "Bread"},
	{CategoryCake, "Cake"},
	{CategoryCroissant, "Croissant"},
	{CategoryFruitTart, "Fruit Tart"},
	{CategoryPastry, "Pastry"},
	{CategoryCookie, "Cookie"},
	{CategoryMuffin, "Muffin"},
	{CategoryDonut, "Donut"},
}

func (c MenuCategory) Valid() bool {
	for _, mc := range MenuCategories {
		if mc.Value == c {
			return true
		}
	}
	return false
}

type MenuItem struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    MenuCategory `json:"category"`
	Price       Money        `json:"price"`
	ImageURL    string       `json:"image_url,omitempty"`
	Available   bool         `json:"available"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
