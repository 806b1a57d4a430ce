package meal

import (
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/mealplan/internal/model"
)

// seedNamespace derives stable ids for the seed meals so a reseeded
// collection is identical to the previous one apart from its dates.
var seedNamespace = uuid.MustParse("6f1c2d0e-8a4b-4c7e-9b1d-3e5f7a9c0b2d")

const day = 24 * time.Hour

type seedMeal struct {
	name        string
	category    string
	image       string
	description string
	offset      time.Duration
	mealTime    model.MealTime
}

var seedMeals = []seedMeal{
	{"Grilled Chicken Salad", "Lunch", "salad", "A healthy and light grilled chicken salad with fresh greens and vinaigrette.", 0, model.MealTimeLunch},
	{"Spaghetti Bolognese", "Dinner", "spaghetti", "Classic Italian pasta dish with rich, meaty tomato sauce.", day, model.MealTimeDinner},
	{"Omelette", "Breakfast", "omelette", "Fluffy omelette with cheese and peppers, perfect for a protein-packed breakfast.", -day, model.MealTimeBreakfast},
	{"Tacos", "Dinner", "tacos", "Spicy and flavorful tacos with seasoned meat and fresh toppings.", 2 * day, model.MealTimeDinner},
	{"Pancakes", "Breakfast", "pancakes", "Soft and fluffy pancakes served with syrup and fresh berries.", 0, model.MealTimeBreakfast},
	{"Grilled Salmon", "Dinner", "salmon", "A delicious and healthy grilled salmon fillet served with steamed vegetables.", 0, model.MealTimeDinner},
	{"Caesar Salad", "Lunch", "caesar_salad", "Crispy romaine lettuce with creamy caesar dressing, croutons, and parmesan cheese.", day, model.MealTimeLunch},
}

// Seed returns the default collection with dates relative to now.
func Seed(now time.Time) []model.Meal {
	meals := make([]model.Meal, 0, len(seedMeals))
	for _, s := range seedMeals {
		meals = append(meals, model.Meal{
			ID:          uuid.NewSHA1(seedNamespace, []byte(s.name)).String(),
			Name:        s.name,
			Category:    s.category,
			Image:       s.image,
			Description: s.description,
			Date:        now.Add(s.offset),
			MealTime:    s.mealTime,
		})
	}
	return meals
}
