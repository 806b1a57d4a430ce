package model

import "time"

type MealTime string

const (
	MealTimeBreakfast MealTime = "Breakfast"
	MealTimeLunch     MealTime = "Lunch"
	MealTimeDinner    MealTime = "Dinner"
	MealTimeSnack     MealTime = "Snack"
)

// MealTimes lists the slots in display order within a day.
var MealTimes = []MealTime{MealTimeBreakfast, MealTimeLunch, MealTimeDinner, MealTimeSnack}

// Rank returns the slot's position in MealTimes. Values outside the set rank 0.
func (t MealTime) Rank() int {
	for i, mt := range MealTimes {
		if mt == t {
			return i
		}
	}
	return 0
}

// Valid reports whether t is one of the four known slots.
func (t MealTime) Valid() bool {
	for _, mt := range MealTimes {
		if mt == t {
			return true
		}
	}
	return false
}

type Meal struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Image       string    `json:"image"`
	Description string    `json:"description"`
	IsFavorite  bool      `json:"isFavorite"`
	Date        time.Time `json:"date"`
	MealTime    MealTime  `json:"mealTime"`
}
