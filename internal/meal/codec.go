package meal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dukerupert/mealplan/internal/model"
)

// record is the persisted shape of a meal. Pointer fields distinguish
// absent keys from zero values so older records can be migrated.
type record struct {
	ID          *string         `json:"id"`
	Name        *string         `json:"name"`
	Category    *string         `json:"category"`
	Image       *string         `json:"image"`
	Description *string         `json:"description"`
	IsFavorite  *bool           `json:"isFavorite"`
	Date        json.RawMessage `json:"date"`
	MealTime    *string         `json:"mealTime"`
}

// Encode serializes meals as a JSON array. Dates are written as RFC 3339
// with nanoseconds.
func Encode(meals []model.Meal) ([]byte, error) {
	if meals == nil {
		meals = []model.Meal{}
	}
	data, err := json.Marshal(meals)
	if err != nil {
		return nil, fmt.Errorf("encode meals: %w", err)
	}
	return data, nil
}

// Decode parses a persisted collection. Records written before date and
// meal time existed are filled in: a missing date becomes now, a missing
// meal time is taken from the category when it names a slot and is Lunch
// otherwise. migrated counts records that needed either default.
func Decode(data []byte, now time.Time) (meals []model.Meal, migrated int, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, 0, errors.New("decode meals: empty input")
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, 0, fmt.Errorf("decode meals: %w", err)
	}
	if records == nil {
		return nil, 0, errors.New("decode meals: not an array")
	}

	meals = make([]model.Meal, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		m, wasMigrated, err := r.toMeal(now)
		if err != nil {
			return nil, 0, fmt.Errorf("decode meal %d: %w", i, err)
		}
		if _, dup := seen[m.ID]; dup {
			return nil, 0, fmt.Errorf("decode meal %d: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = struct{}{}
		if wasMigrated {
			migrated++
		}
		meals = append(meals, m)
	}
	return meals, migrated, nil
}

func (r record) toMeal(now time.Time) (model.Meal, bool, error) {
	if r.ID == nil || *r.ID == "" {
		return model.Meal{}, false, errors.New("missing id")
	}
	if r.Name == nil || *r.Name == "" {
		return model.Meal{}, false, errors.New("missing name")
	}

	m := model.Meal{
		ID:          *r.ID,
		Name:        *r.Name,
		Category:    deref(r.Category),
		Image:       deref(r.Image),
		Description: deref(r.Description),
	}
	if r.IsFavorite != nil {
		m.IsFavorite = *r.IsFavorite
	}

	migrated := false

	date, ok, err := parseDate(r.Date)
	if err != nil {
		return model.Meal{}, false, err
	}
	if ok {
		m.Date = date
	} else {
		m.Date = now
		migrated = true
	}

	switch {
	case r.MealTime != nil && *r.MealTime != "":
		m.MealTime = model.MealTime(*r.MealTime)
	case model.MealTime(m.Category).Valid():
		m.MealTime = model.MealTime(m.Category)
		migrated = true
	default:
		m.MealTime = model.MealTimeLunch
		migrated = true
	}

	return m, migrated, nil
}

// Unix seconds of 0000-01-01T00:00:00Z and 9999-12-31T23:59:59Z, the range
// Encode can write back.
const (
	minEpoch = -62167219200
	maxEpoch = 253402300799
)

// parseDate accepts an RFC 3339 string or a number of Unix seconds.
// ok is false when the field is absent or null. Dates outside years
// 0 through 9999 are rejected.
func parseDate(raw json.RawMessage) (time.Time, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false, nil
	}

	if raw[0] == '"' {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return time.Time{}, false, fmt.Errorf("parse date: %w", err)
		}
		return t, true, nil
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return time.Time{}, false, fmt.Errorf("parse date: %w", err)
	}
	if math.IsNaN(secs) || secs < minEpoch || secs >= maxEpoch+1 {
		return time.Time{}, false, fmt.Errorf("parse date: epoch %v out of range", secs)
	}
	whole, frac := math.Modf(secs)
	t := time.Unix(int64(whole), int64(frac*1e9))
	if y := t.Year(); y < 0 || y > 9999 {
		return time.Time{}, false, fmt.Errorf("parse date: epoch %v out of range", secs)
	}
	return t, true, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
