// Package query derives the display order of a meal collection.
package query

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/dukerupert/mealplan/internal/model"
)

// View filters meals by name and calendar day in the local time zone and
// returns them ordered by day, then by meal time. A nil dateFilter disables
// the day filter. meals is not modified.
func View(meals []model.Meal, searchText string, dateFilter *time.Time) []model.Meal {
	return ViewIn(time.Local, meals, searchText, dateFilter)
}

// ViewIn is View with calendar days taken in loc.
func ViewIn(loc *time.Location, meals []model.Meal, searchText string, dateFilter *time.Time) []model.Meal {
	if loc == nil {
		loc = time.Local
	}

	out := make([]model.Meal, 0, len(meals))
	match := nameMatcher(searchText)
	var want civilDay
	if dateFilter != nil {
		want = dayOf(*dateFilter, loc)
	}

	for _, m := range meals {
		if !match(m.Name) {
			continue
		}
		if dateFilter != nil && dayOf(m.Date, loc) != want {
			continue
		}
		out = append(out, m)
	}

	slices.SortStableFunc(out, func(a, b model.Meal) int {
		if c := dayOf(a.Date, loc).compare(dayOf(b.Date, loc)); c != 0 {
			return c
		}
		return cmp.Compare(a.MealTime.Rank(), b.MealTime.Rank())
	})
	return out
}

// nameMatcher returns a case-insensitive substring test for searchText.
// Both sides are NFC-normalized and Unicode case-folded.
func nameMatcher(searchText string) func(string) bool {
	if searchText == "" {
		return func(string) bool { return true }
	}
	fold := cases.Fold()
	needle := fold.String(norm.NFC.String(searchText))
	return func(name string) bool {
		return strings.Contains(fold.String(norm.NFC.String(name)), needle)
	}
}

type civilDay struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time, loc *time.Location) civilDay {
	y, m, d := t.In(loc).Date()
	return civilDay{y, m, d}
}

func (d civilDay) compare(o civilDay) int {
	if c := cmp.Compare(d.year, o.year); c != 0 {
		return c
	}
	if c := cmp.Compare(d.month, o.month); c != 0 {
		return c
	}
	return cmp.Compare(d.day, o.day)
}
