package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dukerupert/mealplan/internal/model"
	"github.com/dukerupert/mealplan/internal/query"
)

const dateLayout = "2006-01-02"

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	favoriteStyle = cellStyle.Foreground(lipgloss.Color("212"))
)

var (
	listSearch string
	listDate   string

	addName        string
	addCategory    string
	addImage       string
	addDescription string
	addDate        string
	addMealTime    string
	addFavorite    bool

	favoriteOff bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List meals sorted by day and meal time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var dateFilter *time.Time
		if listDate != "" {
			d, err := time.ParseInLocation(dateLayout, listDate, time.Local)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}
			dateFilter = &d
		}

		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		renderMeals(cmd.OutOrStdout(), query.View(a.meals.Meals(), listSearch, dateFilter))
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a meal to the plan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := model.Meal{
			Name:        addName,
			Category:    addCategory,
			Image:       addImage,
			Description: addDescription,
			IsFavorite:  addFavorite,
			MealTime:    model.MealTime(addMealTime),
		}
		if addDate != "" {
			d, err := time.ParseInLocation(dateLayout, addDate, time.Local)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}
			m.Date = d
		}

		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		added, err := a.meals.Add(m)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", added.Name, added.ID)
		return nil
	},
}

var favoriteCmd = &cobra.Command{
	Use:   "favorite <id>",
	Short: "Mark a meal as favorite (or clear it with --off)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.meals.SetFavorite(args[0], !favoriteOff)
		if err != nil {
			return err
		}
		state := "favorite"
		if !m.IsFavorite {
			state = "not favorite"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", m.Name, state)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listSearch, "search", "", "case-insensitive name filter")
	listCmd.Flags().StringVar(&listDate, "date", "", "only meals on this day (YYYY-MM-DD)")

	addCmd.Flags().StringVar(&addName, "name", "", "meal name")
	addCmd.Flags().StringVar(&addCategory, "category", "", "free-form category")
	addCmd.Flags().StringVar(&addImage, "image", "", "image asset name")
	addCmd.Flags().StringVar(&addDescription, "description", "", "description")
	addCmd.Flags().StringVar(&addDate, "date", "", "planned day (YYYY-MM-DD), defaults to now")
	addCmd.Flags().StringVar(&addMealTime, "meal-time", "", "Breakfast, Lunch, Dinner or Snack (default Lunch)")
	addCmd.Flags().BoolVar(&addFavorite, "favorite", false, "mark as favorite")
	addCmd.MarkFlagRequired("name")

	favoriteCmd.Flags().BoolVar(&favoriteOff, "off", false, "clear the favorite flag")
}

func renderMeals(w io.Writer, meals []model.Meal) {
	if len(meals) == 0 {
		fmt.Fprintln(w, "no meals")
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("DATE", "TIME", "NAME", "CATEGORY", "FAV", "ID").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 4 {
				return favoriteStyle
			}
			return cellStyle
		})

	for _, m := range meals {
		fav := ""
		if m.IsFavorite {
			fav = "★"
		}
		t.Row(m.Date.In(time.Local).Format(dateLayout), string(m.MealTime), m.Name, m.Category, fav, m.ID)
	}
	fmt.Fprintln(w, t.Render())
}
