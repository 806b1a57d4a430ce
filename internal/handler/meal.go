package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/mealplan/internal/meal"
	"github.com/dukerupert/mealplan/internal/model"
	"github.com/dukerupert/mealplan/internal/query"
	"github.com/dukerupert/mealplan/internal/websocket"
)

const dateLayout = "2006-01-02"

type MealHandler struct {
	meals  *meal.Store
	hub    *websocket.Hub
	loc    *time.Location
	logger *slog.Logger
}

func NewMealHandler(ms *meal.Store, hub *websocket.Hub, loc *time.Location, logger *slog.Logger) *MealHandler {
	if loc == nil {
		loc = time.Local
	}
	return &MealHandler{meals: ms, hub: hub, loc: loc, logger: logger}
}

func (h *MealHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type createMealRequest struct {
	Name        string         `json:"name" validate:"required"`
	Category    string         `json:"category"`
	Image       string         `json:"image"`
	Description string         `json:"description"`
	IsFavorite  bool           `json:"isFavorite"`
	Date        string         `json:"date"`
	MealTime    model.MealTime `json:"mealTime" validate:"omitempty,oneof=Breakfast Lunch Dinner Snack"`
}

type favoriteRequest struct {
	IsFavorite *bool `json:"isFavorite" validate:"required"`
}

// List serves the filtered, sorted view. ?q= matches names, ?date=YYYY-MM-DD
// keeps meals on that calendar day.
func (h *MealHandler) List(w http.ResponseWriter, r *http.Request) {
	var dateFilter *time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.ParseInLocation(dateLayout, v, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		dateFilter = &d
	}

	view := query.ViewIn(h.loc, h.meals.Meals(), r.URL.Query().Get("q"), dateFilter)
	writeJSON(w, http.StatusOK, view)
}

func (h *MealHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.meals.Get(r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MealHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMealRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD or RFC 3339")
		return
	}

	m, err := h.meals.Add(model.Meal{
		Name:        strings.TrimSpace(req.Name),
		Category:    req.Category,
		Image:       req.Image,
		Description: req.Description,
		IsFavorite:  req.IsFavorite,
		Date:        date,
		MealTime:    req.MealTime,
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.logger.Info("meal created", "id", m.ID, "name", m.Name)
	h.broadcast(websocket.NewMessage("meal", "created", m.ID, m))
	writeJSON(w, http.StatusCreated, m)
}

func (h *MealHandler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.meals.SetFavorite(r.PathValue("id"), *req.IsFavorite)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.broadcast(websocket.NewMessage("meal", "favorited", m.ID, m))
	writeJSON(w, http.StatusOK, m)
}

func (h *MealHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	m, err := h.meals.ToggleFavorite(r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.broadcast(websocket.NewMessage("meal", "favorited", m.ID, m))
	writeJSON(w, http.StatusOK, m)
}

// Reload re-reads the collection from the byte store.
func (h *MealHandler) Reload(w http.ResponseWriter, r *http.Request) {
	res := h.meals.Load()
	resp := map[string]any{
		"outcome": res.Outcome,
		"count":   len(res.Meals),
	}
	if res.Migrated > 0 {
		resp["migrated"] = res.Migrated
	}
	if res.Err != nil {
		resp["error"] = res.Err.Error()
	}

	h.broadcast(websocket.Message{
		Type:   "meal_reloaded",
		Entity: "meal",
		Action: "reloaded",
		Extra:  map[string]any{"outcome": res.Outcome, "count": len(res.Meals)},
	})
	writeJSON(w, http.StatusOK, resp)
}

func (h *MealHandler) parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, v, h.loc)
}

func (h *MealHandler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, meal.ErrMealNotFound):
		writeError(w, http.StatusNotFound, "meal not found")
	case errors.Is(err, meal.ErrInvalidMeal):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("meal store error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
