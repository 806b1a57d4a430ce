// Package meal owns the meal collection and keeps it durable in a byte store.
package meal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/mealplan/internal/model"
)

// DefaultKey is the byte store key the collection is persisted under.
const DefaultKey = "savedMeals"

const defaultImage = "placeholder"

var (
	ErrMealNotFound = errors.New("meal not found")
	ErrInvalidMeal  = errors.New("invalid meal")
)

// ByteStore is an opaque get/set-by-key store. Get reports ok=false for a
// missing key.
type ByteStore interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
}

// Outcome describes where a loaded collection came from.
type Outcome string

const (
	// OutcomeFresh means nothing was stored; the seed collection is used.
	OutcomeFresh Outcome = "fresh"
	// OutcomeRestored means the stored collection decoded cleanly.
	OutcomeRestored Outcome = "restored"
	// OutcomeRecovered means stored bytes could not be read or decoded; the
	// seed collection is used and Err holds the cause.
	OutcomeRecovered Outcome = "recovered"
)

type LoadResult struct {
	Outcome  Outcome
	Meals    []model.Meal
	Migrated int
	Err      error
}

// Store holds the authoritative meal collection. Every mutation writes the
// whole collection back to the byte store before returning.
type Store struct {
	mu     sync.Mutex
	kv     ByteStore
	key    string
	now    func() time.Time
	newID  func() string
	logger *slog.Logger

	meals []model.Meal
	index map[string]int
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store over kv. The collection is empty until Load is called.
func New(kv ByteStore, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
		index:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory collection with the persisted one, falling
// back to the seed collection when nothing usable is stored.
func (s *Store) Load() LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	res := s.read(now)
	s.replace(res.Meals)

	switch res.Outcome {
	case OutcomeRecovered:
		s.logger.Warn("stored meals unreadable, using seed data", "key", s.key, "error", res.Err)
	default:
		s.logger.Debug("meals loaded", "key", s.key, "outcome", string(res.Outcome), "count", len(res.Meals))
	}

	if res.Migrated > 0 {
		s.logger.Info("migrated meals to current schema", "count", res.Migrated)
		s.save(s.meals)
	}

	res.Meals = s.snapshot()
	return res
}

func (s *Store) read(now time.Time) LoadResult {
	data, ok, err := s.kv.Get(s.key)
	if err != nil {
		return LoadResult{Outcome: OutcomeRecovered, Meals: Seed(now), Err: fmt.Errorf("read %q: %w", s.key, err)}
	}
	if !ok {
		return LoadResult{Outcome: OutcomeFresh, Meals: Seed(now)}
	}
	meals, migrated, err := Decode(data, now)
	if err != nil {
		return LoadResult{Outcome: OutcomeRecovered, Meals: Seed(now), Err: err}
	}
	return LoadResult{Outcome: OutcomeRestored, Meals: meals, Migrated: migrated}
}

// Save writes meals under the store key, overwriting what was there.
// Failures are logged and otherwise ignored.
func (s *Store) Save(meals []model.Meal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(meals)
}

func (s *Store) save(meals []model.Meal) {
	data, err := Encode(meals)
	if err != nil {
		s.logger.Warn("meals not saved", "key", s.key, "error", err)
		return
	}
	if err := s.kv.Set(s.key, data); err != nil {
		s.logger.Warn("meals not saved", "key", s.key, "error", err)
	}
}

// Add appends m under a freshly generated id and persists the collection.
// A zero date becomes now, an empty meal time becomes Lunch and an empty
// image becomes the placeholder asset.
func (s *Store) Add(m model.Meal) (model.Meal, error) {
	if strings.TrimSpace(m.Name) == "" {
		return model.Meal{}, fmt.Errorf("%w: name is required", ErrInvalidMeal)
	}
	if m.MealTime == "" {
		m.MealTime = model.MealTimeLunch
	}
	if !m.MealTime.Valid() {
		return model.Meal{}, fmt.Errorf("%w: unknown meal time %q", ErrInvalidMeal, m.MealTime)
	}
	if m.Image == "" {
		m.Image = defaultImage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Date.IsZero() {
		m.Date = s.now()
	}
	m.ID = s.freshID()

	s.index[m.ID] = len(s.meals)
	s.meals = append(s.meals, m)
	s.save(s.meals)
	return m, nil
}

func (s *Store) freshID() string {
	for {
		id := s.newID()
		if _, taken := s.index[id]; !taken && id != "" {
			return id
		}
	}
}

// SetFavorite sets the favorite flag of the meal with the given id and
// persists the collection.
func (s *Store) SetFavorite(id string, value bool) (model.Meal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return model.Meal{}, fmt.Errorf("%w: %s", ErrMealNotFound, id)
	}
	s.meals[i].IsFavorite = value
	s.save(s.meals)
	return s.meals[i], nil
}

// ToggleFavorite flips the favorite flag of the meal with the given id.
func (s *Store) ToggleFavorite(id string) (model.Meal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return model.Meal{}, fmt.Errorf("%w: %s", ErrMealNotFound, id)
	}
	s.meals[i].IsFavorite = !s.meals[i].IsFavorite
	s.save(s.meals)
	return s.meals[i], nil
}

func (s *Store) Get(id string) (model.Meal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return model.Meal{}, fmt.Errorf("%w: %s", ErrMealNotFound, id)
	}
	return s.meals[i], nil
}

// Meals returns a copy of the collection in insertion order.
func (s *Store) Meals() []model.Meal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.meals)
}

// Export encodes the current collection in the persisted wire format.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Encode(s.meals)
}

// Import decodes data, replaces the collection with it and persists the
// result. On a decode error the collection is left untouched.
func (s *Store) Import(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meals, migrated, err := Decode(data, s.now())
	if err != nil {
		return 0, err
	}
	if migrated > 0 {
		s.logger.Info("migrated imported meals to current schema", "count", migrated)
	}
	s.replace(meals)
	s.save(s.meals)
	return len(meals), nil
}

func (s *Store) snapshot() []model.Meal {
	out := make([]model.Meal, len(s.meals))
	copy(out, s.meals)
	return out
}

func (s *Store) replace(meals []model.Meal) {
	s.meals = meals
	s.index = make(map[string]int, len(meals))
	for i, m := range meals {
		s.index[m.ID] = i
	}
}
