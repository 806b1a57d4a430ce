package meal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dukerupert/mealplan/internal/database"
	"github.com/dukerupert/mealplan/internal/model"
	"github.com/dukerupert/mealplan/internal/store"
)

// failingKV fails reads and/or writes on demand.
type failingKV struct {
	*store.MemoryKV
	getErr error
	setErr error
}

func (f *failingKV) Get(key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.MemoryKV.Get(key)
}

func (f *failingKV) Set(key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.MemoryKV.Set(key, value)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestStore(t *testing.T, kv ByteStore, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(sequentialIDs()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(kv, append(base, opts...)...)
}

func TestLoadFresh(t *testing.T) {
	kv := store.NewMemoryKV()
	s := newTestStore(t, kv)

	res := s.Load()
	if res.Outcome != OutcomeFresh {
		t.Errorf("outcome = %q, want %q", res.Outcome, OutcomeFresh)
	}
	if res.Err != nil {
		t.Errorf("err = %v, want nil", res.Err)
	}
	if diff := cmp.Diff(Seed(testNow), res.Meals); diff != "" {
		t.Errorf("fresh load mismatch (-want +got):\n%s", diff)
	}
	if s.Len() != len(seedMeals) {
		t.Errorf("store len = %d, want %d", s.Len(), len(seedMeals))
	}

	// Seed data is not written until a mutation happens.
	if _, ok, _ := kv.Get(DefaultKey); ok {
		t.Error("expected nothing persisted after fresh load")
	}
}

func TestLoadRecoversFromGarbage(t *testing.T) {
	for _, data := range []string{"", "garbage", `{"meals":[]}`, `[{"name":"no id"}]`} {
		t.Run(fmt.Sprintf("%q", data), func(t *testing.T) {
			kv := store.NewMemoryKV()
			kv.Set(DefaultKey, []byte(data))
			s := newTestStore(t, kv)

			res := s.Load()
			if res.Outcome != OutcomeRecovered {
				t.Errorf("outcome = %q, want %q", res.Outcome, OutcomeRecovered)
			}
			if res.Err == nil {
				t.Error("expected decode cause in result")
			}
			if diff := cmp.Diff(Seed(testNow), res.Meals); diff != "" {
				t.Errorf("recovered meals mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOutOfRangeDateKeepsStoreWritable(t *testing.T) {
	kv := store.NewMemoryKV()
	kv.Set(DefaultKey, []byte(`[{"id":"a","name":"Toast","date":1e12,"mealTime":"Breakfast"}]`))
	s := newTestStore(t, kv)

	if res := s.Load(); res.Outcome != OutcomeRecovered {
		t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeRecovered)
	}
	added, err := s.Add(model.Meal{Name: "Soup"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	reloaded := newTestStore(t, kv)
	res := reloaded.Load()
	if res.Outcome != OutcomeRestored {
		t.Fatalf("reload outcome = %q (%v), want %q", res.Outcome, res.Err, OutcomeRestored)
	}
	if _, err := reloaded.Get(added.ID); err != nil {
		t.Errorf("added meal lost after reload: %v", err)
	}
}

func TestLoadRecoversFromReadError(t *testing.T) {
	kv := &failingKV{MemoryKV: store.NewMemoryKV(), getErr: errors.New("disk gone")}
	s := newTestStore(t, kv)

	res := s.Load()
	if res.Outcome != OutcomeRecovered {
		t.Errorf("outcome = %q, want %q", res.Outcome, OutcomeRecovered)
	}
	if res.Err == nil || !errors.Is(res.Err, kv.getErr) {
		t.Errorf("err = %v, want wrapped read error", res.Err)
	}
	if len(res.Meals) != len(seedMeals) {
		t.Errorf("meals = %d, want seed", len(res.Meals))
	}
}

func TestLoadRestored(t *testing.T) {
	kv := store.NewMemoryKV()
	want := []model.Meal{
		{ID: "x", Name: "Soup", Category: "Lunch", Image: "soup", Date: testNow, MealTime: model.MealTimeLunch},
	}
	data, _ := Encode(want)
	kv.Set(DefaultKey, data)

	s := newTestStore(t, kv)
	res := s.Load()
	if res.Outcome != OutcomeRestored {
		t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeRestored)
	}
	if diff := cmp.Diff(want, s.Meals()); diff != "" {
		t.Errorf("restored mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMigratesAndSaves(t *testing.T) {
	kv := store.NewMemoryKV()
	kv.Set(DefaultKey, []byte(`[{"id":"a","name":"Omelette","category":"Breakfast","image":"omelette","description":"","isFavorite":false}]`))

	s := newTestStore(t, kv)
	res := s.Load()
	if res.Outcome != OutcomeRestored {
		t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeRestored)
	}
	if res.Migrated != 1 {
		t.Errorf("migrated = %d, want 1", res.Migrated)
	}

	// The migrated record is written back so its date stays fixed.
	data, _, _ := kv.Get(DefaultKey)
	got, migrated, err := Decode(data, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("decode saved: %v", err)
	}
	if migrated != 0 {
		t.Errorf("saved data still needs migration: %s", data)
	}
	if !got[0].Date.Equal(testNow) || got[0].MealTime != model.MealTimeBreakfast {
		t.Errorf("saved meal = %+v", got[0])
	}
}

func TestAdd(t *testing.T) {
	kv := store.NewMemoryKV()
	s := newTestStore(t, kv)
	s.Load()
	before := s.Meals()

	in := model.Meal{
		Name:        "Shakshuka",
		Category:    "Brunch",
		Image:       "shakshuka",
		Description: "Eggs poached in tomato sauce.",
		Date:        testNow.Add(48 * time.Hour),
		MealTime:    model.MealTimeBreakfast,
	}
	created, err := s.Add(in)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected id assigned")
	}
	for _, m := range before {
		if m.ID == created.ID {
			t.Fatalf("id %q reused", created.ID)
		}
	}

	want := in
	want.ID = created.ID
	if diff := cmp.Diff(want, created); diff != "" {
		t.Errorf("created mismatch (-want +got):\n%s", diff)
	}

	after := s.Meals()
	if len(after) != len(before)+1 {
		t.Fatalf("len = %d, want %d", len(after), len(before)+1)
	}
	if diff := cmp.Diff(want, after[len(after)-1]); diff != "" {
		t.Errorf("appended mismatch (-want +got):\n%s", diff)
	}

	// Reload from the same byte store.
	reloaded := newTestStore(t, kv)
	res := reloaded.Load()
	if res.Outcome != OutcomeRestored {
		t.Fatalf("reload outcome = %q, want %q", res.Outcome, OutcomeRestored)
	}
	if diff := cmp.Diff(after, res.Meals); diff != "" {
		t.Errorf("reload mismatch (-want +got):\n%s", diff)
	}
}

func TestAddDefaults(t *testing.T) {
	s := newTestStore(t, store.NewMemoryKV())

	created, err := s.Add(model.Meal{Name: "Toast"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !created.Date.Equal(testNow) {
		t.Errorf("date = %v, want %v", created.Date, testNow)
	}
	if created.MealTime != model.MealTimeLunch {
		t.Errorf("mealTime = %q, want %q", created.MealTime, model.MealTimeLunch)
	}
	if created.Image != "placeholder" {
		t.Errorf("image = %q, want %q", created.Image, "placeholder")
	}
	if created.IsFavorite {
		t.Error("expected not favorite")
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	s := newTestStore(t, store.NewMemoryKV())

	tests := []model.Meal{
		{Name: ""},
		{Name: "   "},
		{Name: "Tea", MealTime: "Teatime"},
	}
	for _, m := range tests {
		if _, err := s.Add(m); !errors.Is(err, ErrInvalidMeal) {
			t.Errorf("add(%+v) err = %v, want ErrInvalidMeal", m, err)
		}
	}
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
}

func TestAddSkipsTakenIDs(t *testing.T) {
	ids := []string{"dup", "dup", "", "fresh"}
	next := func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	s := newTestStore(t, store.NewMemoryKV(), WithIDGenerator(next))

	first, _ := s.Add(model.Meal{Name: "One"})
	second, _ := s.Add(model.Meal{Name: "Two"})
	if first.ID != "dup" || second.ID != "fresh" {
		t.Errorf("ids = %q, %q; want dup, fresh", first.ID, second.ID)
	}
}

func TestSetFavorite(t *testing.T) {
	kv := store.NewMemoryKV()
	s := newTestStore(t, kv)
	s.Load()
	id := s.Meals()[3].ID

	once, err := s.SetFavorite(id, true)
	if err != nil {
		t.Fatalf("set favorite: %v", err)
	}
	twice, err := s.SetFavorite(id, true)
	if err != nil {
		t.Fatalf("set favorite again: %v", err)
	}
	if !once.IsFavorite || !twice.IsFavorite {
		t.Error("expected favorite after set")
	}

	favorites := 0
	for _, m := range s.Meals() {
		if m.IsFavorite {
			favorites++
		}
	}
	if favorites != 1 {
		t.Errorf("favorites = %d, want 1", favorites)
	}

	// Persisted immediately.
	reloaded := newTestStore(t, kv)
	reloaded.Load()
	got, err := reloaded.Get(id)
	if err != nil {
		t.Fatalf("get after reload: %v", err)
	}
	if !got.IsFavorite {
		t.Error("favorite not persisted")
	}

	if _, err := s.SetFavorite(id, false); err != nil {
		t.Fatalf("unset favorite: %v", err)
	}
	got, _ = s.Get(id)
	if got.IsFavorite {
		t.Error("expected not favorite after unset")
	}
}

func TestToggleFavorite(t *testing.T) {
	s := newTestStore(t, store.NewMemoryKV())
	m, _ := s.Add(model.Meal{Name: "Tacos"})

	got, err := s.ToggleFavorite(m.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !got.IsFavorite {
		t.Error("expected favorite after first toggle")
	}
	got, _ = s.ToggleFavorite(m.ID)
	if got.IsFavorite {
		t.Error("expected not favorite after second toggle")
	}
}

func TestUnknownID(t *testing.T) {
	kv := store.NewMemoryKV()
	s := newTestStore(t, kv)
	s.Load()

	if _, err := s.SetFavorite("missing", true); !errors.Is(err, ErrMealNotFound) {
		t.Errorf("set favorite err = %v, want ErrMealNotFound", err)
	}
	if _, err := s.ToggleFavorite("missing"); !errors.Is(err, ErrMealNotFound) {
		t.Errorf("toggle err = %v, want ErrMealNotFound", err)
	}
	if _, err := s.Get("missing"); !errors.Is(err, ErrMealNotFound) {
		t.Errorf("get err = %v, want ErrMealNotFound", err)
	}
	if _, ok, _ := kv.Get(DefaultKey); ok {
		t.Error("failed lookup should not persist anything")
	}
}

func TestSaveFailureIsSwallowed(t *testing.T) {
	kv := &failingKV{MemoryKV: store.NewMemoryKV(), setErr: errors.New("read-only")}
	s := newTestStore(t, kv)
	s.Load()

	created, err := s.Add(model.Meal{Name: "Soup"})
	if err != nil {
		t.Fatalf("add should not surface write failure: %v", err)
	}
	if _, err := s.Get(created.ID); err != nil {
		t.Errorf("meal missing from memory: %v", err)
	}
	if _, ok, _ := kv.MemoryKV.Get(DefaultKey); ok {
		t.Error("expected nothing persisted")
	}
}

func TestSaveOverwrites(t *testing.T) {
	kv := store.NewMemoryKV()
	s := newTestStore(t, kv)

	s.Save([]model.Meal{{ID: "a", Name: "One", Date: testNow, MealTime: model.MealTimeLunch}})
	s.Save([]model.Meal{{ID: "b", Name: "Two", Date: testNow, MealTime: model.MealTimeDinner}})

	data, _, _ := kv.Get(DefaultKey)
	got, _, err := Decode(data, testNow)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("saved = %+v, want only b", got)
	}
}

func TestStoreOverSQLite(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	kv := store.NewKVStore(db)

	s := newTestStore(t, kv, WithKey("meals:test"))
	if res := s.Load(); res.Outcome != OutcomeFresh {
		t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeFresh)
	}
	created, err := s.Add(model.Meal{Name: "Ramen", MealTime: model.MealTimeDinner})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	reloaded := newTestStore(t, kv, WithKey("meals:test"))
	res := reloaded.Load()
	if res.Outcome != OutcomeRestored {
		t.Fatalf("reload outcome = %q, want %q", res.Outcome, OutcomeRestored)
	}
	got, err := reloaded.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Ramen" {
		t.Errorf("name = %q, want %q", got.Name, "Ramen")
	}
}

func TestExportImport(t *testing.T) {
	src := newTestStore(t, store.NewMemoryKV())
	src.Load()
	if _, err := src.SetFavorite(Seed(testNow)[0].ID, true); err != nil {
		t.Fatalf("set favorite: %v", err)
	}
	data, err := src.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	kv := store.NewMemoryKV()
	dst := newTestStore(t, kv)
	dst.Load()
	if _, err := dst.Add(model.Meal{Name: "Leftovers"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	n, err := dst.Import(data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != len(seedMeals) {
		t.Errorf("imported %d, want %d", n, len(seedMeals))
	}
	if diff := cmp.Diff(src.Meals(), dst.Meals()); diff != "" {
		t.Errorf("imported collection mismatch (-want +got):\n%s", diff)
	}
	if _, err := dst.Get("id-1"); !errors.Is(err, ErrMealNotFound) {
		t.Errorf("old meal still present after import, err = %v", err)
	}

	reloaded := newTestStore(t, kv)
	if res := reloaded.Load(); res.Outcome != OutcomeRestored || len(res.Meals) != len(seedMeals) {
		t.Errorf("reload after import = %q with %d meals", res.Outcome, len(res.Meals))
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	s := newTestStore(t, store.NewMemoryKV())
	s.Load()
	before := s.Meals()

	if _, err := s.Import([]byte(`{"not":"a list"}`)); err == nil {
		t.Fatal("expected error importing non-array")
	}
	if diff := cmp.Diff(before, s.Meals()); diff != "" {
		t.Errorf("collection changed after failed import (-want +got):\n%s", diff)
	}
}
