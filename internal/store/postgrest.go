package store

import (
	"context"
	"time"

	"github.com/jw6ventures/foodlog/internal/supabase"
)

const foodsTable = "foods"

// PostgRESTFoods implements FoodRepository over the Supabase table API. The
// caller's access token must be attached to ctx with supabase.WithAccessToken
// so the row-level security policies see the right user.
type PostgRESTFoods struct {
	client *supabase.Client
	now    func() time.Time
}

func NewPostgRESTFoods(client *supabase.Client) *PostgRESTFoods {
	return &PostgRESTFoods{client: client, now: time.Now}
}

func (r *PostgRESTFoods) GetByDate(ctx context.Context, userID, date string) ([]FoodEntry, error) {
	entries := []FoodEntry{}
	err := r.client.From(foodsTable).
		Select("*").
		Eq("user_id", userID).
		Eq("date", date).
		Order("created_at", false).
		Execute(ctx, &entries)
	if err != nil {
		return nil, persistenceError("list foods", err)
	}
	return entries, nil
}

func (r *PostgRESTFoods) Add(ctx context.Context, entry FoodEntry) (*FoodEntry, error) {
	var rows []FoodEntry
	err := r.client.From(foodsTable).
		Select("*").
		ExecuteInsert(ctx, []foodRow{newFoodRow(entry)}, &rows)
	if err != nil {
		return nil, persistenceError("add food", err)
	}
	if len(rows) == 0 {
		return nil, &PersistenceError{Op: "add food", Message: "insert returned no rows"}
	}
	return &rows[0], nil
}

func (r *PostgRESTFoods) Update(ctx context.Context, userID string, id int64, patch FoodPatch) (*FoodEntry, error) {
	cols := patch.columns()
	cols["updated_at"] = r.now().UTC()

	var rows []FoodEntry
	err := r.client.From(foodsTable).
		Select("*").
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteUpdate(ctx, cols, &rows)
	if err != nil {
		return nil, persistenceError("update food", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *PostgRESTFoods) Delete(ctx context.Context, userID string, id int64) error {
	err := r.client.From(foodsTable).
		Eq("id", id).
		Eq("user_id", userID).
		ExecuteDelete(ctx)
	return persistenceError("delete food", err)
}
