package store

import "context"

// FoodRepository handles food entry storage. Update and Delete are scoped to the
// owning user the same way the row-level security policy scopes them.
type FoodRepository interface {
	// GetByDate returns the user's entries for date, newest created first. No
	// entries is an empty slice, not an error.
	GetByDate(ctx context.Context, userID, date string) ([]FoodEntry, error)
	// Add stores entry and returns the stored row with its id and timestamps.
	Add(ctx context.Context, entry FoodEntry) (*FoodEntry, error)
	// Update merges patch into the entry with id. It returns (nil, nil) when no
	// row matched; callers must check.
	Update(ctx context.Context, userID string, id int64, patch FoodPatch) (*FoodEntry, error)
	// Delete removes the entry with id. Deleting a missing id is not an error.
	Delete(ctx context.Context, userID string, id int64) error
}
