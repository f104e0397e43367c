package store

import "time"

// FoodEntry is one logged food item. Column names match the foods table.
type FoodEntry struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Calories  *int      `json:"calories" db:"calories"`
	Date      string    `json:"date" db:"date"`
	ImageURL  *string   `json:"image_url" db:"image_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CaloriesOrZero returns the calorie count, treating an absent value as zero.
func (e FoodEntry) CaloriesOrZero() int {
	if e.Calories == nil {
		return 0
	}
	return *e.Calories
}

// FoodPatch lists the fields an update changes. Nil fields are left untouched,
// except Calories, which is applied whenever SetCalories is true so a cleared
// form field clears the column.
type FoodPatch struct {
	Name        *string
	SetCalories bool
	Calories    *int
	ImageURL    *string
}

// Empty reports whether the patch changes nothing.
func (p FoodPatch) Empty() bool {
	return p.Name == nil && !p.SetCalories && p.ImageURL == nil
}

func (p FoodPatch) columns() map[string]any {
	cols := map[string]any{}
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.SetCalories {
		if p.Calories != nil {
			cols["calories"] = *p.Calories
		} else {
			cols["calories"] = nil
		}
	}
	if p.ImageURL != nil {
		cols["image_url"] = *p.ImageURL
	}
	return cols
}

// foodRow is the insert payload; the store assigns id and timestamps.
type foodRow struct {
	UserID   string  `json:"user_id" db:"user_id"`
	Name     string  `json:"name" db:"name"`
	Calories *int    `json:"calories" db:"calories"`
	Date     string  `json:"date" db:"date"`
	ImageURL *string `json:"image_url" db:"image_url"`
}

func newFoodRow(e FoodEntry) foodRow {
	return foodRow{
		UserID:   e.UserID,
		Name:     e.Name,
		Calories: e.Calories,
		Date:     e.Date,
		ImageURL: e.ImageURL,
	}
}
