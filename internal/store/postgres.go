package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Open connects to PostgreSQL through the pgx database/sql driver.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// date is cast to text so rows scan into the ISO string the table API returns.
const foodColumns = `id, user_id, name, calories, date::text AS date, image_url, created_at, updated_at`

// PostgresFoods implements FoodRepository against the foods table directly.
type PostgresFoods struct {
	db *sqlx.DB
}

func NewPostgresFoods(db *sqlx.DB) *PostgresFoods {
	return &PostgresFoods{db: db}
}

func (r *PostgresFoods) GetByDate(ctx context.Context, userID, date string) ([]FoodEntry, error) {
	defer observeDB(ctx, "db.foods.get_by_date")()

	entries := []FoodEntry{}
	err := r.db.SelectContext(ctx, &entries,
		`SELECT `+foodColumns+` FROM foods WHERE user_id = $1 AND date = $2::date ORDER BY created_at DESC`,
		userID, date)
	if err != nil {
		return nil, persistenceError("list foods", err)
	}
	return entries, nil
}

func (r *PostgresFoods) Add(ctx context.Context, entry FoodEntry) (*FoodEntry, error) {
	defer observeDB(ctx, "db.foods.add")()

	row := newFoodRow(entry)
	var stored FoodEntry
	err := r.db.GetContext(ctx, &stored,
		`INSERT INTO foods (user_id, name, calories, date, image_url)
VALUES ($1, $2, $3, COALESCE(NULLIF($4, '')::date, CURRENT_DATE), $5)
RETURNING `+foodColumns,
		row.UserID, row.Name, row.Calories, row.Date, row.ImageURL)
	if err != nil {
		return nil, persistenceError("add food", err)
	}
	return &stored, nil
}

func (r *PostgresFoods) Update(ctx context.Context, userID string, id int64, patch FoodPatch) (*FoodEntry, error) {
	defer observeDB(ctx, "db.foods.update")()

	cols := patch.columns()
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names)+1)
	args := make([]any, 0, len(names)+2)
	for _, name := range names {
		args = append(args, cols[name])
		sets = append(sets, fmt.Sprintf("%s = $%d", name, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id, userID)

	query := fmt.Sprintf(`UPDATE foods SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), foodColumns)

	var updated FoodEntry
	if err := r.db.GetContext(ctx, &updated, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, persistenceError("update food", err)
	}
	return &updated, nil
}

func (r *PostgresFoods) Delete(ctx context.Context, userID string, id int64) error {
	defer observeDB(ctx, "db.foods.delete")()

	_, err := r.db.ExecContext(ctx, `DELETE FROM foods WHERE id = $1 AND user_id = $2`, id, userID)
	return persistenceError("delete food", err)
}
