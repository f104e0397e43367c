package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jw6ventures/foodlog/internal/auth"
	"github.com/jw6ventures/foodlog/internal/images"
	"github.com/jw6ventures/foodlog/internal/store"
	"github.com/jw6ventures/foodlog/internal/supabase"
)

type memRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   []store.FoodEntry
	clock  time.Time
	calls  int
	tokens []string

	addErr    error
	deleteErr error

	// When set, GetByDate signals getStarted and waits on release.
	getStarted chan struct{}
	release    chan struct{}
}

func newMemRepo() *memRepo {
	return &memRepo{clock: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)}
}

func (r *memRepo) seen(ctx context.Context) {
	r.calls++
	r.tokens = append(r.tokens, supabase.AccessTokenFromContext(ctx))
}

func (r *memRepo) GetByDate(ctx context.Context, userID, date string) ([]store.FoodEntry, error) {
	r.mu.Lock()
	r.seen(ctx)
	started, release := r.getStarted, r.release
	r.mu.Unlock()

	if started != nil {
		close(started)
		<-release
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := []store.FoodEntry{}
	for _, row := range r.rows {
		if row.UserID == userID && row.Date == date {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) Add(ctx context.Context, entry store.FoodEntry) (*store.FoodEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen(ctx)
	if r.addErr != nil {
		return nil, r.addErr
	}
	r.nextID++
	r.clock = r.clock.Add(time.Minute)
	entry.ID = r.nextID
	entry.CreatedAt = r.clock
	entry.UpdatedAt = r.clock
	r.rows = append(r.rows, entry)
	out := entry
	return &out, nil
}

func (r *memRepo) Update(ctx context.Context, userID string, id int64, patch store.FoodPatch) (*store.FoodEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen(ctx)
	for i, row := range r.rows {
		if row.ID != id || row.UserID != userID {
			continue
		}
		if patch.Name != nil {
			row.Name = *patch.Name
		}
		if patch.SetCalories {
			row.Calories = patch.Calories
		}
		if patch.ImageURL != nil {
			row.ImageURL = patch.ImageURL
		}
		r.clock = r.clock.Add(time.Minute)
		row.UpdatedAt = r.clock
		r.rows[i] = row
		out := row
		return &out, nil
	}
	return nil, nil
}

func (r *memRepo) Delete(ctx context.Context, userID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen(ctx)
	if r.deleteErr != nil {
		return r.deleteErr
	}
	for i, row := range r.rows {
		if row.ID == id && row.UserID == userID {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			break
		}
	}
	return nil
}

func (r *memRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeImages struct {
	mu      sync.Mutex
	uploads []images.File
	err     error
}

func (f *fakeImages) Upload(ctx context.Context, file images.File) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, file)
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example/foods/" + file.Name, nil
}

type fakeSessions struct {
	mu         sync.Mutex
	sess       *auth.Session
	signOutErr error
}

func signedIn(userID string) *fakeSessions {
	return &fakeSessions{sess: &auth.Session{UserID: userID, Email: userID + "@example.com", AccessToken: "token-" + userID}}
}

func (f *fakeSessions) Session() *auth.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sess == nil {
		return nil
	}
	cp := *f.sess
	return &cp
}

func (f *fakeSessions) set(sess *auth.Session) {
	f.mu.Lock()
	f.sess = sess
	f.mu.Unlock()
}

func (f *fakeSessions) SignOut(ctx context.Context) error {
	f.set(nil)
	return f.signOutErr
}

var errDial = errors.New("dial tcp: connection refused")
