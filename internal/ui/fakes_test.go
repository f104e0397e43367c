package ui

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jw6ventures/foodlog/internal/images"
	"github.com/jw6ventures/foodlog/internal/store"
	"github.com/jw6ventures/foodlog/internal/supabase"
)

type stubAuth struct{}

func (stubAuth) SignUp(ctx context.Context, email, password, redirectTo string) (*supabase.AuthResponse, error) {
	return &supabase.AuthResponse{User: &supabase.User{ID: "new", Email: email}}, nil
}

func (stubAuth) SignInWithPassword(ctx context.Context, email, password string) (*supabase.AuthResponse, error) {
	if password != "secret1" {
		return nil, &supabase.APIError{Status: 400, Code: "invalid_grant", Message: "Invalid login credentials"}
	}
	return tokenResponse(email), nil
}

func (stubAuth) RefreshSession(ctx context.Context, refreshToken string) (*supabase.AuthResponse, error) {
	return nil, &supabase.APIError{Status: 400, Code: "invalid_grant", Message: "Invalid Refresh Token"}
}

func (stubAuth) ExchangeCode(ctx context.Context, code, verifier string) (*supabase.AuthResponse, error) {
	if code != "good-code" || verifier == "" {
		return nil, &supabase.APIError{Status: 400, Code: "invalid_grant", Message: "invalid flow state"}
	}
	return tokenResponse("provider@example.com"), nil
}

func (stubAuth) SignOut(ctx context.Context, accessToken string) error { return nil }

func (stubAuth) GetUser(ctx context.Context, accessToken string) (*supabase.User, error) {
	if email, ok := strings.CutPrefix(accessToken, "at-"); ok {
		return &supabase.User{ID: "user-" + email, Email: email}, nil
	}
	return nil, &supabase.APIError{Status: 401, Message: "invalid JWT"}
}

func (stubAuth) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	return "https://proj.supabase.co/auth/v1/authorize?provider=" + provider + "&code_challenge=" + codeChallenge
}

func tokenResponse(email string) *supabase.AuthResponse {
	return &supabase.AuthResponse{
		AccessToken:  "at-" + email,
		RefreshToken: "rt-" + email,
		ExpiresIn:    3600,
		User:         &supabase.User{ID: "user-" + email, Email: email},
	}
}

type memFoods struct {
	mu     sync.Mutex
	nextID int64
	rows   []store.FoodEntry
}

func (m *memFoods) GetByDate(ctx context.Context, userID, date string) ([]store.FoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.FoodEntry{}
	for _, r := range m.rows {
		if r.UserID == userID && r.Date == date {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memFoods) Add(ctx context.Context, e store.FoodEntry) (*store.FoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	e.CreatedAt = time.Now()
	m.rows = append(m.rows, e)
	return &e, nil
}

func (m *memFoods) Update(ctx context.Context, userID string, id int64, patch store.FoodPatch) (*store.FoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ID != id || r.UserID != userID {
			continue
		}
		if patch.Name != nil {
			r.Name = *patch.Name
		}
		if patch.SetCalories {
			r.Calories = patch.Calories
		}
		if patch.ImageURL != nil {
			r.ImageURL = patch.ImageURL
		}
		m.rows[i] = r
		return &r, nil
	}
	return nil, nil
}

func (m *memFoods) Delete(ctx context.Context, userID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ID == id && r.UserID == userID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

type memImages struct {
	mu      sync.Mutex
	uploads []images.File
}

func (m *memImages) Upload(ctx context.Context, f images.File) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, f)
	return "https://cdn.example/foods/" + f.Name, nil
}
