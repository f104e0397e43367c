package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/foodlog/internal/auth"
	"github.com/jw6ventures/foodlog/internal/images"
	"github.com/jw6ventures/foodlog/internal/store"
	"github.com/jw6ventures/foodlog/internal/validation"
)

var trackerNow = time.Date(2026, 10, 15, 18, 30, 0, 0, time.UTC)

func newTestTracker(repo *memRepo, imgs *fakeImages, sessions *fakeSessions) *Tracker {
	return New(repo, imgs, sessions, Options{Now: func() time.Time { return trackerNow }})
}

func intPtr(v int) *int { return &v }

func TestAddOrUpdateRejectsInvalidNamesWithoutRepository(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind validation.Kind
	}{
		{name: "empty", in: "", kind: validation.KindEmpty},
		{name: "whitespace", in: "   \t", kind: validation.KindEmpty},
		{name: "too long", in: strings.Repeat("a", 101), kind: validation.KindTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			tr := newTestTracker(repo, &fakeImages{}, signedIn("u1"))

			_, err := tr.AddOrUpdate(context.Background(), Form{Name: tt.in})
			var vErr *validation.Error
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.kind, vErr.Kind)
			assert.Zero(t, repo.callCount())
			assert.Equal(t, Idle, tr.State())
		})
	}
}

func TestAddOrUpdateRejectsCaloriesOutOfRange(t *testing.T) {
	for _, cal := range []int{-1, 10001, 99999} {
		repo := newMemRepo()
		tr := newTestTracker(repo, &fakeImages{}, signedIn("u1"))

		_, err := tr.AddOrUpdate(context.Background(), Form{Name: "Apple", Calories: intPtr(cal)})
		assert.Equal(t, "Calories must be between 0 and 10000", Message(err))
		assert.Zero(t, repo.callCount())
	}
}

func TestAddOrUpdateRejectsLargeImageBeforeUpload(t *testing.T) {
	repo := newMemRepo()
	imgs := &fakeImages{}
	tr := newTestTracker(repo, imgs, signedIn("u1"))

	big := &images.File{Name: "big.jpg", Data: make([]byte, 5*1024*1024+1)}
	_, err := tr.AddOrUpdate(context.Background(), Form{Name: "Apple", Image: big})
	assert.Equal(t, "Image size must be less than 5MB", Message(err))
	assert.Empty(t, imgs.uploads)
	assert.Zero(t, repo.callCount())
}

func TestDuplicateRejectedWhenCreatingButNotWhenEditing(t *testing.T) {
	repo := newMemRepo()
	tr := newTestTracker(repo, &fakeImages{}, signedIn("u1"))
	ctx := context.Background()

	apple, err := tr.AddOrUpdate(ctx, Form{Name: "Apple", Calories: intPtr(95)})
	require.NoError(t, err)

	_, err = tr.AddOrUpdate(ctx, Form{Name: "apple"})
	assert.True(t, errors.Is(err, ErrDuplicateEntry))
	assert.Equal(t, "You already logged this food today!", Message(err))
	assert.Len(t, tr.Entries(), 1)

	edited, err := tr.AddOrUpdate(ctx, Form{Name: "apple", Calories: intPtr(80), EditingID: apple.ID})
	require.NoError(t, err)
	assert.Equal(t, apple.ID, edited.ID)
	assert.Equal(t, "apple", edited.Name)

	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 80, *entries[0].Calories)
}

func TestAddPrependsAndStats(t *testing.T) {
	repo := newMemRepo()
	tr := newTestTracker(repo, &fakeImages{}, signedIn("u1"))
	ctx := context.Background()

	for _, f := range []Form{
		{Name: "Toast", Calories: intPtr(200)},
		{Name: "Water"},
		{Name: "Yogurt", Calories: intPtr(150)},
	} {
		_, err := tr.AddOrUpdate(ctx, f)
		require.NoError(t, err)
	}

	entries := tr.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "Yogurt", entries[0].Name)
	assert.Equal(t, "Toast", entries[2].Name)
	assert.Nil(t, entries[1].Calories)
	assert.Equal(t, Stats{TotalCalories: 350, Count: 3}, tr.Stats())
}

func TestAddRoundTripsThroughRepository(t *testing.T) {
	repo := newMemRepo()
	tr := newTestTracker(repo, &fakeImages{}, signedIn("u1"))
	ctx := context.Background()

	added, err := tr.AddOrUpdate(ctx, Form{Name: "  Banana ", Calories: intPtr(105)})
	require.NoError(t, err)
	assert.NotZero(t, added.ID)
	assert.Equal(t, "Banana", added.Name)
	assert.Equal(t, "2026-10-15", added.Date)
	assert.Equal(t, "u1", added.UserID)

	stored, err := repo.GetByDate(ctx, "u1", "2026-10-15")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, *added, stored[0])
	assert.Equal(t, "token-u1", repo.tokens[0])
}

func TestTodayUsesConfiguredLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	tr := New(newMemRepo(), &fakeImages{}, signedIn("u1"), Options{Location: tokyo, Now: func() time.Time { return trackerNow }})
	assert.Equal(t, "2026-10-16", tr.Today())
	assert.Equal(t, "2026-10-15", newTestTracker(newMemRepo(), &fakeImages{}, signedIn("u1")).Today())
}

func TestImageUploadedAndAttached(t *testing.T) {
	repo := newMemRepo()
	imgs := &fakeImages{}
	tr := newTestTracker(repo, imgs, signedIn("u1"))

	entry, err := tr.AddOrUpdate(context.Background(), Form{Name: "Salad", Image: &images.File{Name: "salad.jpg", Data: []byte("jpeg")}})
	require.NoError(t, err)
	require.NotNil(t, entry.ImageURL)
	assert.Equal(t, "https://cdn.example/foods/salad.jpg", *entry.ImageURL)
	assert.Len(t, imgs.uploads, 1)
}

func TestUploadFailureAbortsBeforePersistence(t *testing.T) {
	repo := newMemRepo()
	imgs := &fakeImages{err: &images.UploadError{Key: "foods/1_salad.jpg", Message: "The resource already exists"}}
	tr := newTestTracker(repo, imgs, signedIn("u1"))

	_, err := tr.AddOrUpdate(context.Background(), Form{Name: "Salad", Image: &images.File{Name: "salad.jpg", Data: []byte("jpeg")}})
	assert.Equal(t, "Error uploading image: The resource already exists", Message(err))
	assert.Zero(t, repo.callCount())
	assert.Empty(t, tr.Entries())
}

func TestDuplicateCheckedBeforeUpload(t *testing.T) {
	repo := newMemRepo()
	imgs := &fakeImages{}
	tr := newTestTracker(repo, imgs, signedIn("u1"))
	_, err := tr.AddOrUpdate(context.Background(), Form{Name: "Salad"})
	require.NoError(t, err)

	_, err = tr.AddOrUpdate(context.Background(), Form{Name: "SALAD", Image: &images.File{Name: "salad.jpg", Data: []byte("jpeg")}})
	assert.True(t, errors.Is(err, ErrDuplicateEntry))
	assert.Empty(t, imgs.uploads)
}

func TestPersistenceFailureLeavesListIntact(t *testing.T) {
	repo := newMemRepo()
	tr := newTestTracker(repo, &fakeImages{}, signedIn("u1"))
	_, err := tr.AddOrUpdate(context.Background(), Form{Name: "Toast"})
	require.NoError(t, err)

	repo.addErr = &store.PersistenceError{Op: "add food", Message: "permission denied for table foods"}
	_, err = tr.AddOrUpdate(context.Background(), Form{Name: "Jam"})
	assert.Equal(t, "Error adding food: permission denied for table foods", Message(err))
	assert.Len(t, tr.Entries(), 1)
	assert.Equal(t, Idle, tr.State())
}

func TestUpdateOfVanishedEntry(t *testing.T) {
	repo := newMemRepo()
	tr := newTestTracker(repo, &fakeImages{}, signedIn("u1"))
	entry, err := tr.AddOrUpdate(context.Background(), Form{Name: "Toast"})
	require.NoError(t, err)
	repo.rows = nil

	_, err = tr.AddOrUpdate(context.Background(), Form{Name: "Toast", EditingID: entry.ID})
	assert.True(t, errors.Is(err, ErrEntryNotFound))
	assert.Len(t, tr.Entries(), 1)
}

func TestRemoveDropsIDRegardlessOfBackend(t *testing.T) {
	repo := newMemRepo()
	tr := newTestTracker(repo, &fakeImages{}, signedIn("u1"))
	ctx := context.Background()
	a, err := tr.AddOrUpdate(ctx, Form{Name: "A"})
	require.NoError(t, err)
	b, err := tr.AddOrUpdate(ctx, Form{Name: "B"})
	require.NoError(t, err)

	// The row is already gone from the store.
	repo.rows = repo.rows[:1]
	require.NoError(t, tr.Remove(ctx, b.ID))

	_, found := tr.Entry(b.ID)
	assert.False(t, found)
	_, found = tr.Entry(a.ID)
	assert.True(t, found)
	assert.Equal(t, 1, tr.Stats().Count)
}

func TestRemoveDropsEntryEvenWhenDeleteFails(t *testing.T) {
	repo := newMemRepo()
	tr := newTestTracker(repo, &fakeImages{}, signedIn("u1"))
	a, err := tr.AddOrUpdate(context.Background(), Form{Name: "A"})
	require.NoError(t, err)

	repo.deleteErr = &store.PersistenceError{Op: "delete food", Message: "connection refused", Err: errDial}
	err = tr.Remove(context.Background(), a.ID)
	assert.Equal(t, "Error deleting food: connection refused", Message(err))
	_, found := tr.Entry(a.ID)
	assert.False(t, found)
	assert.Equal(t, 0, tr.Stats().Count)
	assert.Equal(t, Idle, tr.State())
}

func TestSignOutClearsSessionAndList(t *testing.T) {
	sessions := signedIn("u1")
	tr := newTestTracker(newMemRepo(), &fakeImages{}, sessions)
	_, err := tr.AddOrUpdate(context.Background(), Form{Name: "A"})
	require.NoError(t, err)

	require.NoError(t, tr.SignOut(context.Background()))
	assert.Nil(t, sessions.Session())
	assert.Empty(t, tr.Entries())
	assert.Equal(t, Unauthenticated, tr.State())

	_, err = tr.AddOrUpdate(context.Background(), Form{Name: "B"})
	assert.True(t, errors.Is(err, ErrNotAuthenticated))
}

func TestLoadReplacesList(t *testing.T) {
	repo := newMemRepo()
	repo.rows = []store.FoodEntry{
		{ID: 1, UserID: "u1", Name: "Old", Date: "2026-10-14"},
		{ID: 2, UserID: "u1", Name: "Eggs", Date: "2026-10-15", CreatedAt: trackerNow.Add(-2 * time.Hour)},
		{ID: 3, UserID: "u1", Name: "Coffee", Date: "2026-10-15", CreatedAt: trackerNow.Add(-time.Hour)},
		{ID: 4, UserID: "u2", Name: "Other", Date: "2026-10-15"},
	}
	tr := newTestTracker(repo, &fakeImages{}, signedIn("u1"))

	require.NoError(t, tr.Load(context.Background()))
	require.NoError(t, tr.Load(context.Background()))

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Coffee", entries[0].Name)
	assert.Equal(t, "Eggs", entries[1].Name)
}

func TestOverlappingOperationIsRejected(t *testing.T) {
	repo := newMemRepo()
	repo.getStarted = make(chan struct{})
	repo.release = make(chan struct{})
	tr := newTestTracker(repo, &fakeImages{}, signedIn("u1"))

	done := make(chan error, 1)
	go func() { done <- tr.Load(context.Background()) }()
	<-repo.getStarted

	assert.Equal(t, Busy, tr.State())
	_, err := tr.AddOrUpdate(context.Background(), Form{Name: "Apple"})
	assert.True(t, errors.Is(err, ErrBusy))
	assert.True(t, errors.Is(tr.Remove(context.Background(), 1), ErrBusy))

	close(repo.release)
	require.NoError(t, <-done)
	assert.Equal(t, Idle, tr.State())
}

func TestAuthChangeDuringFetchDoesNotCorruptList(t *testing.T) {
	repo := newMemRepo()
	repo.rows = []store.FoodEntry{
		{ID: 1, UserID: "u1", Name: "Eggs", Date: "2026-10-15"},
		{ID: 2, UserID: "u1", Name: "Coffee", Date: "2026-10-15"},
	}
	repo.getStarted = make(chan struct{})
	repo.release = make(chan struct{})
	sessions := signedIn("u1")
	tr := newTestTracker(repo, &fakeImages{}, sessions)

	done := make(chan error, 1)
	go func() { done <- tr.Load(context.Background()) }()
	<-repo.getStarted

	// A token refresh lands while the fetch is in flight.
	sessions.set(&auth.Session{UserID: "u1", Email: "u1@example.com", AccessToken: "refreshed"})

	close(repo.release)
	require.NoError(t, <-done)
	assert.Len(t, tr.Entries(), 2)

	// Reload after the refresh: replaced, not duplicated.
	repo.getStarted, repo.release = nil, nil
	require.NoError(t, tr.Load(context.Background()))
	assert.Len(t, tr.Entries(), 2)
	assert.Equal(t, "refreshed", repo.tokens[len(repo.tokens)-1])
}

func TestUserSwitchDuringFetchDiscardsResult(t *testing.T) {
	repo := newMemRepo()
	repo.rows = []store.FoodEntry{{ID: 1, UserID: "u1", Name: "Eggs", Date: "2026-10-15"}}
	repo.getStarted = make(chan struct{})
	repo.release = make(chan struct{})
	sessions := signedIn("u1")
	tr := newTestTracker(repo, &fakeImages{}, sessions)

	done := make(chan error, 1)
	go func() { done <- tr.Load(context.Background()) }()
	<-repo.getStarted

	sessions.set(&auth.Session{UserID: "u2", AccessToken: "token-u2"})
	close(repo.release)

	err := <-done
	assert.True(t, errors.Is(err, ErrSessionChanged))
	assert.Empty(t, tr.Entries())
}

func TestSignOutDuringFetchDiscardsResult(t *testing.T) {
	repo := newMemRepo()
	repo.rows = []store.FoodEntry{{ID: 1, UserID: "u1", Name: "Eggs", Date: "2026-10-15"}}
	repo.getStarted = make(chan struct{})
	repo.release = make(chan struct{})
	tr := newTestTracker(repo, &fakeImages{}, signedIn("u1"))

	done := make(chan error, 1)
	go func() { done <- tr.Load(context.Background()) }()
	<-repo.getStarted

	require.NoError(t, tr.SignOut(context.Background()))
	close(repo.release)

	assert.True(t, errors.Is(<-done, ErrSessionChanged))
	assert.Empty(t, tr.Entries())
}

func TestEntriesAreCopies(t *testing.T) {
	tr := newTestTracker(newMemRepo(), &fakeImages{}, signedIn("u1"))
	_, err := tr.AddOrUpdate(context.Background(), Form{Name: "A", Calories: intPtr(10)})
	require.NoError(t, err)

	entries := tr.Entries()
	*entries[0].Calories = 9999
	entries[0].Name = "mutated"

	fresh := tr.Entries()
	assert.Equal(t, 10, *fresh[0].Calories)
	assert.Equal(t, "A", fresh[0].Name)
}

func TestNotAuthenticated(t *testing.T) {
	tr := newTestTracker(newMemRepo(), &fakeImages{}, &fakeSessions{})
	assert.Equal(t, Unauthenticated, tr.State())
	assert.True(t, errors.Is(tr.Load(context.Background()), ErrNotAuthenticated))
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "validation", err: validation.FoodName("").Err(), want: "Please enter a food name"},
		{name: "duplicate", err: ErrDuplicateEntry, want: "You already logged this food today!"},
		{name: "busy", err: ErrBusy, want: "Please wait for the current action to finish"},
		{name: "signed out", err: ErrNotAuthenticated, want: "Please sign in to continue"},
		{name: "auth", err: &auth.Error{Op: "sign in", Status: 400, Message: "Invalid login credentials"}, want: "Invalid login credentials"},
		{name: "fetch", err: &store.PersistenceError{Op: "list foods", Message: "JWT expired"}, want: "Error fetching foods: JWT expired"},
		{name: "update", err: &store.PersistenceError{Op: "update food", Message: "boom"}, want: "Error updating food: boom"},
		{name: "unknown", err: errDial, want: "An error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}
