// Package tracker implements the food log workflow for one signed-in browser:
// today's entries, add/edit/delete with optional photos, and daily totals.
package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jw6ventures/foodlog/internal/auth"
	"github.com/jw6ventures/foodlog/internal/images"
	"github.com/jw6ventures/foodlog/internal/metrics"
	"github.com/jw6ventures/foodlog/internal/store"
	"github.com/jw6ventures/foodlog/internal/supabase"
	"github.com/jw6ventures/foodlog/internal/validation"
)

// State is the tracker's workflow state.
type State int

const (
	Unauthenticated State = iota
	Idle
	Busy
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	default:
		return "unauthenticated"
	}
}

var (
	ErrBusy             = errors.New("another operation is in progress")
	ErrNotAuthenticated = errors.New("not signed in")
	ErrDuplicateEntry   = errors.New("food already logged today")
	ErrEntryNotFound    = errors.New("food entry not found")
	// ErrSessionChanged is returned when the session ended or switched user
	// while an operation was in flight; its result is discarded.
	ErrSessionChanged = errors.New("session changed during operation")
)

// Sessions is the tracker's view of the auth gateway.
type Sessions interface {
	Session() *auth.Session
	SignOut(ctx context.Context) error
}

// Form is a submitted add or edit.
type Form struct {
	Name     string
	Calories *int
	Image    *images.File
	// EditingID is the entry being edited, or zero to create a new one.
	EditingID int64
}

// Stats are the totals shown above the list.
type Stats struct {
	TotalCalories int
	Count         int
}

// Options configure a Tracker.
type Options struct {
	Location *time.Location
	Now      func() time.Time
	Logger   logrus.FieldLogger
}

// Tracker owns one browser's in-memory food list. A single mutex guards the
// list and busy flag; backend calls run outside it.
type Tracker struct {
	repo     store.FoodRepository
	images   images.Store
	sessions Sessions
	loc      *time.Location
	now      func() time.Time
	log      logrus.FieldLogger

	mu         sync.Mutex
	busy       bool
	generation uint64
	entries    []store.FoodEntry
}

func New(repo store.FoodRepository, imgs images.Store, sessions Sessions, opts Options) *Tracker {
	t := &Tracker{
		repo:     repo,
		images:   imgs,
		sessions: sessions,
		loc:      opts.Location,
		now:      opts.Now,
		log:      opts.Logger,
	}
	if t.loc == nil {
		t.loc = time.UTC
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.log == nil {
		t.log = logrus.StandardLogger()
	}
	return t
}

// State reports the current workflow state.
func (t *Tracker) State() State {
	t.mu.Lock()
	busy := t.busy
	t.mu.Unlock()

	switch {
	case t.sessions.Session() == nil:
		return Unauthenticated
	case busy:
		return Busy
	default:
		return Idle
	}
}

// Now returns the current time in the tracker's location.
func (t *Tracker) Now() time.Time {
	return t.now().In(t.loc)
}

// Today returns the ISO date entries are logged under.
func (t *Tracker) Today() string {
	return t.Now().Format("2006-01-02")
}

// Entries returns a copy of the list, newest first.
func (t *Tracker) Entries() []store.FoodEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]store.FoodEntry, len(t.entries))
	for i, e := range t.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

// Entry returns a copy of the entry with id.
func (t *Tracker) Entry(id int64) (store.FoodEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.indexOf(id); i >= 0 {
		return cloneEntry(t.entries[i]), true
	}
	return store.FoodEntry{}, false
}

// Stats sums calories over the list, counting absent calories as zero.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Stats{Count: len(t.entries)}
	for _, e := range t.entries {
		stats.TotalCalories += e.CaloriesOrZero()
	}
	return stats
}

// Load replaces the list with today's entries from the store.
func (t *Tracker) Load(ctx context.Context) (err error) {
	defer func() { t.record("load", err) }()

	op, err := t.begin()
	if err != nil {
		return err
	}
	defer t.end()

	entries, err := t.repo.GetByDate(op.ctx(ctx), op.session.UserID, t.Today())
	if err != nil {
		return err
	}

	return t.apply(op, func() {
		t.entries = entries
	})
}

// AddOrUpdate validates form, uploads its image if any, and persists it. A
// created entry is prepended; an edited one is replaced in place. On any
// failure the list is left as it was.
func (t *Tracker) AddOrUpdate(ctx context.Context, form Form) (entry *store.FoodEntry, err error) {
	opName := "add"
	if form.EditingID != 0 {
		opName = "update"
	}
	defer func() { t.record(opName, err) }()

	name := strings.TrimSpace(form.Name)
	checks := []validation.Result{validation.FoodName(form.Name)}
	if form.Calories != nil {
		checks = append(checks, validation.Calories(*form.Calories))
	}
	if form.Image != nil {
		checks = append(checks, validation.ImageSize(form.Image.Size()))
	}
	if err := validation.First(checks...); err != nil {
		return nil, err
	}

	op, err := t.begin()
	if err != nil {
		return nil, err
	}
	defer t.end()

	today := t.Today()
	if form.EditingID == 0 && t.hasDuplicate(op.session.UserID, name, today) {
		return nil, ErrDuplicateEntry
	}

	ctx = op.ctx(ctx)

	var imageURL *string
	if form.Image != nil {
		url, err := t.images.Upload(ctx, *form.Image)
		if err != nil {
			return nil, err
		}
		imageURL = &url
	}

	var stored *store.FoodEntry
	if form.EditingID == 0 {
		stored, err = t.repo.Add(ctx, store.FoodEntry{
			UserID:   op.session.UserID,
			Name:     name,
			Calories: form.Calories,
			Date:     today,
			ImageURL: imageURL,
		})
	} else {
		stored, err = t.repo.Update(ctx, op.session.UserID, form.EditingID, store.FoodPatch{
			Name:        &name,
			SetCalories: true,
			Calories:    form.Calories,
			ImageURL:    imageURL,
		})
		if err == nil && stored == nil {
			err = ErrEntryNotFound
		}
	}
	if err != nil {
		if imageURL != nil {
			t.log.WithError(err).WithField("image_url", *imageURL).Warn("food not saved; uploaded image left orphaned")
		}
		return nil, err
	}

	err = t.apply(op, func() {
		if form.EditingID == 0 {
			t.entries = append([]store.FoodEntry{*stored}, t.entries...)
			return
		}
		if i := t.indexOf(form.EditingID); i >= 0 {
			t.entries[i] = *stored
		}
	})
	if err != nil {
		return nil, err
	}

	out := cloneEntry(*stored)
	return &out, nil
}

// Remove deletes the entry and drops it from the list whether or not the
// store confirmed it. A failed delete is still returned so it can be shown.
func (t *Tracker) Remove(ctx context.Context, id int64) (err error) {
	defer func() { t.record("remove", err) }()

	op, err := t.begin()
	if err != nil {
		return err
	}
	defer t.end()

	deleteErr := t.repo.Delete(op.ctx(ctx), op.session.UserID, id)

	applyErr := t.apply(op, func() {
		if i := t.indexOf(id); i >= 0 {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
		}
	})
	if deleteErr != nil {
		return deleteErr
	}
	return applyErr
}

// SignOut clears the list and the session. It is allowed while another
// operation is in flight; that operation's result is then discarded.
func (t *Tracker) SignOut(ctx context.Context) error {
	t.mu.Lock()
	t.entries = nil
	t.generation++
	t.mu.Unlock()

	err := t.sessions.SignOut(ctx)
	t.record("sign_out", err)
	return err
}

type operation struct {
	session    *auth.Session
	generation uint64
}

// ctx attaches the caller's access token for row-level security.
func (o operation) ctx(ctx context.Context) context.Context {
	return supabase.WithAccessToken(ctx, o.session.AccessToken)
}

func (t *Tracker) begin() (operation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.busy {
		return operation{}, ErrBusy
	}
	sess := t.sessions.Session()
	if sess == nil {
		return operation{}, ErrNotAuthenticated
	}
	t.busy = true
	return operation{session: sess, generation: t.generation}, nil
}

func (t *Tracker) end() {
	t.mu.Lock()
	t.busy = false
	t.mu.Unlock()
}

// apply runs mutate under the lock unless the list was reset or the session
// changed user since op began.
func (t *Tracker) apply(op operation, mutate func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.sessions.Session()
	if t.generation != op.generation || cur == nil || cur.UserID != op.session.UserID {
		return ErrSessionChanged
	}
	mutate()
	return nil
}

func (t *Tracker) hasDuplicate(userID, name, date string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.UserID == userID && e.Date == date && strings.EqualFold(strings.TrimSpace(e.Name), name) {
			return true
		}
	}
	return false
}

func (t *Tracker) indexOf(id int64) int {
	for i, e := range t.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (t *Tracker) record(op string, err error) {
	metrics.CountTrackerOperation(op, outcome(err))
}

func outcome(err error) string {
	var vErr *validation.Error
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &vErr), errors.Is(err, ErrDuplicateEntry), errors.Is(err, ErrBusy), errors.Is(err, ErrNotAuthenticated):
		return "rejected"
	default:
		return "error"
	}
}

func cloneEntry(e store.FoodEntry) store.FoodEntry {
	if e.Calories != nil {
		c := *e.Calories
		e.Calories = &c
	}
	if e.ImageURL != nil {
		u := *e.ImageURL
		e.ImageURL = &u
	}
	return e
}
