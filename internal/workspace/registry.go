// Package workspace keeps one auth gateway, session controller and food
// tracker per browser, keyed by the workspace id stored in its session cookie.
package workspace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jw6ventures/foodlog/internal/auth"
	"github.com/jw6ventures/foodlog/internal/images"
	"github.com/jw6ventures/foodlog/internal/session"
	"github.com/jw6ventures/foodlog/internal/store"
	"github.com/jw6ventures/foodlog/internal/tracker"
)

const defaultMaxWorkspaces = 10000

// Deps are shared by every workspace.
type Deps struct {
	Auth     auth.Backend
	AuthOpts auth.Options
	Foods    store.FoodRepository
	Images   images.Store
	Location *time.Location
	Now      func() time.Time
	Logger   logrus.FieldLogger
}

// Workspace is one browser's state.
type Workspace struct {
	ID         string
	Gateway    *auth.Gateway
	Controller *session.Controller
	Tracker    *tracker.Tracker

	cancel context.CancelFunc
	ready  chan struct{}

	mu         sync.Mutex
	lastAccess time.Time
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastAccess = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastAccess
}

func (w *Workspace) close() {
	w.cancel()
	w.Controller.Close()
}

// Registry maps workspace ids to live workspaces and drops idle ones.
type Registry struct {
	deps       Deps
	idleTTL    time.Duration
	maxEntries int
	now        func() time.Time
	log        logrus.FieldLogger

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

func NewRegistry(deps Deps, idleTTL time.Duration) *Registry {
	r := &Registry{
		deps:       deps,
		idleTTL:    idleTTL,
		maxEntries: defaultMaxWorkspaces,
		now:        deps.Now,
		log:        deps.Logger,
		workspaces: make(map[string]*Workspace),
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	return r
}

// Resolve returns the workspace for id, creating it when it does not exist.
// A new workspace restores its session from tokens and loads today's entries
// before it is returned. An unknown or malformed id gets a fresh uuid.
func (r *Registry) Resolve(ctx context.Context, id string, tokens auth.Tokens) *Workspace {
	ws, created := r.getOrCreate(id)
	if created {
		if err := ws.Controller.Start(ctx, tokens); err != nil {
			r.log.WithError(err).WithField("workspace_id", ws.ID).Warn("session restore failed")
		}
		close(ws.ready)
	} else {
		select {
		case <-ws.ready:
		case <-ctx.Done():
		}
	}
	return ws
}

// Get returns a live workspace without creating one.
func (r *Registry) Get(id string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[id]
	if ok {
		ws.touch(r.now())
	}
	return ws, ok
}

// Drop releases a workspace. It reports whether id was live.
func (r *Registry) Drop(id string) bool {
	r.mu.Lock()
	ws, ok := r.workspaces[id]
	delete(r.workspaces, id)
	r.mu.Unlock()

	if ok {
		ws.close()
	}
	return ok
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Sweep drops workspaces idle for longer than the TTL and returns how many it dropped.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var stale []*Workspace
	for id, ws := range r.workspaces {
		if ws.idleSince().Before(cutoff) {
			stale = append(stale, ws)
			delete(r.workspaces, id)
		}
	}
	r.mu.Unlock()

	for _, ws := range stale {
		ws.close()
	}
	return len(stale)
}

// Run sweeps idle workspaces every half TTL until ctx is done, then closes
// every remaining workspace.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idleTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.log.WithField("dropped", n).Debug("swept idle workspaces")
			}
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	all := r.workspaces
	r.workspaces = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, ws := range all {
		ws.close()
	}
}

func (r *Registry) getOrCreate(id string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if ws, ok := r.workspaces[id]; ok {
		ws.touch(now)
		return ws, false
	}
	if _, err := uuid.Parse(id); err != nil || id == "" {
		id = uuid.NewString()
	}
	if len(r.workspaces) >= r.maxEntries {
		r.evictOldest()
	}

	ws := r.build(id)
	ws.touch(now)
	r.workspaces[id] = ws
	return ws, true
}

func (r *Registry) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, ws := range r.workspaces {
		if seen := ws.idleSince(); oldestID == "" || seen.Before(oldest) {
			oldestID, oldest = id, seen
		}
	}
	if ws, ok := r.workspaces[oldestID]; ok {
		delete(r.workspaces, oldestID)
		go ws.close()
	}
}

func (r *Registry) build(id string) *Workspace {
	log := r.log.WithField("workspace_id", id)

	authOpts := r.deps.AuthOpts
	authOpts.Logger = log
	gw := auth.NewGateway(r.deps.Auth, authOpts)

	tr := tracker.New(r.deps.Foods, r.deps.Images, gw, tracker.Options{
		Location: r.deps.Location,
		Now:      r.deps.Now,
		Logger:   log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go gw.AutoRefresh(ctx)

	return &Workspace{
		ID:         id,
		Gateway:    gw,
		Controller: session.NewController(gw, tr, log),
		Tracker:    tr,
		cancel:     cancel,
		ready:      make(chan struct{}),
	}
}
