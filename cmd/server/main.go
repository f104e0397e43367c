package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jw6ventures/foodlog/internal/auth"
	"github.com/jw6ventures/foodlog/internal/config"
	httpserver "github.com/jw6ventures/foodlog/internal/http"
	httperrors "github.com/jw6ventures/foodlog/internal/http/errors"
	"github.com/jw6ventures/foodlog/internal/http/ratelimit"
	"github.com/jw6ventures/foodlog/internal/images"
	"github.com/jw6ventures/foodlog/internal/logging"
	"github.com/jw6ventures/foodlog/internal/store"
	"github.com/jw6ventures/foodlog/internal/supabase"
	"github.com/jw6ventures/foodlog/internal/ui"
	"github.com/jw6ventures/foodlog/internal/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.Fatalf("failed to configure logging: %v", err)
	}
	httperrors.Logger = log
	log.Info("Starting foodlog server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := supabase.New(supabase.Config{URL: cfg.Supabase.URL, AnonKey: cfg.Supabase.AnonKey})
	if err != nil {
		log.Fatalf("failed to create supabase client: %v", err)
	}

	stor, closeStore, err := openStore(ctx, cfg, client, log)
	if err != nil {
		log.Fatalf("failed to open food store: %v", err)
	}
	defer closeStore()

	imgs, err := openImages(ctx, cfg, client)
	if err != nil {
		log.Fatalf("failed to configure image store: %v", err)
	}

	sessionManager, err := auth.NewSessionManager(cfg)
	if err != nil {
		log.Fatalf("failed to initialize sessions: %v", err)
	}

	registry := workspace.NewRegistry(workspace.Deps{
		Auth: client.Auth(),
		AuthOpts: auth.Options{
			Verifier:           tokenVerifier(ctx, cfg),
			ConfirmRedirectURL: cfg.BaseURL,
			CallbackURL:        strings.TrimRight(cfg.BaseURL, "/") + "/auth/callback",
		},
		Foods:    stor.Foods,
		Images:   imgs,
		Location: cfg.Location,
		Logger:   log,
	}, cfg.WorkspaceIdleTTL)
	go registry.Run(ctx)

	// Auth endpoints: 5 requests per second, burst of 10
	authLimiter := ratelimit.NewIPRateLimiter(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)
	go authLimiter.Run(ctx)

	uiHandler := ui.NewHandler(cfg, registry, sessionManager, log)
	r := httpserver.NewRouter(cfg, stor, uiHandler, authLimiter)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

func openStore(ctx context.Context, cfg *config.Config, client *supabase.Client, log logrus.FieldLogger) (*store.Store, func(), error) {
	if cfg.FoodBackend != config.FoodBackendPostgres {
		return store.NewPostgREST(client), func() {}, nil
	}

	db, err := store.Open(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := store.ApplyMigrations(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("database migrations applied")
	return store.New(db), func() { _ = db.Close() }, nil
}

func openImages(ctx context.Context, cfg *config.Config, client *supabase.Client) (images.Store, error) {
	if cfg.Images.Backend == config.ImageBackendS3 {
		return images.NewS3Store(ctx, cfg.Images.S3Region, cfg.Images.S3Bucket, cfg.Images.S3PublicBaseURL)
	}
	return images.NewSupabaseStore(client), nil
}

// tokenVerifier checks restored access tokens locally: with the project's
// shared secret when configured, otherwise against its published JWKS.
func tokenVerifier(ctx context.Context, cfg *config.Config) auth.TokenVerifier {
	if cfg.Supabase.JWTSecret != "" {
		return auth.NewHMACVerifier(cfg.Supabase.JWTSecret)
	}
	return auth.NewJWKSVerifier(ctx, cfg.Supabase.URL)
}
