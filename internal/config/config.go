package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	FoodBackendPostgREST = "postgrest"
	FoodBackendPostgres  = "postgres"

	ImageBackendSupabase = "supabase"
	ImageBackendS3       = "s3"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	Supabase struct {
		URL       string
		AnonKey   string
		JWTSecret string
	}

	FoodBackend string
	DB          struct {
		DSN string
	}

	Images struct {
		Backend         string
		S3Bucket        string
		S3Region        string
		S3PublicBaseURL string
	}

	Session struct {
		Secret string
	}

	// Providers lists the external identity providers offered on the login page.
	Providers []string

	Location         *time.Location
	WorkspaceIdleTTL time.Duration

	Log struct {
		Level  string
		Format string
	}

	PrometheusEnabled bool
	TrustedProxies    []string
}

// env mirrors the raw environment; Load turns it into a validated Config.
type env struct {
	ListenAddr string `env:"APP_LISTEN_ADDR,default=:8080"`
	BaseURL    string `env:"APP_BASE_URL,default=http://localhost:8080"`

	SupabaseURL       string `env:"APP_SUPABASE_URL"`
	SupabaseAnonKey   string `env:"APP_SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string `env:"APP_SUPABASE_JWT_SECRET"`

	FoodBackend string `env:"APP_FOOD_BACKEND,default=postgrest"`
	DBDSN       string `env:"APP_DB_DSN"`
	DBHost      string `env:"APP_DB_HOST"`
	DBName      string `env:"APP_DB_NAME"`
	DBUser      string `env:"APP_DB_USER"`
	DBPassword  string `env:"APP_DB_PASSWORD"`
	DBPort      string `env:"APP_DB_PORT,default=5432"`
	DBSSLMode   string `env:"APP_DB_SSLMODE,default=disable"`

	ImageBackend    string `env:"APP_IMAGE_BACKEND,default=supabase"`
	S3Bucket        string `env:"APP_S3_BUCKET"`
	S3Region        string `env:"APP_S3_REGION"`
	S3PublicBaseURL string `env:"APP_S3_PUBLIC_BASE_URL"`

	SessionSecret string `env:"APP_SESSION_SECRET"`
	Providers     string `env:"APP_AUTH_PROVIDERS"`

	Timezone         string        `env:"APP_TIMEZONE,default=UTC"`
	WorkspaceIdleTTL time.Duration `env:"APP_WORKSPACE_IDLE_TTL,default=30m"`

	LogLevel  string `env:"APP_LOG_LEVEL,default=info"`
	LogFormat string `env:"APP_LOG_FORMAT,default=text"`

	PrometheusEnabled string `env:"APP_PROMETHEUS_ENDPOINT_ENABLED"`
	TrustedProxies    string `env:"APP_TRUSTED_PROXIES"`
}

// Load reads configuration from the environment, after loading an optional
// dotenv file named by APP_ENV_FILE (default .env).
func Load() (*Config, error) {
	envFile := getenvDefault("APP_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	var raw env
	if err := envdecode.Decode(&raw); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return fromEnv(raw)
}

func fromEnv(raw env) (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = raw.ListenAddr
	cfg.BaseURL = strings.TrimSuffix(raw.BaseURL, "/")
	cfg.Supabase.URL = strings.TrimSuffix(raw.SupabaseURL, "/")
	cfg.Supabase.AnonKey = raw.SupabaseAnonKey
	cfg.Supabase.JWTSecret = raw.SupabaseJWTSecret

	cfg.FoodBackend = strings.ToLower(raw.FoodBackend)
	cfg.DB.DSN = raw.DBDSN
	if cfg.FoodBackend == FoodBackendPostgres && cfg.DB.DSN == "" {
		var missing []string
		if raw.DBHost == "" {
			missing = append(missing, "APP_DB_HOST")
		}
		if raw.DBName == "" {
			missing = append(missing, "APP_DB_NAME")
		}
		if raw.DBUser == "" {
			missing = append(missing, "APP_DB_USER")
		}
		if raw.DBPassword == "" {
			missing = append(missing, "APP_DB_PASSWORD")
		}

		if len(missing) == 0 {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
				url.QueryEscape(raw.DBUser), url.QueryEscape(raw.DBPassword), raw.DBHost, raw.DBPort, raw.DBName, raw.DBSSLMode)
		}
	}

	cfg.Images.Backend = strings.ToLower(raw.ImageBackend)
	cfg.Images.S3Bucket = raw.S3Bucket
	cfg.Images.S3Region = raw.S3Region
	cfg.Images.S3PublicBaseURL = raw.S3PublicBaseURL

	cfg.Session.Secret = raw.SessionSecret
	cfg.Providers = splitList(raw.Providers)
	cfg.WorkspaceIdleTTL = raw.WorkspaceIdleTTL
	cfg.Log.Level = raw.LogLevel
	cfg.Log.Format = raw.LogFormat
	cfg.PrometheusEnabled = parseBool(raw.PrometheusEnabled, false)
	cfg.TrustedProxies = splitList(raw.TrustedProxies)

	loc, err := time.LoadLocation(raw.Timezone)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if cfg.Supabase.URL == "" {
		return nil, errors.New("APP_SUPABASE_URL is required")
	}
	if cfg.Supabase.AnonKey == "" {
		return nil, errors.New("APP_SUPABASE_ANON_KEY is required")
	}
	switch cfg.FoodBackend {
	case FoodBackendPostgREST:
	case FoodBackendPostgres:
		if cfg.DB.DSN == "" {
			return nil, errors.New("APP_DB_DSN is required for the postgres food backend (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
		}
	default:
		return nil, fmt.Errorf("APP_FOOD_BACKEND must be %q or %q (got %q)", FoodBackendPostgREST, FoodBackendPostgres, cfg.FoodBackend)
	}
	switch cfg.Images.Backend {
	case ImageBackendSupabase:
	case ImageBackendS3:
		if cfg.Images.S3Bucket == "" {
			return nil, errors.New("APP_S3_BUCKET is required for the s3 image backend")
		}
	default:
		return nil, fmt.Errorf("APP_IMAGE_BACKEND must be %q or %q (got %q)", ImageBackendSupabase, ImageBackendS3, cfg.Images.Backend)
	}
	if cfg.Session.Secret == "" {
		return nil, errors.New("APP_SESSION_SECRET is required")
	}
	if len(cfg.Session.Secret) < 32 {
		return nil, fmt.Errorf("APP_SESSION_SECRET must be at least 32 characters long (got %d)", len(cfg.Session.Secret))
	}
	if cfg.WorkspaceIdleTTL <= 0 {
		return nil, fmt.Errorf("APP_WORKSPACE_IDLE_TTL must be positive (got %s)", cfg.WorkspaceIdleTTL)
	}

	if len(cfg.TrustedProxies) == 0 {
		logrus.Warn("No APP_TRUSTED_PROXIES configured. foodlog will trust all proxies - Not recommended for public environments.")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func splitList(v string) []string {
	var result []string
	for _, item := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
