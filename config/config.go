package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissing is returned when a required setting has no value.
var ErrMissing = errors.New("required configuration missing")

// Backend names the implementation behind the data store URL.
type Backend string

const (
	BackendFirebase Backend = "firebase"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Firebase   FirebaseConfig   `yaml:"firebase"`
	Access     AccessConfig     `yaml:"access"`
	Session    SessionConfig    `yaml:"session"`
	Status     StatusConfig     `yaml:"status"`
	Database   DatabaseConfig   `yaml:"database"`
	Watcher    WatcherConfig    `yaml:"watcher"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port             int     `yaml:"port"`
	GinMode          string  `yaml:"gin_mode"`
	AuthRateLimit    float64 `yaml:"auth_rate_limit_per_sec"`
	AuthRateBurst    int     `yaml:"auth_rate_burst"`
	AllowedOrigins   string  `yaml:"allowed_origins"`
	MaxUploadMB      int     `yaml:"max_upload_mb"`
	SecureCookies    bool    `yaml:"secure_cookies"`
	ShutdownTimeoutS int     `yaml:"shutdown_timeout_seconds"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// FirebaseConfig holds the identity provider, database and bucket settings.
// Credentials may be given inline (JSON or base64) or as a file path.
type FirebaseConfig struct {
	WebAPIKey     string `yaml:"web_api_key"`
	IdentityURL   string `yaml:"identity_url"`
	StorageBucket string `yaml:"storage_bucket"`
	DBURL         string `yaml:"db_url"`
	CredsJSON     string `yaml:"creds_json"`
	CredsBase64   string `yaml:"creds_base64"`
	CredsFile     string `yaml:"creds_file"`
}

// AccessConfig holds the administrator identity and machine defaults.
type AccessConfig struct {
	AdminEmail         string `yaml:"admin_email"`
	DefaultMachine     string `yaml:"default_machine"`
	PlaceholderMachine string `yaml:"placeholder_machine"`
}

// SessionConfig controls dashboard sessions.
type SessionConfig struct {
	Secret     string        `yaml:"secret"`
	TTLMinutes int           `yaml:"ttl_minutes"`
	TTL        time.Duration `yaml:"-"`
}

// StatusConfig holds the heartbeat policy used to classify machines and
// the wall-clock offset machines write their timestamps in.
type StatusConfig struct {
	HeartbeatWindowSeconds int            `yaml:"heartbeat_window_seconds"`
	UTCOffsetHours         *int           `yaml:"utc_offset_hours"`
	HeartbeatWindow        time.Duration  `yaml:"-"`
	Location               *time.Location `yaml:"-"`
}

// DatabaseConfig holds connection pool settings for the SQL tree backend.
type DatabaseConfig struct {
	MaxOpenConns           int  `yaml:"max_open_conns"`
	MaxIdleConns           int  `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int  `yaml:"conn_max_lifetime_minutes"`
	LogQueries             bool `yaml:"log_queries"`
}

// WatcherConfig controls the background machine status sweep.
type WatcherConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the YAML file at path (when it exists), applies environment
// overrides, fills defaults and validates required settings.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// Environment-only deployments have no file.
		default:
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Access.AdminEmail, "ADMIN_EMAIL")
	setString(&c.Firebase.WebAPIKey, "FIREBASE_WEB_API_KEY")
	setString(&c.Firebase.StorageBucket, "STORAGE_BUCKET_NAME")
	setString(&c.Firebase.DBURL, "DB_URL")
	setString(&c.Firebase.CredsJSON, "FIREBASE_CREDS_JSON")
	if c.Firebase.CredsJSON == "" {
		setString(&c.Firebase.CredsJSON, "TEXTKEY")
	}
	setString(&c.Firebase.CredsBase64, "FIREBASE_CREDS_BASE64")
	setString(&c.Firebase.CredsFile, "FIREBASE_CREDS_FILE")
	setString(&c.Firebase.IdentityURL, "IDENTITY_URL")
	setString(&c.Server.GinMode, "GIN_MODE")
	setString(&c.Server.AllowedOrigins, "ALLOWED_ORIGINS")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Session.Secret, "SESSION_SECRET")
	setString(&c.Push.PublicKey, "VAPID_PUBLIC_KEY")
	setString(&c.Push.PrivateKey, "VAPID_PRIVATE_KEY")
	setString(&c.Push.Subject, "VAPID_SUBJECT")

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("WATCHER_ENABLED")); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse WATCHER_ENABLED: %w", err)
		}
		c.Watcher.Enabled = enabled
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.GinMode == "" {
		c.Server.GinMode = "release"
	}
	if c.Server.AuthRateLimit <= 0 {
		c.Server.AuthRateLimit = 1
	}
	if c.Server.AuthRateBurst <= 0 {
		c.Server.AuthRateBurst = 5
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 16
	}
	if c.Server.ShutdownTimeoutS <= 0 {
		c.Server.ShutdownTimeoutS = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Firebase.IdentityURL == "" {
		c.Firebase.IdentityURL = "https://identitytoolkit.googleapis.com/v1"
	}
	if c.Access.DefaultMachine == "" {
		c.Access.DefaultMachine = "ETM_001"
	}
	if c.Access.PlaceholderMachine == "" {
		c.Access.PlaceholderMachine = "DEMO"
	}

	if c.Session.TTLMinutes <= 0 {
		c.Session.TTLMinutes = 12 * 60
	}
	c.Session.TTL = time.Duration(c.Session.TTLMinutes) * time.Minute

	if c.Status.HeartbeatWindowSeconds <= 0 {
		c.Status.HeartbeatWindowSeconds = 300
	}
	c.Status.HeartbeatWindow = time.Duration(c.Status.HeartbeatWindowSeconds) * time.Second
	offset := 3
	if c.Status.UTCOffsetHours != nil {
		offset = *c.Status.UTCOffsetHours
	}
	c.Status.Location = time.FixedZone(fmt.Sprintf("UTC%+d", offset), offset*3600)

	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 2
	}

	if c.Watcher.IntervalSeconds <= 0 {
		c.Watcher.IntervalSeconds = 60
	}
	c.Watcher.Interval = time.Duration(c.Watcher.IntervalSeconds) * time.Second

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}
	if c.WorkerPool.Size <= 0 {
		c.WorkerPool.Size = 1
	}
}

// Validate ensures required fields are present.
func (c Config) Validate() error {
	required := []struct {
		key string
		val string
	}{
		{"ADMIN_EMAIL", c.Access.AdminEmail},
		{"FIREBASE_WEB_API_KEY", c.Firebase.WebAPIKey},
		{"STORAGE_BUCKET_NAME", c.Firebase.StorageBucket},
		{"DB_URL", c.Firebase.DBURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			return fmt.Errorf("%w: %s", ErrMissing, r.key)
		}
	}
	if c.Firebase.CredsJSON == "" && c.Firebase.CredsBase64 == "" && c.Firebase.CredsFile == "" {
		return fmt.Errorf("%w: FIREBASE_CREDS_JSON, FIREBASE_CREDS_BASE64 or FIREBASE_CREDS_FILE", ErrMissing)
	}
	if _, err := c.Backend(); err != nil {
		return err
	}
	return nil
}

// Backend reports which tree implementation DB_URL points at.
func (c Config) Backend() (Backend, error) {
	u := strings.TrimSpace(c.Firebase.DBURL)
	switch {
	case strings.HasPrefix(u, "https://"):
		return BackendFirebase, nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return BackendPostgres, nil
	case strings.HasPrefix(u, "sqlite:"), strings.HasPrefix(u, "file:"):
		return BackendSQLite, nil
	}
	return "", fmt.Errorf("unsupported DB_URL %q: expected https://, postgres:// or sqlite:", u)
}

// DatabaseDSN returns DB_URL in the form the SQL driver expects.
func (c Config) DatabaseDSN() string {
	return strings.TrimPrefix(strings.TrimSpace(c.Firebase.DBURL), "sqlite:")
}

// CredentialsJSON returns the service account JSON bytes and the source used.
func (c Config) CredentialsJSON() ([]byte, string, error) {
	if c.Firebase.CredsJSON != "" {
		return []byte(c.Firebase.CredsJSON), "inline", nil
	}
	if c.Firebase.CredsBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(c.Firebase.CredsBase64)
		if err != nil {
			return nil, "base64", fmt.Errorf("decode FIREBASE_CREDS_BASE64: %w", err)
		}
		return decoded, "base64", nil
	}
	if c.Firebase.CredsFile != "" {
		data, err := os.ReadFile(c.Firebase.CredsFile)
		if err != nil {
			return nil, "file", fmt.Errorf("read FIREBASE_CREDS_FILE: %w", err)
		}
		return data, "file", nil
	}
	return nil, "", fmt.Errorf("%w: service account credentials", ErrMissing)
}

// PushEnabled reports whether VAPID keys are configured.
func (c Config) PushEnabled() bool {
	return c.Push.PublicKey != "" && c.Push.PrivateKey != ""
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
