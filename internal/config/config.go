// Package config centralizes how SnapDrop reads its settings and exposes them
// as strongly typed Go values. An optional TOML file is read first and
// environment variables override whatever it sets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Backend names the transfer implementation used for uploads.
const (
	BackendHTTP = "http"
	BackendS3   = "s3"
)

// Config represents runtime configuration for the uploader.
type Config struct {
	APIBaseURL string

	// Queue policy.
	QueueCapacity   int
	MaxImageBytes   int64
	MaxVideoBytes   int64
	RateLimit       int
	UploadPause     time.Duration
	TransferTimeout time.Duration
	RequestTimeout  time.Duration
	SubmitCooldown  time.Duration
	ResetDelay      time.Duration

	// Session persistence. A nil secret makes the session store generate and
	// keep its own key next to the session file.
	SessionPath   string
	SessionSecret []byte
	SessionTTL    time.Duration
	RememberTTL   time.Duration

	Backend string

	// Object storage backend.
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3Region     string
	S3Bucket     string
	S3UseSSL     bool
	SignedURLTTL time.Duration

	// Upload journal.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	DatabaseURL    string
	JournalWorkers int

	LogLevel  string
	LogFormat string
}

const (
	defaultAPIBaseURL      = "http://127.0.0.1:2028"
	defaultQueueCapacity   = 10
	defaultMaxImageBytes   = 10 << 20 // 10 MiB
	defaultMaxVideoBytes   = 50 << 20 // 50 MiB
	defaultRateLimit       = 5
	defaultUploadPause     = time.Second
	defaultTransferTimeout = 2 * time.Minute
	defaultRequestTimeout  = 8 * time.Second
	defaultSubmitCooldown  = time.Second
	defaultResetDelay      = 3 * time.Second
	defaultSessionTTL      = 12 * time.Hour
	defaultRememberTTL     = 30 * 24 * time.Hour
	defaultSignedTTL       = 5 * time.Minute
	defaultS3Bucket        = "snapdrop-uploads"
	defaultS3Region        = "us-east-1"
	defaultJournalWorkers  = 2
)

// fileConfig mirrors Config for the TOML file. Pointers distinguish "unset"
// from zero values so defaults survive a partial file.
type fileConfig struct {
	APIBaseURL string `toml:"api_url"`
	Queue      struct {
		Capacity        *int    `toml:"capacity"`
		MaxImageBytes   *int64  `toml:"max_image_bytes"`
		MaxVideoBytes   *int64  `toml:"max_video_bytes"`
		RateLimit       *int    `toml:"rate_limit"`
		UploadPause     *string `toml:"upload_pause"`
		TransferTimeout *string `toml:"transfer_timeout"`
		SubmitCooldown  *string `toml:"submit_cooldown"`
		ResetDelay      *string `toml:"reset_delay"`
	} `toml:"queue"`
	Session struct {
		Path        string  `toml:"path"`
		Secret      string  `toml:"secret"`
		TTL         *string `toml:"ttl"`
		RememberTTL *string `toml:"remember_ttl"`
	} `toml:"session"`
	Backend string `toml:"backend"`
	S3      struct {
		Endpoint  string  `toml:"endpoint"`
		AccessKey string  `toml:"access_key"`
		SecretKey string  `toml:"secret_key"`
		Region    string  `toml:"region"`
		Bucket    string  `toml:"bucket"`
		UseSSL    *bool   `toml:"use_ssl"`
		SignedTTL *string `toml:"signed_ttl"`
	} `toml:"s3"`
	Journal struct {
		RedisAddr     string `toml:"redis_addr"`
		RedisPassword string `toml:"redis_password"`
		RedisDB       *int   `toml:"redis_db"`
		DatabaseURL   string `toml:"database_url"`
		Workers       *int   `toml:"workers"`
	} `toml:"journal"`
	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`
	RequestTimeout *string `toml:"request_timeout"`
}

// Default returns the built-in configuration without consulting the file
// system or the environment.
func Default() *Config {
	return &Config{
		APIBaseURL:      defaultAPIBaseURL,
		QueueCapacity:   defaultQueueCapacity,
		MaxImageBytes:   defaultMaxImageBytes,
		MaxVideoBytes:   defaultMaxVideoBytes,
		RateLimit:       defaultRateLimit,
		UploadPause:     defaultUploadPause,
		TransferTimeout: defaultTransferTimeout,
		RequestTimeout:  defaultRequestTimeout,
		SubmitCooldown:  defaultSubmitCooldown,
		ResetDelay:      defaultResetDelay,
		SessionPath:     defaultSessionPath(),
		SessionTTL:      defaultSessionTTL,
		RememberTTL:     defaultRememberTTL,
		Backend:         BackendHTTP,
		S3Region:        defaultS3Region,
		S3Bucket:        defaultS3Bucket,
		SignedURLTTL:    defaultSignedTTL,
		JournalWorkers:  defaultJournalWorkers,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads the optional config file then environment variables, falling
// back to defaults. A missing file is not an error; a malformed one is.
func Load() (*Config, error) {
	return LoadFile(readEnv("SNAPDROP_CONFIG", defaultConfigPath()))
}

// LoadFile is Load with an explicit file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.mergeEnv()
	cfg.normalize()
	return cfg, nil
}

// Validate reports configuration combinations that cannot work.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendHTTP:
		if c.APIBaseURL == "" {
			return errors.New("api url is required for the http backend")
		}
	case BackendS3:
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			return errors.New("s3 backend requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// ValidateJournal reports whether the upload journal can be reached.
func (c *Config) ValidateJournal() error {
	if c.RedisAddr == "" {
		return errors.New("journal requires SNAPDROP_REDIS_ADDR")
	}
	return nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	setString(&c.APIBaseURL, fc.APIBaseURL)
	setInt(&c.QueueCapacity, fc.Queue.Capacity)
	setInt64(&c.MaxImageBytes, fc.Queue.MaxImageBytes)
	setInt64(&c.MaxVideoBytes, fc.Queue.MaxVideoBytes)
	setInt(&c.RateLimit, fc.Queue.RateLimit)
	durations := []struct {
		dst *time.Duration
		raw *string
		key string
	}{
		{&c.UploadPause, fc.Queue.UploadPause, "queue.upload_pause"},
		{&c.TransferTimeout, fc.Queue.TransferTimeout, "queue.transfer_timeout"},
		{&c.SubmitCooldown, fc.Queue.SubmitCooldown, "queue.submit_cooldown"},
		{&c.ResetDelay, fc.Queue.ResetDelay, "queue.reset_delay"},
		{&c.SessionTTL, fc.Session.TTL, "session.ttl"},
		{&c.RememberTTL, fc.Session.RememberTTL, "session.remember_ttl"},
		{&c.SignedURLTTL, fc.S3.SignedTTL, "s3.signed_ttl"},
		{&c.RequestTimeout, fc.RequestTimeout, "request_timeout"},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	setString(&c.SessionPath, fc.Session.Path)
	if fc.Session.Secret != "" {
		c.SessionSecret = []byte(fc.Session.Secret)
	}
	setString(&c.Backend, fc.Backend)
	setString(&c.S3Endpoint, fc.S3.Endpoint)
	setString(&c.S3AccessKey, fc.S3.AccessKey)
	setString(&c.S3SecretKey, fc.S3.SecretKey)
	setString(&c.S3Region, fc.S3.Region)
	setString(&c.S3Bucket, fc.S3.Bucket)
	if fc.S3.UseSSL != nil {
		c.S3UseSSL = *fc.S3.UseSSL
	}
	setString(&c.RedisAddr, fc.Journal.RedisAddr)
	setString(&c.RedisPassword, fc.Journal.RedisPassword)
	setInt(&c.RedisDB, fc.Journal.RedisDB)
	setString(&c.DatabaseURL, fc.Journal.DatabaseURL)
	setInt(&c.JournalWorkers, fc.Journal.Workers)
	setString(&c.LogLevel, fc.Logging.Level)
	setString(&c.LogFormat, fc.Logging.Format)
	return nil
}

func (c *Config) mergeEnv() {
	c.APIBaseURL = readEnv("SNAPDROP_API_URL", c.APIBaseURL)
	c.QueueCapacity = parseInt("SNAPDROP_QUEUE_CAPACITY", c.QueueCapacity)
	c.MaxImageBytes = parseInt64("SNAPDROP_MAX_IMAGE_BYTES", c.MaxImageBytes)
	c.MaxVideoBytes = parseInt64("SNAPDROP_MAX_VIDEO_BYTES", c.MaxVideoBytes)
	c.RateLimit = parseInt("SNAPDROP_RATE_LIMIT", c.RateLimit)
	c.UploadPause = parseDuration("SNAPDROP_UPLOAD_PAUSE", c.UploadPause)
	c.TransferTimeout = parseDuration("SNAPDROP_TRANSFER_TIMEOUT", c.TransferTimeout)
	c.RequestTimeout = parseDuration("SNAPDROP_REQUEST_TIMEOUT", c.RequestTimeout)
	c.SubmitCooldown = parseDuration("SNAPDROP_SUBMIT_COOLDOWN", c.SubmitCooldown)
	c.ResetDelay = parseDuration("SNAPDROP_RESET_DELAY", c.ResetDelay)
	c.SessionPath = readEnv("SNAPDROP_SESSION_PATH", c.SessionPath)
	if secret := parseSecret("SNAPDROP_SESSION_SECRET"); secret != nil {
		c.SessionSecret = secret
	}
	c.SessionTTL = parseDuration("SNAPDROP_SESSION_TTL", c.SessionTTL)
	c.RememberTTL = parseDuration("SNAPDROP_REMEMBER_TTL", c.RememberTTL)
	c.Backend = strings.ToLower(readEnv("SNAPDROP_BACKEND", c.Backend))
	c.S3Endpoint = readEnv("SNAPDROP_S3_ENDPOINT", c.S3Endpoint)
	c.S3AccessKey = readEnv("SNAPDROP_S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = readEnv("SNAPDROP_S3_SECRET_KEY", c.S3SecretKey)
	c.S3Region = readEnv("SNAPDROP_S3_REGION", c.S3Region)
	c.S3Bucket = readEnv("SNAPDROP_S3_BUCKET", c.S3Bucket)
	c.S3UseSSL = parseBool("SNAPDROP_S3_USE_SSL", c.S3UseSSL)
	c.SignedURLTTL = parseDuration("SNAPDROP_SIGNED_TTL", c.SignedURLTTL)
	c.RedisAddr = readEnv("SNAPDROP_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = readEnv("SNAPDROP_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = parseInt("SNAPDROP_REDIS_DB", c.RedisDB)
	c.DatabaseURL = readEnv("SNAPDROP_DATABASE_URL", c.DatabaseURL)
	c.JournalWorkers = parseInt("SNAPDROP_JOURNAL_WORKERS", c.JournalWorkers)
	c.LogLevel = readEnv("SNAPDROP_LOG_LEVEL", c.LogLevel)
	c.LogFormat = readEnv("SNAPDROP_LOG_FORMAT", c.LogFormat)
}

func (c *Config) normalize() {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = defaultMaxImageBytes
	}
	if c.MaxVideoBytes <= 0 {
		c.MaxVideoBytes = defaultMaxVideoBytes
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	// Zero pauses and delays are allowed; only negatives are reset.
	if c.UploadPause < 0 {
		c.UploadPause = defaultUploadPause
	}
	if c.SubmitCooldown < 0 {
		c.SubmitCooldown = defaultSubmitCooldown
	}
	if c.ResetDelay < 0 {
		c.ResetDelay = defaultResetDelay
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = defaultTransferTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.RememberTTL <= 0 {
		c.RememberTTL = defaultRememberTTL
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = defaultSignedTTL
	}
	if c.JournalWorkers <= 0 {
		c.JournalWorkers = defaultJournalWorkers
	}
	if c.Backend == "" {
		c.Backend = BackendHTTP
	}
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "snapdrop")
	}
	return filepath.Join(os.TempDir(), "snapdrop")
}

func defaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.toml")
}

func defaultSessionPath() string {
	return filepath.Join(defaultConfigDir(), "session.json")
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt64(key string, def int64) int64 {
	// Invalid input is ignored and the default kept.
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}
