package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"meridian/internal/archive"
)

type Config struct {
	BackendURL        string           `yaml:"backend_url"`
	StreamURL         string           `yaml:"stream_url"`
	Port              string           `yaml:"port"`
	Env               string           `yaml:"env"`
	Log               LogConfig        `yaml:"log"`
	HTTPTimeout       time.Duration    `yaml:"http_timeout"`
	StreamIdleTimeout time.Duration    `yaml:"stream_idle_timeout"`
	FeedCapacity      int              `yaml:"feed_capacity"`
	Simulation        SimulationConfig `yaml:"simulation"`
	Archive           ArchiveConfig    `yaml:"archive"`
	SessionFile       string           `yaml:"session_file"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type SimulationConfig struct {
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	Parallel  int           `yaml:"parallel"`
}

type ArchiveConfig struct {
	Dir         string   `yaml:"dir"`
	PostgresDSN string   `yaml:"postgres_dsn"`
	S3          S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

const streamPath = "/ws/analysis"

// Load reads .env, then the optional YAML file at path (or MERIDIAN_CONFIG),
// then environment variables. Later sources override earlier ones.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	env := firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), "local")
	cfg := defaultConfig(env)

	path = firstNonEmpty(strings.TrimSpace(path), strings.TrimSpace(os.Getenv("MERIDIAN_CONFIG")))
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig(env string) Config {
	if strings.EqualFold(env, "local") {
		return localConfig()
	}
	return Config{
		BackendURL:        "http://localhost:8000",
		Port:              ":8090",
		Env:               env,
		Log:               LogConfig{Level: "info", Format: "json"},
		HTTPTimeout:       15 * time.Second,
		StreamIdleTimeout: 60 * time.Second,
		FeedCapacity:      10,
		Simulation: SimulationConfig{
			CacheSize: 128,
			CacheTTL:  5 * time.Minute,
			Parallel:  4,
		},
		Archive: ArchiveConfig{
			S3: S3Config{Region: "us-east-1", Bucket: "meridian-reports", UseSSL: true},
		},
	}
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("APP_ENV", &cfg.Env)
	str("MERIDIAN_BACKEND_URL", &cfg.BackendURL)
	str("MERIDIAN_WS_URL", &cfg.StreamURL)
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.Port = normalizePort(v)
	}
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_FILE", &cfg.Log.File)
	duration("MERIDIAN_HTTP_TIMEOUT", &cfg.HTTPTimeout)
	duration("MERIDIAN_STREAM_IDLE_TIMEOUT", &cfg.StreamIdleTimeout)
	integer("MERIDIAN_FEED_CAPACITY", &cfg.FeedCapacity)
	integer("MERIDIAN_SIM_CACHE_SIZE", &cfg.Simulation.CacheSize)
	duration("MERIDIAN_SIM_CACHE_TTL", &cfg.Simulation.CacheTTL)
	integer("MERIDIAN_SIM_PARALLEL", &cfg.Simulation.Parallel)
	str("ARCHIVE_DIR", &cfg.Archive.Dir)
	str("ARCHIVE_PG_DSN", &cfg.Archive.PostgresDSN)
	str("ARCHIVE_S3_ENDPOINT", &cfg.Archive.S3.Endpoint)
	str("ARCHIVE_S3_REGION", &cfg.Archive.S3.Region)
	cfg.Archive.S3.AccessKey = firstNonEmpty(
		strings.TrimSpace(os.Getenv("ARCHIVE_S3_ACCESS_KEY")),
		strings.TrimSpace(os.Getenv("MINIO_ROOT_USER")),
		cfg.Archive.S3.AccessKey,
	)
	cfg.Archive.S3.SecretKey = firstNonEmpty(
		strings.TrimSpace(os.Getenv("ARCHIVE_S3_SECRET_KEY")),
		strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD")),
		cfg.Archive.S3.SecretKey,
	)
	str("ARCHIVE_S3_BUCKET", &cfg.Archive.S3.Bucket)
	boolean("ARCHIVE_S3_USE_SSL", &cfg.Archive.S3.UseSSL)
	str("MERIDIAN_SESSION_FILE", &cfg.SessionFile)

	return errors.Join(errs...)
}

// finish derives dependent values and validates the result.
func (c *Config) finish() error {
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	backend, err := url.Parse(c.BackendURL)
	if err != nil || (backend.Scheme != "http" && backend.Scheme != "https") || backend.Host == "" {
		return fmt.Errorf("backend url %q must be an absolute http(s) url", c.BackendURL)
	}
	if strings.TrimSpace(c.StreamURL) == "" {
		c.StreamURL = StreamURLFor(backend)
	}
	stream, err := url.Parse(c.StreamURL)
	if err != nil || (stream.Scheme != "ws" && stream.Scheme != "wss") {
		return fmt.Errorf("stream url %q must be a ws(s) url", c.StreamURL)
	}
	c.Port = normalizePort(c.Port)

	switch {
	case c.HTTPTimeout <= 0:
		return fmt.Errorf("http timeout must be positive")
	case c.StreamIdleTimeout <= 0:
		return fmt.Errorf("stream idle timeout must be positive")
	case c.FeedCapacity <= 0:
		return fmt.Errorf("feed capacity must be positive")
	case c.Simulation.Parallel <= 0:
		return fmt.Errorf("simulation parallelism must be positive")
	case c.Simulation.CacheTTL < 0:
		return fmt.Errorf("simulation cache ttl must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format %q must be text or json", c.Log.Format)
	}
	return nil
}

// WithBackend returns a copy pointed at another backend. A stream URL that
// was derived from the old backend is derived again.
func (c *Config) WithBackend(backendURL string) (*Config, error) {
	out := *c
	if old, err := url.Parse(c.BackendURL); err == nil && c.StreamURL == StreamURLFor(old) {
		out.StreamURL = ""
	}
	out.BackendURL = backendURL
	if err := out.finish(); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamURLFor maps http://host/base to ws://host/base/ws/analysis.
func StreamURLFor(backend *url.URL) string {
	u := *backend
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + streamPath
	u.RawQuery = ""
	return u.String()
}

// ArchiveStore converts the archive section for archive.Open.
func (c *Config) ArchiveStore() archive.Config {
	return archive.Config{
		PostgresDSN: c.Archive.PostgresDSN,
		Dir:         c.Archive.Dir,
		S3: archive.S3Config{
			Endpoint:  c.Archive.S3.Endpoint,
			Region:    c.Archive.S3.Region,
			AccessKey: c.Archive.S3.AccessKey,
			SecretKey: c.Archive.S3.SecretKey,
			Bucket:    c.Archive.S3.Bucket,
			UseSSL:    c.Archive.S3.UseSSL,
		},
	}
}

func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" || strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
