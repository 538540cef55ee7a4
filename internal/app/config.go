package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// PDF renderers.
const (
	PDFRendererNative    = "native"
	PDFRendererGotenberg = "gotenberg"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"45s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"12h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	BackendURL       string        `envconfig:"BACKEND_URL" default:"http://127.0.0.1:5000"`
	BackendTimeout   time.Duration `envconfig:"BACKEND_TIMEOUT" default:"20s"`
	BackendLoginPath string        `envconfig:"BACKEND_LOGIN_PATH" default:"/api/web-login"`

	QueryCacheTTL time.Duration `envconfig:"QUERY_CACHE_TTL" default:"2m"`
	QueryIdleTTL  time.Duration `envconfig:"QUERY_IDLE_TTL" default:"30m"`

	PDFRenderer   string        `envconfig:"PDF_RENDERER" default:"native"`
	GotenbergURL  string        `envconfig:"GOTENBERG_URL" default:"http://127.0.0.1:3000"`
	PDFAsyncRows  int           `envconfig:"PDF_ASYNC_ROWS" default:"500"`
	ExportTTL     time.Duration `envconfig:"EXPORT_TTL" default:"1h"`
	ExportRate    int           `envconfig:"EXPORT_RATE_PER_MINUTE" default:"20"`
	WorkerThreads int           `envconfig:"WORKER_CONCURRENCY" default:"2"`

	ReportLayoutFile string `envconfig:"REPORT_LAYOUT_FILE"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return errors.New("session secret must be provided")
	}
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	switch c.PDFRenderer {
	case PDFRendererNative, PDFRendererGotenberg:
	default:
		return fmt.Errorf("PDF_RENDERER must be %q or %q", PDFRendererNative, PDFRendererGotenberg)
	}
	if c.PDFAsyncRows < 0 {
		return errors.New("PDF_ASYNC_ROWS must not be negative")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
