// Package settings resolves runtime configuration for the report builder from
// the environment and an optional JSON or YAML file.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults mirror the local development layout: backend on :8000, browser
// view on :3000.
const (
	DefaultAPIBase        = "http://localhost:8000"
	DefaultListen         = "127.0.0.1:3000"
	DefaultRequestTimeout = 30 * time.Second
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("settings: invalid")

// Settings is the resolved runtime configuration.
type Settings struct {
	// APIBase is the backend base URL.
	APIBase          string        `env:"API_BASE" envDefault:"http://localhost:8000"`
	RequestTimeout   time.Duration `env:"REPORTBUILDER_REQUEST_TIMEOUT" envDefault:"30s"`
	DownloadDir      string        `env:"REPORTBUILDER_DOWNLOAD_DIR" envDefault:"."`
	Listen           string        `env:"REPORTBUILDER_LISTEN" envDefault:"127.0.0.1:3000"`
	ThemeVariant     string        `env:"REPORTBUILDER_THEME_VARIANT" envDefault:"light"`
	LogLevel         string        `env:"REPORTBUILDER_LOG_LEVEL" envDefault:"info"`
	ValidateContract bool          `env:"REPORTBUILDER_VALIDATE_CONTRACT" envDefault:"true"`
}

// fileSettings is the on-disk shape. Absent keys leave the environment value
// in place.
type fileSettings struct {
	APIBase          *string `json:"api_base" yaml:"api_base"`
	RequestTimeout   *string `json:"request_timeout" yaml:"request_timeout"`
	DownloadDir      *string `json:"download_dir" yaml:"download_dir"`
	Listen           *string `json:"listen" yaml:"listen"`
	ThemeVariant     *string `json:"theme_variant" yaml:"theme_variant"`
	LogLevel         *string `json:"log_level" yaml:"log_level"`
	ValidateContract *bool   `json:"validate_contract" yaml:"validate_contract"`
}

// Parse reads settings from environ. A nil map reads the process environment.
func Parse(environ map[string]string) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: environ}); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

// Load reads the process environment, then overlays the file at path when
// path is not empty, and validates the result.
func Load(path string) (Settings, error) {
	s, err := Parse(nil)
	if err != nil {
		return Settings{}, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("settings: read %s: %w", path, err)
		}
		if s, err = s.Overlay(data, path); err != nil {
			return Settings{}, err
		}
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Overlay applies the JSON or YAML document in data on top of s. JSON is
// tried first.
func (s Settings) Overlay(data []byte, source string) (Settings, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}

	var doc fileSettings
	if err := json.Unmarshal(data, &doc); err != nil {
		doc = fileSettings{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Settings{}, fmt.Errorf("settings: parse %s: invalid JSON or YAML", source)
		}
	}

	if doc.APIBase != nil {
		s.APIBase = *doc.APIBase
	}
	if doc.RequestTimeout != nil {
		d, err := time.ParseDuration(*doc.RequestTimeout)
		if err != nil {
			return Settings{}, fmt.Errorf("settings: %s request_timeout: %w", source, err)
		}
		s.RequestTimeout = d
	}
	if doc.DownloadDir != nil {
		s.DownloadDir = *doc.DownloadDir
	}
	if doc.Listen != nil {
		s.Listen = *doc.Listen
	}
	if doc.ThemeVariant != nil {
		s.ThemeVariant = *doc.ThemeVariant
	}
	if doc.LogLevel != nil {
		s.LogLevel = *doc.LogLevel
	}
	if doc.ValidateContract != nil {
		s.ValidateContract = *doc.ValidateContract
	}
	return s, nil
}

// Validate checks the resolved values.
func (s Settings) Validate() error {
	var errs []error
	u, err := url.Parse(strings.TrimSpace(s.APIBase))
	switch {
	case strings.TrimSpace(s.APIBase) == "":
		errs = append(errs, errors.New("api base is empty"))
	case err != nil:
		errs = append(errs, fmt.Errorf("api base: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("api base %q: scheme must be http or https", s.APIBase))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("api base %q: missing host", s.APIBase))
	}
	if s.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout %s is negative", s.RequestTimeout))
	}
	if strings.TrimSpace(s.DownloadDir) == "" {
		errs = append(errs, errors.New("download dir is empty"))
	}
	switch strings.ToLower(s.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level %q is not one of debug, info, warn, error", s.LogLevel))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
