package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"authkit/pkg/oauth"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default configuration file location, relative
// to the user's home directory.
const DefaultConfigPath = ".config/authkit/config.yaml"

// OfflineDuration is a YAML-decodable duration where the literal "never"
// (or a non-positive duration) disables offline session expiry entirely.
type OfflineDuration time.Duration

// Never reports whether offline sessions should never expire.
func (d OfflineDuration) Never() bool { return d <= 0 }

// Duration returns the underlying time.Duration.
func (d OfflineDuration) Duration() time.Duration { return time.Duration(d) }

// UnmarshalYAML decodes either a Go duration string ("168h") or "never".
func (d *OfflineDuration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == "" || raw == "never" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid maxOfflineDuration %q: %w", raw, err)
	}
	*d = OfflineDuration(parsed)
	return nil
}

// Config holds the immutable configuration for one session manager. It is
// never mutated after Load returns.
type Config struct {
	// ClientID is the OAuth client identifier. Native applications carry
	// no client secret; PKCE binds the code to this process instead.
	ClientID string `yaml:"clientId"`

	// RedirectURI is where the issuer sends the authorization callback.
	RedirectURI string `yaml:"redirectUri"`

	// APIBaseURL is the issuer's API base, e.g. https://api.workos.com.
	APIBaseURL string `yaml:"apiBaseUrl"`

	// BackendURL is the optional org-exchange backend. Organization
	// switching is unavailable without it.
	BackendURL string `yaml:"backendUrl"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug"`

	// MaxOfflineDuration bounds how old an offline session snapshot may be
	// before bootstrap rejects it. "never" disables the bound.
	MaxOfflineDuration OfflineDuration `yaml:"maxOfflineDuration"`

	// CallbackScheme is derived from RedirectURI during validation.
	CallbackScheme string `yaml:"-"`
}

// Load reads the configuration file, applies AUTHKIT_* environment
// overrides, and validates the result. An empty path selects the default
// location; a missing file is not an error as long as the environment
// supplies the required fields.
func Load(path string) (*Config, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, DefaultConfigPath)
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Fall through to env overrides.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &oauth.ConfigurationError{Reason: "malformed config file " + path, Err: err}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTHKIT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("AUTHKIT_REDIRECT_URI"); v != "" {
		cfg.RedirectURI = v
	}
	if v := os.Getenv("AUTHKIT_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("AUTHKIT_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if os.Getenv("AUTHKIT_DEBUG") == "true" {
		cfg.Debug = true
	}
}

// Validate checks required fields, parses the URLs, and derives the
// callback scheme. Failures are ConfigurationErrors: caller bugs, never
// retried.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return &oauth.ConfigurationError{Reason: "clientId is required"}
	}

	base, err := url.Parse(c.APIBaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return &oauth.ConfigurationError{Reason: "apiBaseUrl must be an absolute URL: " + c.APIBaseURL, Err: err}
	}

	redirect, err := url.Parse(c.RedirectURI)
	if err != nil || redirect.Scheme == "" {
		return &oauth.ConfigurationError{Reason: "redirectUri must carry a scheme: " + c.RedirectURI, Err: err}
	}
	c.CallbackScheme = redirect.Scheme

	if c.BackendURL != "" {
		backend, err := url.Parse(c.BackendURL)
		if err != nil || backend.Scheme == "" || backend.Host == "" {
			return &oauth.ConfigurationError{Reason: "backendUrl must be an absolute URL: " + c.BackendURL, Err: err}
		}
	}

	return nil
}
