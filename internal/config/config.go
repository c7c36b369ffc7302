// Package config loads the chromegcm CLI configuration file.
//
// The file is YAML:
//
//	access_token: ya29....          # bearer mode, or:
//	credentials:
//	  client_id: ...
//	  client_secret: ...
//	  refresh_token: ...
//	  grant_type: refresh_token
//	options:
//	  subchannel_id: 0
//	  message_length: 130
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slush-dev/chromegcm"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath overrides the configuration file location.
	EnvConfigPath = "CHROMEGCM_CONFIG"
	// EnvAccessToken overrides the access token from the file.
	EnvAccessToken = "CHROMEGCM_ACCESS_TOKEN"
)

// ErrNoCredentials is returned when neither an access token nor refresh
// credentials are configured.
var ErrNoCredentials = errors.New("no access_token or credentials configured")

// Config is the decoded configuration file.
type Config struct {
	AccessToken string                         `yaml:"access_token,omitempty"`
	Credentials *chromegcm.RefreshCredentials `yaml:"credentials,omitempty"`
	Options     yaml.Node                      `yaml:"options,omitempty"`
}

// DefaultPath returns ~/.chromegcm/config.yaml, or CHROMEGCM_CONFIG when set.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chromegcm", "config.yaml")
}

// Load reads the configuration at path. A missing file yields an empty
// config so that CHROMEGCM_ACCESS_TOKEN alone is enough.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if token := os.Getenv(EnvAccessToken); token != "" {
		cfg.AccessToken = token
	}
	return cfg, nil
}

// AuthInfo returns the credential to build a chromegcm.Client from: the
// access token when set, the refresh credentials otherwise.
func (c *Config) AuthInfo() (any, error) {
	switch {
	case c.AccessToken != "":
		return c.AccessToken, nil
	case c.Credentials != nil:
		return *c.Credentials, nil
	default:
		return nil, ErrNoCredentials
	}
}

// MessageOptions converts the options mapping into message options.
func (c *Config) MessageOptions() ([]chromegcm.MessageOption, error) {
	if c.Options.Kind == 0 {
		return nil, nil
	}
	if c.Options.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: options must be a mapping (line %d)", chromegcm.ErrInvalidArgument, c.Options.Line)
	}

	var m map[string]any
	if err := c.Options.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding options: %w", err)
	}
	return []chromegcm.MessageOption{chromegcm.WithOptionMap(m)}, nil
}
