// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fluffyriot/foodies/internal/gateway"
	"github.com/fluffyriot/foodies/internal/imageenc"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	CredentialsPath string        `yaml:"credentials"`
	// Secret unlocks the credentials file. Without it tokens are kept in
	// memory for the life of the process.
	Secret      string `yaml:"secret"`
	ImageWidth  int    `yaml:"image_width"`
	ImageFormat string `yaml:"image_format"`
	DevAddr     string `yaml:"dev_addr"`
}

func Default() *AppConfig {
	return &AppConfig{
		BaseURL:         gateway.DefaultBaseURL,
		Timeout:         30 * time.Second,
		CredentialsPath: defaultCredentialsPath(),
		ImageWidth:      imageenc.DefaultMaxWidth,
		ImageFormat:     "jpeg",
		DevAddr:         "127.0.0.1:8080",
	}
}

// Load applies, in order: defaults, the YAML file at path (skipped when path
// is empty), then FOODIES_* environment variables.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyEnv() error {
	if v := os.Getenv("FOODIES_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("FOODIES_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FOODIES_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("FOODIES_CREDENTIALS"); v != "" {
		c.CredentialsPath = v
	}
	if v := os.Getenv("FOODIES_SECRET"); v != "" {
		c.Secret = v
	}
	if v := os.Getenv("FOODIES_IMAGE_WIDTH"); v != "" {
		w, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FOODIES_IMAGE_WIDTH: %w", err)
		}
		c.ImageWidth = w
	}
	if v := os.Getenv("FOODIES_IMAGE_FORMAT"); v != "" {
		c.ImageFormat = v
	}
	if v := os.Getenv("FOODIES_DEV_ADDR"); v != "" {
		c.DevAddr = v
	}
	return nil
}

func (c *AppConfig) Validate() error {
	var errs []error

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base url %q is not an absolute http(s) url", c.BaseURL))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.ImageWidth <= 0 {
		errs = append(errs, fmt.Errorf("image width must be positive, got %d", c.ImageWidth))
	}
	if _, err := imageenc.New(c.ImageFormat); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// APIBaseURL is BaseURL without a trailing slash, ready for path joining.
func (c *AppConfig) APIBaseURL() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "foodies-credentials.json"
	}
	return filepath.Join(dir, "foodies", "credentials.json")
}
