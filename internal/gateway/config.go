package gateway

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/nhle/mailgate/internal/backend"
	"github.com/nhle/mailgate/internal/model"
)

// AVConfig controls attachment scanning.
type AVConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"`
}

// Config is the gateway configuration.
type Config struct {
	Listen  string `yaml:"listen"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`

	// AllowedAccounts maps a login identity to its mail server. Logins
	// outside this map are refused with 403.
	AllowedAccounts map[string]backend.Account `yaml:"imap_allowed_accounts"`

	// Storage is the SQLite database holding attachment payloads.
	Storage         string `yaml:"imap_storage"`
	DefaultPageSize int    `yaml:"imap_default_page_size"`

	// AttachmentTTLHours bounds how long payloads are kept; 0 keeps them.
	AttachmentTTLHours int `yaml:"attachment_ttl_hours"`

	AV       AVConfig `yaml:"av"`
	LogLevel string   `yaml:"log_level"`
	LogFile  string   `yaml:"log_file"`
}

// DefaultConfigPaths are searched in order when no path is given.
var DefaultConfigPaths = []string{
	"/etc/mailgate/gateway.yaml",
	"./config/gateway.yaml",
	"./gateway.yaml",
}

// LoadConfig reads the gateway configuration from path, or from the first
// readable file in DefaultConfigPaths when path is empty.
func LoadConfig(path string) (*Config, error) {
	paths := DefaultConfigPaths
	if path != "" {
		paths = []string{path}
	}

	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(filepath.Clean(p))
		if err == nil {
			path = p
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("reading gateway config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing gateway config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gateway config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":5000"
	}
	if c.Storage == "" {
		c.Storage = filepath.Join(os.TempDir(), "mailgate", "attachments.db")
	}
	if c.DefaultPageSize < 1 {
		c.DefaultPageSize = model.DefaultPageSize
	}
	if c.AV.Command == "" {
		c.AV.Command = "clamdscan"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	for email, acct := range c.AllowedAccounts {
		acct.Email = email
		if acct.Port == 0 {
			acct.Port = 993
			acct.TLS = true
		}
		c.AllowedAccounts[email] = acct
	}
}

// Validate reports configuration errors that would stop the gateway from
// serving.
func (c *Config) Validate() error {
	var errs []error

	if len(c.AllowedAccounts) == 0 {
		errs = append(errs, errors.New("imap_allowed_accounts is empty"))
	}
	for email, acct := range c.AllowedAccounts {
		if strings.TrimSpace(acct.Server) == "" {
			errs = append(errs, fmt.Errorf("account %s: server is required", email))
		}
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("tls_cert and tls_key must be set together"))
	}

	return errors.Join(errs...)
}

// AttachmentTTL returns the payload retention, or 0 to keep forever.
func (c *Config) AttachmentTTL() time.Duration {
	return time.Duration(c.AttachmentTTLHours) * time.Hour
}

// Account returns the allowed account for identity.
func (c *Config) Account(identity string) (backend.Account, bool) {
	acct, ok := c.AllowedAccounts[identity]
	return acct, ok
}
