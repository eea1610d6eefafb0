package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/raysh454/patternshield/internal/assessor"
	"github.com/raysh454/patternshield/internal/company"
	"github.com/raysh454/patternshield/internal/enumerator"
	"github.com/raysh454/patternshield/internal/fetcher"
	"github.com/raysh454/patternshield/internal/ocr"
	"github.com/raysh454/patternshield/internal/report"
	"github.com/raysh454/patternshield/internal/store"
	"github.com/raysh454/patternshield/internal/watch"
	"github.com/raysh454/patternshield/internal/webclient"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string `yaml:"listen_addr"`
}

type ReportConfig struct {
	// NotifyThreshold is the minimum severity that reaches user-facing
	// notifiers such as the terminal.
	NotifyThreshold int `yaml:"notify_threshold"`

	// AdvisoryTTL is how long an advisory stays up before it dismisses
	// itself.
	AdvisoryTTL time.Duration `yaml:"advisory_ttl"`
}

type CompanyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Config aggregates the per-package configuration.
type Config struct {
	// StorageRoot is where the database lives when Store.Path is relative.
	StorageRoot string `yaml:"storage_root"`

	// RulesFile optionally adds custom rules to the built-in table.
	RulesFile string `yaml:"rules_file"`

	Server    ServerConfig      `yaml:"server"`
	Store     store.Config      `yaml:"store"`
	WebClient webclient.Config  `yaml:"webclient"`
	Assessor  assessor.Config   `yaml:"assessor"`
	OCR       ocr.Config        `yaml:"ocr"`
	Company   CompanyConfig     `yaml:"company"`
	Report    ReportConfig      `yaml:"report"`
	Watch     watch.Config      `yaml:"watch"`
	Crawl     enumerator.Config `yaml:"crawl"`
	Batch     fetcher.Config    `yaml:"batch"`

	// JobRetention is how long finished crawl and watch jobs stay
	// queryable. Zero keeps them until shutdown.
	JobRetention time.Duration `yaml:"job_retention"`
}

// DefaultConfig returns a Config populated with development defaults.
func DefaultConfig() *Config {
	return &Config{
		StorageRoot: "~/.config/patternshield",
		Server:      ServerConfig{ListenAddr: "127.0.0.1:8080"},
		Store:       store.DefaultConfig(),
		WebClient:   webclient.DefaultConfig(),
		Assessor:    assessor.DefaultConfig(),
		OCR:         ocr.DefaultConfig(),
		Company:     CompanyConfig{Enabled: true, Endpoint: company.DefaultEndpoint},
		Report: ReportConfig{
			NotifyThreshold: report.DefaultNotifyThreshold,
			AdvisoryTTL:     report.DefaultAdvisoryTTL,
		},
		Watch:        watch.DefaultConfig(),
		Crawl:        enumerator.DefaultConfig(),
		Batch:        fetcher.DefaultConfig(),
		JobRetention: 30 * time.Minute,
	}
}

// LoadConfig overlays the YAML file at path onto the defaults. An empty
// path or a missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// DatabasePath resolves Store.Path against StorageRoot.
func (c *Config) DatabasePath() (string, error) {
	p := c.Store.Path
	if p == ":memory:" || filepath.IsAbs(p) {
		return p, nil
	}
	root, err := expandPath(c.StorageRoot)
	if err != nil {
		return "", fmt.Errorf("expanding storage root path: %w", err)
	}
	return filepath.Join(root, p), nil
}

func expandPath(p string) (string, error) {
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, p[1:]), nil
	}
	return p, nil
}
