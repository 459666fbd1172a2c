// Package config defines the agenda-watch configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mfenderov/agenda-watch/pkg/models"
)

// ErrNoSources is returned by Validate when no source is configured.
var ErrNoSources = errors.New("no sources configured")

// Config holds all application configuration.
type Config struct {
	Fetcher       Fetcher         `mapstructure:"fetcher"`
	Discovery     Discovery       `mapstructure:"discovery"`
	Diff          Diff            `mapstructure:"diff"`
	Document      Document        `mapstructure:"document"`
	Storage       Storage         `mapstructure:"storage"`
	State         State           `mapstructure:"state"`
	Elasticsearch Elasticsearch   `mapstructure:"elasticsearch"`
	Monitor       Monitor         `mapstructure:"monitor"`
	Probe         Probe           `mapstructure:"probe"`
	Metrics       Metrics         `mapstructure:"metrics"`
	MCP           MCP             `mapstructure:"mcp"`
	Sources       []models.Source `mapstructure:"sources"`
}

// Fetcher holds HTTP fetch, cache and retry configuration.
type Fetcher struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	MinDomainDelay  time.Duration `mapstructure:"min_domain_delay"`
	CacheFreshness  time.Duration `mapstructure:"cache_freshness"`
	CacheRetention  time.Duration `mapstructure:"cache_retention"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BackoffUnit     time.Duration `mapstructure:"backoff_unit"`
	MaxBackoffUnits int           `mapstructure:"max_backoff_units"`
	InsecureTLS     bool          `mapstructure:"insecure_tls"`
	RespectRobots   bool          `mapstructure:"respect_robots"`
}

// Discovery holds link-walk limits.
type Discovery struct {
	MaxDepth           int `mapstructure:"max_depth"`
	MinHTMLAgendaChars int `mapstructure:"min_html_agenda_chars"`
	SelectionFloor     int `mapstructure:"selection_floor"`
	MeetingListCap     int `mapstructure:"meeting_list_cap"`
	MaxBacktracks      int `mapstructure:"max_backtracks"`
}

// Diff holds change detection thresholds.
type Diff struct {
	MaxLines      int `mapstructure:"max_lines"`
	BaselineChars int `mapstructure:"baseline_chars"`
}

// Document holds text extraction configuration.
type Document struct {
	// PDFExtractors are tried in order. Known names: "native", "pdftotext".
	PDFExtractors []string `mapstructure:"pdf_extractors"`
}

// Storage selects the blob store for the fetch cache, baselines and the
// document archive.
type Storage struct {
	Backend         string `mapstructure:"backend"` // "fs" or "s3"
	Dir             string `mapstructure:"dir"`
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// State selects where fingerprint baselines live.
type State struct {
	Backend       string `mapstructure:"backend"` // "blob" or "redis"
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// Elasticsearch holds the change-event index configuration. Indexing is off
// unless Enabled is set.
type Elasticsearch struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Monitor holds check cycle configuration.
type Monitor struct {
	Workers          int    `mapstructure:"workers"`
	Schedule         string `mapstructure:"schedule"`
	ArchiveDocuments bool   `mapstructure:"archive_documents"`
	ItemEvents       bool   `mapstructure:"item_events"`
}

// Probe holds site survey limits.
type Probe struct {
	Delay    time.Duration `mapstructure:"delay"`
	MaxDepth int           `mapstructure:"max_depth"`
	MaxPages int           `mapstructure:"max_pages"`
}

// Metrics holds the Prometheus endpoint served by the watch command.
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Fetcher: Fetcher{
			Timeout:         30 * time.Second,
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			MinDomainDelay:  2 * time.Second,
			CacheFreshness:  time.Hour,
			CacheRetention:  7 * 24 * time.Hour,
			MaxAttempts:     3,
			BackoffUnit:     time.Second,
			MaxBackoffUnits: 60,
			InsecureTLS:     true, // many agency sites serve broken chains
		},
		Discovery: Discovery{
			MaxDepth:           3,
			MinHTMLAgendaChars: 1000,
			SelectionFloor:     -20,
			MeetingListCap:     15,
			MaxBacktracks:      2,
		},
		Diff: Diff{
			MaxLines:      20,
			BaselineChars: 5000,
		},
		Document: Document{
			PDFExtractors: []string{"native"},
		},
		Storage: Storage{
			Backend:         "fs",
			Dir:             "./data",
			Endpoint:        "localhost:9002",
			Bucket:          "agenda-watch",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
		},
		State: State{
			Backend:   "blob",
			RedisAddr: "localhost:6379",
		},
		Elasticsearch: Elasticsearch{
			Addresses: []string{"http://localhost:9200"},
			Index:     "agenda-watch-events",
		},
		Monitor: Monitor{
			Workers:    4,
			Schedule:   "*/30 * * * *",
			ItemEvents: true,
		},
		Probe: Probe{
			Delay:    time.Second,
			MaxDepth: 2,
			MaxPages: 40,
		},
		Metrics: Metrics{
			Addr: ":9090",
		},
		MCP: MCP{
			Name:    "agenda-watch",
			Version: "1.0.0",
		},
	}
}

// Validate checks the backends and every source. It returns ErrNoSources
// when the source list is empty.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the fs backend")
		}
	case "s3":
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return fmt.Errorf("storage.endpoint and storage.bucket are required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.State.Backend {
	case "blob":
	case "redis":
		if c.State.RedisAddr == "" {
			return fmt.Errorf("state.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}

	if len(c.Sources) == 0 {
		return ErrNoSources
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if err := validateSource(src); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
	}
	return nil
}

func validateSource(src models.Source) error {
	if strings.TrimSpace(src.ID) == "" {
		return fmt.Errorf("id is required")
	}
	u, err := url.Parse(src.LandingURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source %q: landing_url must be an absolute http(s) URL", src.ID)
	}
	switch src.Mode {
	case "", models.ModeStandard, models.ModeMeetingList, models.ModeAPIFirst:
	default:
		return fmt.Errorf("source %q: unknown mode %q", src.ID, src.Mode)
	}
	if src.MaxDepth < 0 {
		return fmt.Errorf("source %q: max_depth must not be negative", src.ID)
	}
	return nil
}

// SourceByID returns the configured source with the given ID.
func (c *Config) SourceByID(id string) (models.Source, bool) {
	for _, src := range c.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return models.Source{}, false
}
