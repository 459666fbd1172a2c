package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/mfenderov/agenda-watch/pkg/models"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Sources = []models.Source{
		{ID: "metro", LandingURL: "https://metro.example.gov/board"},
		{ID: "council", LandingURL: "http://city.example.gov/council", Mode: models.ModeMeetingList},
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Fetcher.MinDomainDelay != 2*time.Second || cfg.Fetcher.CacheFreshness != time.Hour {
		t.Errorf("fetcher defaults = %+v", cfg.Fetcher)
	}
	if cfg.Fetcher.CacheRetention != 7*24*time.Hour || cfg.Fetcher.MaxAttempts != 3 {
		t.Errorf("fetcher defaults = %+v", cfg.Fetcher)
	}
	if cfg.Discovery.MaxDepth != 3 || cfg.Diff.MaxLines != 20 || cfg.Diff.BaselineChars != 5000 {
		t.Errorf("discovery/diff defaults = %+v %+v", cfg.Discovery, cfg.Diff)
	}
	if cfg.Monitor.Workers != 4 {
		t.Errorf("Workers = %d", cfg.Monitor.Workers)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrNoSources) {
		t.Errorf("Validate() on defaults = %v, want ErrNoSources", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "s3 backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Backend = "s3"; c.Storage.Bucket = "" }, wantErr: "storage.endpoint"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "tape" }, wantErr: "unknown storage backend"},
		{name: "redis without addr", mutate: func(c *Config) { c.State.Backend = "redis"; c.State.RedisAddr = "" }, wantErr: "redis_addr"},
		{name: "unknown state", mutate: func(c *Config) { c.State.Backend = "etcd" }, wantErr: "unknown state backend"},
		{name: "missing id", mutate: func(c *Config) { c.Sources[0].ID = " " }, wantErr: "id is required"},
		{name: "relative url", mutate: func(c *Config) { c.Sources[0].LandingURL = "/board" }, wantErr: "landing_url"},
		{name: "ftp url", mutate: func(c *Config) { c.Sources[0].LandingURL = "ftp://example.gov/x" }, wantErr: "landing_url"},
		{name: "unknown mode", mutate: func(c *Config) { c.Sources[0].Mode = "psychic" }, wantErr: "unknown mode"},
		{name: "negative depth", mutate: func(c *Config) { c.Sources[0].MaxDepth = -1 }, wantErr: "max_depth"},
		{name: "duplicate id", mutate: func(c *Config) { c.Sources[1].ID = "metro" }, wantErr: "duplicate id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSourceByID(t *testing.T) {
	cfg := validConfig()
	if src, ok := cfg.SourceByID("council"); !ok || src.Mode != models.ModeMeetingList {
		t.Errorf("SourceByID(council) = %+v, %v", src, ok)
	}
	if _, ok := cfg.SourceByID("nope"); ok {
		t.Error("SourceByID(nope) should not be found")
	}
}

func TestUnmarshalYAML(t *testing.T) {
	const yaml = `
fetcher:
  min_domain_delay: 5s
monitor:
  workers: 8
sources:
  - id: metro
    name: Metro Board
    landing_url: https://metro.example.gov/board
    mode: api-first
    max_depth: 2
    backtrack: true
    allowlist: ["/agendas/"]
    blocklist: ["/events/", "/news/"]
`
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatal(err)
	}
	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.Fetcher.MinDomainDelay != 5*time.Second {
		t.Errorf("MinDomainDelay = %v", cfg.Fetcher.MinDomainDelay)
	}
	if cfg.Fetcher.MaxAttempts != 3 {
		t.Errorf("defaults should survive unmarshal, MaxAttempts = %d", cfg.Fetcher.MaxAttempts)
	}
	if cfg.Monitor.Workers != 8 {
		t.Errorf("Workers = %d", cfg.Monitor.Workers)
	}
	want := models.Source{
		ID: "metro", Name: "Metro Board", LandingURL: "https://metro.example.gov/board",
		Mode: models.ModeAPIFirst, MaxDepth: 2, Backtrack: true,
		Allowlist: []string{"/agendas/"}, Blocklist: []string{"/events/", "/news/"},
	}
	if len(cfg.Sources) != 1 {
		t.Fatalf("sources = %+v", cfg.Sources)
	}
	got := cfg.Sources[0]
	if got.ID != want.ID || got.Name != want.Name || got.LandingURL != want.LandingURL ||
		got.Mode != want.Mode || got.MaxDepth != want.MaxDepth || !got.Backtrack ||
		strings.Join(got.Allowlist, ",") != "/agendas/" || strings.Join(got.Blocklist, ",") != "/events/,/news/" {
		t.Errorf("source = %+v, want %+v", got, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}
