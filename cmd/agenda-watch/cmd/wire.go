package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mfenderov/agenda-watch/internal/config"
	"github.com/mfenderov/agenda-watch/internal/diff"
	"github.com/mfenderov/agenda-watch/internal/discovery"
	"github.com/mfenderov/agenda-watch/internal/document"
	"github.com/mfenderov/agenda-watch/internal/elasticsearch"
	"github.com/mfenderov/agenda-watch/internal/events"
	"github.com/mfenderov/agenda-watch/internal/fetcher"
	"github.com/mfenderov/agenda-watch/internal/metrics"
	"github.com/mfenderov/agenda-watch/internal/monitor"
	"github.com/mfenderov/agenda-watch/internal/state"
	"github.com/mfenderov/agenda-watch/internal/storage"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

// app holds the components shared by the commands.
type app struct {
	cfg       config.Config
	blobs     storage.Store
	states    state.Store
	metrics   *metrics.Metrics
	fetcher   *fetcher.Fetcher
	discovery *discovery.Engine
	diff      *diff.Engine
	search    *elasticsearch.Client // nil unless enabled
	closers   []func() error
}

type appOptions struct {
	bypassCache bool
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	blobs, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.blobs = blobs

	switch cfg.State.Backend {
	case "redis":
		rs, err := state.NewRedisStore(ctx, state.RedisConfig{
			Addr:     cfg.State.RedisAddr,
			Password: cfg.State.RedisPassword,
			DB:       cfg.State.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.states = rs
		a.closers = append(a.closers, rs.Close)
	default:
		a.states = state.NewBlobStore(blobs)
	}

	extractors, err := document.PDFExtractors(cfg.Document.PDFExtractors)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to configure pdf extraction: %w", err)
	}

	a.fetcher = fetcher.New(fetcher.Config{
		Timeout:         cfg.Fetcher.Timeout,
		UserAgent:       cfg.Fetcher.UserAgent,
		MinDomainDelay:  cfg.Fetcher.MinDomainDelay,
		CacheFreshness:  cfg.Fetcher.CacheFreshness,
		CacheRetention:  cfg.Fetcher.CacheRetention,
		MaxAttempts:     cfg.Fetcher.MaxAttempts,
		BackoffUnit:     cfg.Fetcher.BackoffUnit,
		MaxBackoffUnits: cfg.Fetcher.MaxBackoffUnits,
		BypassCache:     opts.bypassCache,
		InsecureTLS:     cfg.Fetcher.InsecureTLS,
		RespectRobots:   cfg.Fetcher.RespectRobots,
	}, fetcher.NewCache(blobs), fetcher.WithMetrics(a.metrics))

	parser := document.NewParser(document.WithPDFExtractors(extractors...))
	a.discovery = discovery.New(discovery.Config{
		MaxDepth:           cfg.Discovery.MaxDepth,
		MinHTMLAgendaChars: cfg.Discovery.MinHTMLAgendaChars,
		SelectionFloor:     cfg.Discovery.SelectionFloor,
		MeetingListCap:     cfg.Discovery.MeetingListCap,
		MaxBacktracks:      cfg.Discovery.MaxBacktracks,
	}, a.fetcher, parser, discovery.WithMetrics(a.metrics))

	diffCfg := diff.DefaultConfig()
	diffCfg.MaxLines = cfg.Diff.MaxLines
	diffCfg.BaselineChars = cfg.Diff.BaselineChars
	a.diff = diff.New(diffCfg, a.states)

	if cfg.Elasticsearch.Enabled {
		a.search, err = newSearchClient(cfg.Elasticsearch)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.search.CreateIndex(ctx); err != nil {
			slog.Warn("failed to ensure change index", "index", cfg.Elasticsearch.Index, "error", err)
		}
	}
	return a, nil
}

func newBlobStore(ctx context.Context, cfg config.Storage) (storage.Store, error) {
	switch cfg.Backend {
	case "s3":
		client, err := storage.New(storage.Config{
			Endpoint:        cfg.Endpoint,
			Bucket:          cfg.Bucket,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UseSSL:          cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket: %w", err)
		}
		return client, nil
	default:
		fs, err := storage.NewFS(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage dir: %w", err)
		}
		return fs, nil
	}
}

func newSearchClient(cfg config.Elasticsearch) (*elasticsearch.Client, error) {
	client, err := elasticsearch.New(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Index:     cfg.Index,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	return client, nil
}

// sink returns where change events go: the log, plus the change index when
// enabled, deduplicated by event ID for the life of the process.
func (a *app) sink() events.Sink {
	sinks := []events.Sink{events.LogSink{}}
	if a.search != nil {
		sinks = append(sinks, a.search)
	}
	return events.NewDedupe(events.Multi(sinks...))
}

func (a *app) monitor(sink events.Sink) *monitor.Monitor {
	opts := []monitor.Option{
		monitor.WithSink(sink),
		monitor.WithArchive(a.blobs),
		monitor.WithCacheSweeper(a.fetcher),
		monitor.WithMetrics(a.metrics),
	}
	if a.cfg.Monitor.ItemEvents {
		opts = append(opts, monitor.WithItemStore(events.NewItemStore(a.blobs)))
	}
	return monitor.New(monitor.Config{
		Workers:          a.cfg.Monitor.Workers,
		ArchiveDocuments: a.cfg.Monitor.ArchiveDocuments,
		CacheRetention:   a.cfg.Fetcher.CacheRetention,
	}, a.discovery, a.diff, opts...)
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// selectSources returns the configured sources, or only the one named id.
func selectSources(cfg config.Config, id string) ([]models.Source, error) {
	if len(cfg.Sources) == 0 {
		return nil, config.ErrNoSources
	}
	if id == "" {
		return cfg.Sources, nil
	}
	src, ok := cfg.SourceByID(id)
	if !ok {
		return nil, fmt.Errorf("source %q not found in config", id)
	}
	return []models.Source{src}, nil
}

func printJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
