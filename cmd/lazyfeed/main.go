package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lysyi3m/lazyfeed/app/cfg"
	"github.com/lysyi3m/lazyfeed/app/database"
	"github.com/lysyi3m/lazyfeed/app/feed"
	"github.com/lysyi3m/lazyfeed/app/tasks"
)

var globalOpts cfg.Options

func main() {
	parser := flags.NewParser(&globalOpts, flags.Default)
	parser.ShortDescription = "lazyfeed"
	parser.LongDescription = "Terminal feed reader: subscribe to RSS/Atom feeds and keep them in sync."

	registerCommands(parser)

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}

// runtime holds the wired components shared by the commands.
type runtime struct {
	cfg        *cfg.Cfg
	db         *database.DB
	feedRepo   *database.FeedRepo
	entryRepo  *database.EntryRepo
	syncer     *tasks.Syncer
	subscriber *tasks.Subscriber
	registry   *prometheus.Registry
}

func setup() (*runtime, error) {
	c, err := cfg.Load(globalOpts)
	if err != nil {
		return nil, err
	}

	setupLogging(c.Debug)

	db, err := database.Open(c.DBPath)
	if err != nil {
		return nil, err
	}

	feedRepo := database.NewFeedRepository(db)
	entryRepo := database.NewEntryRepository(db)

	client := feed.NewClient(feed.ClientOptions{
		Timeout:        c.Timeout,
		ConnectTimeout: c.ConnectTimeout,
		UserAgent:      c.UserAgent,
		Headers:        c.Headers,
	})
	parser := feed.NewParser()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	syncerCfg := tasks.SyncerConfig{
		Concurrency: c.Concurrency,
		Metrics:     tasks.NewMetrics(registry),
	}
	if c.FetchContent {
		syncerCfg.Content = feed.NewContentFetcher(client)
	}

	syncer := tasks.NewSyncer(feedRepo, entryRepo, database.NewSyncRepository(db), client, parser, syncerCfg)

	slog.Debug("Configuration loaded",
		"db", c.DBPath,
		"config_file", c.ConfigFile,
		"timeout", c.Timeout,
		"concurrency", c.Concurrency,
		"fetch_content", c.FetchContent,
		"version", c.Version)

	return &runtime{
		cfg:        c,
		db:         db,
		feedRepo:   feedRepo,
		entryRepo:  entryRepo,
		syncer:     syncer,
		subscriber: tasks.NewSubscriber(feedRepo, client, parser, syncer, c.Concurrency),
		registry:   registry,
	}, nil
}

func (rt *runtime) Close() {
	if err := rt.db.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// signalContext is cancelled on SIGINT or SIGTERM so an in-flight pass is abandoned cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
