package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bluesky-social/lidmap/mapping"
	"github.com/bluesky-social/lidmap/pkg/env"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {
	env.SetVersionFromBuild()

	app := cli.App{
		Name:    "lidmap",
		Usage:   "PN/LID identifier mapping resolver",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"LIDMAP_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "store",
			Usage:   "mapping storage backend: memory, pebble, sqlite, postgres, redis",
			Value:   "pebble",
			EnvVars: []string{"LIDMAP_STORE"},
		},
		&cli.StringFlag{
			Name:    "pebble-path",
			Usage:   "directory for the pebble database",
			Value:   "data/lidmap/pebble",
			EnvVars: []string{"LIDMAP_PEBBLE_PATH"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database connection string for sqlite or postgres store (eg: sqlite://data/lidmap/lidmap.sqlite)",
			Value:   "sqlite://data/lidmap/lidmap.sqlite",
			EnvVars: []string{"LIDMAP_DATABASE_URL", "DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Usage:   "maximum number of open postgres connections",
			Value:   40,
			EnvVars: []string{"LIDMAP_MAX_DB_CONNECTIONS"},
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit opentelemetry spans for SQL queries",
			EnvVars: []string{"LIDMAP_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL: redis://<user>:<pass>@<hostname>:6379/<db>",
			Value:   "redis://localhost:6379/0",
			EnvVars: []string{"LIDMAP_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "collection",
			Usage:   "store collection name for mapping records",
			Value:   mapping.DefaultCollection,
			EnvVars: []string{"LIDMAP_COLLECTION"},
		},
		&cli.StringFlag{
			Name:    "lookup-host",
			Usage:   "method, hostname, and port of external lookup service; external lookups are disabled if empty",
			EnvVars: []string{"LIDMAP_LOOKUP_HOST"},
		},
		&cli.Float64Flag{
			Name:    "lookup-rate-limit",
			Usage:   "max external lookups per second (0 for unlimited)",
			Value:   0,
			EnvVars: []string{"LIDMAP_LOOKUP_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "lookup-cache-ttl",
			Usage:   "how long to share positive external lookup answers (0 disables the lookup cache)",
			Value:   0,
			EnvVars: []string{"LIDMAP_LOOKUP_CACHE_TTL"},
		},
		&cli.DurationFlag{
			Name:    "lookup-cache-miss-ttl",
			Usage:   "how long to share negative external lookup answers",
			Value:   5 * time.Minute,
			EnvVars: []string{"LIDMAP_LOOKUP_CACHE_MISS_TTL"},
		},
		&cli.BoolFlag{
			Name:    "lookup-cache-redis",
			Usage:   "share external lookup answers between processes via redis (at --redis-url)",
			EnvVars: []string{"LIDMAP_LOOKUP_CACHE_REDIS"},
		},
		&cli.IntFlag{
			Name:    "cache-size",
			Usage:   "max entries in the in-process mapping cache",
			Value:   mapping.DefaultCacheCapacity,
			EnvVars: []string{"LIDMAP_CACHE_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "cache-ttl",
			Usage:   "lifetime of in-process mapping cache entries",
			Value:   mapping.DefaultCacheTTL,
			EnvVars: []string{"LIDMAP_CACHE_TTL"},
		},
		&cli.IntFlag{
			Name:    "bulk-concurrency",
			Usage:   "max concurrent resolutions per bulk request (0 for unlimited)",
			Value:   32,
			EnvVars: []string{"LIDMAP_BULK_CONCURRENCY"},
		},
	}

	app.Commands = []*cli.Command{
		serveCmd,
		storeCmd,
		resolvePNCmd,
		resolveLIDCmd,
		countCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug", "trace":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}
