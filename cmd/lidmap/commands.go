package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"syscall"

	"github.com/bluesky-social/lidmap/mapping"
	"github.com/bluesky-social/lidmap/mapping/pebblestore"
	"github.com/bluesky-social/lidmap/mapping/sqlstore"
	"github.com/bluesky-social/lidmap/pkg/metrics"

	cli "github.com/urfave/cli/v2"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the lidmap API daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "bind",
			Usage:    "Specify the local IP/port to bind to",
			Required: false,
			Value:    ":6680",
			EnvVars:  []string{"LIDMAP_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"LIDMAP_METRICS_LISTEN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stdout)
		shutdownOTEL := configOTEL("lidmap")
		defer shutdownOTEL()

		b, err := openBackend(cctx, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		ctx, cancel := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		// prometheus HTTP endpoint: /metrics
		go func() {
			runtime.SetBlockProfileRate(10)
			runtime.SetMutexProfileFraction(10)
			if err := metrics.RunServer(ctx, cancel, cctx.String("metrics-listen")); err != nil {
				logger.Error("failed to start metrics endpoint", "err", err)
			}
		}()

		srv := NewServer(b.Resolver, Config{
			Logger: logger,
			Bind:   cctx.String("bind"),
		})
		return srv.RunAPI(ctx)
	},
}

var storeCmd = &cli.Command{
	Name:      "store",
	Usage:     "persist a PN/LID mapping",
	ArgsUsage: `<pn> <lid>`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "force",
			Usage: "write even if the mapping is already known",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 2 {
			return fmt.Errorf("expected exactly two arguments: PN and LID identifiers")
		}
		logger := configLogger(cctx, os.Stderr)
		b, err := openBackend(cctx, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		res, err := b.Resolver.StoreMappings(cctx.Context, []mapping.Pair{{
			PN:  cctx.Args().Get(0),
			LID: cctx.Args().Get(1),
		}}, mapping.StoreOptions{ForceUpdate: cctx.Bool("force")})
		if err != nil {
			return err
		}
		fmt.Printf("stored=%d batch=%s\n", res.Stored, res.BatchID)
		return nil
	},
}

var resolveFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "skip-external",
		Usage: "only consult the local store, never the external lookup service",
	},
	&cli.BoolFlag{
		Name:  "ignore-device",
		Usage: "resolve to device 0 regardless of the input's device",
	},
}

var resolvePNCmd = &cli.Command{
	Name:      "resolve-pn",
	Usage:     "resolve PN identifiers to LID identifiers",
	ArgsUsage: `<pn>...`,
	Flags:     resolveFlags,
	Action: func(cctx *cli.Context) error {
		return runResolve(cctx, func(ctx context.Context, r *mapping.Resolver, ids []string, opts mapping.ResolveOptions) map[string]string {
			return r.LIDsForPNs(ctx, ids, opts)
		})
	},
}

var resolveLIDCmd = &cli.Command{
	Name:      "resolve-lid",
	Usage:     "resolve LID identifiers to PN identifiers",
	ArgsUsage: `<lid>...`,
	Flags:     resolveFlags,
	Action: func(cctx *cli.Context) error {
		return runResolve(cctx, func(ctx context.Context, r *mapping.Resolver, ids []string, opts mapping.ResolveOptions) map[string]string {
			return r.PNsForLIDs(ctx, ids, opts)
		})
	},
}

func runResolve(cctx *cli.Context, fn func(context.Context, *mapping.Resolver, []string, mapping.ResolveOptions) map[string]string) error {
	if cctx.Args().Len() == 0 {
		return fmt.Errorf("need at least one identifier to resolve")
	}
	logger := configLogger(cctx, os.Stderr)
	b, err := openBackend(cctx, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	out := fn(cctx.Context, b.Resolver, cctx.Args().Slice(), mapping.ResolveOptions{
		SkipExternal: cctx.Bool("skip-external"),
		IgnoreDevice: cctx.Bool("ignore-device"),
	})
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := out[k]
		if v == "" {
			v = "(not found)"
		}
		fmt.Printf("%s\t%s\n", k, v)
	}
	return nil
}

var countCmd = &cli.Command{
	Name:  "count",
	Usage: "count persisted mapping records (pebble, sqlite, and postgres stores)",
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stderr)
		store, closeStore, err := openStore(cctx, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		type counter interface {
			Count(ctx context.Context, collection string) (int, int, error)
		}
		var c counter
		switch s := store.(type) {
		case *pebblestore.Store:
			c = s
		case *sqlstore.Store:
			c = s
		default:
			return fmt.Errorf("store type does not support counting: %s", cctx.String("store"))
		}
		fwd, rev, err := c.Count(cctx.Context, cctx.String("collection"))
		if err != nil {
			return err
		}
		fmt.Printf("forward=%d reverse=%d\n", fwd, rev)
		return nil
	},
}
