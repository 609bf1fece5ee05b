// Package metrics runs the side HTTP listener which exposes prometheus metrics, build version, and pprof.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/bluesky-social/lidmap/pkg/env"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// status label values shared by lookup metrics
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusNotFound    = "not_found"
	StatusInvalid     = "invalid"
	StatusRateLimited = "rate_limited"
)

func NewHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/version", env.VersionHandler)
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "OK")
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Serves until ctx is done. Calls cancel on return, so a listener failure brings down the rest of the process. An empty addr disables the server.
func RunServer(ctx context.Context, cancel context.CancelFunc, addr string) error {
	if addr == "" {
		slog.Info("metrics server disabled")
		return nil
	}

	defer cancel()

	srv := &http.Server{
		Addr:         addr,
		Handler:      NewHandler(),
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down metrics server", "err", err)
		}
	}()

	slog.Info("metrics server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
