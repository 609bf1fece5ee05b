package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bluesky-social/lidmap/mapping"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// registers collectors on creation, so only once per process
var httpMetrics = echoprometheus.NewMiddleware("lidmap")

type Server struct {
	resolver *mapping.Resolver
	echo     *echo.Echo
	httpd    *http.Server
	logger   *slog.Logger
}

type Config struct {
	Logger *slog.Logger
	Bind   string
}

func NewServer(resolver *mapping.Resolver, config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		resolver: resolver,
		echo:     e,
		logger:   logger,
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(httpMetrics)
	e.Use(otelecho.Middleware("lidmap"))
	e.Use(middleware.BodyLimit("4M"))
	e.HTTPErrorHandler = srv.errorHandler
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000, // 365 days
	}))

	e.GET("/_health", srv.HandleHealthCheck)
	e.GET("/v1/lookup", srv.HandleLookup)
	e.GET("/v1/lid", srv.HandleLIDForPN)
	e.GET("/v1/pn", srv.HandlePNForLID)
	e.POST("/v1/resolve", srv.HandleResolve)
	e.POST("/v1/mappings", srv.HandleStoreMappings)
	e.GET("/v1/cache/stats", srv.HandleCacheStats)
	e.POST("/v1/cache/clear", srv.HandleCacheClear)
	e.POST("/v1/cache/preload", srv.HandleCachePreload)

	return srv
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// Serves until ctx is done, then shuts down gracefully.
func (srv *Server) RunAPI(ctx context.Context) error {
	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.logger.Error("HTTP server shutting down unexpectedly", "err", err)
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		srv.logger.Info("received exit signal")
	case err, ok := <-errCh:
		if ok {
			return err
		}
	}

	if err := srv.Shutdown(); err != nil {
		srv.logger.Error("HTTP server shutdown error", "err", err)
		return err
	}
	srv.logger.Info("graceful shutdown complete")
	return nil
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}
