// Command api serves the tax table converter over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/cors"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/handler"
	"github.com/FACorreiaa/tax-table-converter/pkg/config"
)

// Version info (set during build)
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server terminated with an error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	deps, err := InitDependencies(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	if err := deps.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	e := newEcho(cfg, deps)
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		ExposedHeaders:   []string{echo.HeaderContentDisposition, "X-Bundle-Warnings"},
		AllowCredentials: false,
	}).Handler(e)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
		// parsing is bounded separately; leave room for the slowest upload
		WriteTimeout: cfg.Conversion.ParseTimeout + 30*time.Second,
	}

	servers := []*http.Server{srv}
	if deps.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", deps.Metrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.Server.Host + ":" + strconv.Itoa(cfg.Observability.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, s := range servers {
		go func(s *http.Server) {
			logger.Info("listening", slog.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", s.Addr, err)
			}
		}(s)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown %s: %w", s.Addr, err))
		}
	}
	logger.Info("server stopped")
	return shutdownErr
}

func newEcho(cfg *config.Config, deps *Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.NewErrorHandler(deps.Logger, cfg.Log.Level == "debug")

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			deps.Logger.Error("panic recovered",
				slog.Any("error", err),
				slog.String("stack", string(stack)),
			)
			return err
		},
	}))
	e.Use(handler.RequestLogger(deps.Logger))
	// multipart overhead on top of the document cap
	e.Use(middleware.BodyLimit(strconv.FormatInt((cfg.Server.MaxUploadBytes>>20)+1, 10) + "M"))

	limiter := handler.NewRateLimiter(float64(cfg.Server.RateLimitPerSecond), cfg.Server.RateLimitBurst)
	apiGroup := e.Group("/api", limiter.Middleware())
	deps.ConversionHandler.RegisterRoutes(apiGroup)

	return e
}
