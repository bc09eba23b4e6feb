package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/Brownie44l1/effnet-api/internal/config"
	"github.com/Brownie44l1/effnet-api/internal/fetch"
	"github.com/Brownie44l1/effnet-api/internal/gpu"
	"github.com/Brownie44l1/effnet-api/internal/handlers"
	"github.com/Brownie44l1/effnet-api/internal/labels"
	"github.com/Brownie44l1/effnet-api/internal/metrics"
	"github.com/Brownie44l1/effnet-api/internal/model"
	"github.com/Brownie44l1/effnet-api/internal/preprocess"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func NewLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func ProvideLabels(cfg *config.Config, logger *slog.Logger) (*labels.Table, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Labels.Timeout)
	defer cancel()
	return labels.Resolve(ctx, labels.Source{
		Path:   cfg.Labels.Path,
		URL:    cfg.Labels.URL,
		Client: &http.Client{Timeout: cfg.Labels.Timeout},
	}, logger.With("component", "labels"))
}

func ProvideSession(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*model.Session, error) {
	session, err := model.NewSession(model.SessionConfig{
		ModelPath:   cfg.Model.Path,
		LibraryPath: cfg.Model.LibraryPath,
		Threads:     cfg.Model.Threads,
	}, logger.With("component", "model"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			session.Close()
			return nil
		},
	})
	return session, nil
}

func ProvidePredictor(session *model.Session, table *labels.Table, cfg *config.Config, logger *slog.Logger) (*model.Predictor, error) {
	filter, err := preprocess.ParseFilter(cfg.Model.Resample)
	if err != nil {
		return nil, err
	}
	return model.NewPredictor(session, table, filter, logger.With("component", "predictor")), nil
}

func ProvideFetcher(cfg *config.Config) *fetch.Client {
	return fetch.NewClient(fetch.Config{
		Timeout:      cfg.Fetch.Timeout,
		MaxBytes:     cfg.Fetch.MaxBytes,
		MaxRedirects: cfg.Fetch.MaxRedirects,
	})
}

func ProvideGPUProbe(cfg *config.Config) gpu.Probe {
	return gpu.NewCommand(cfg.GPU.Command)
}

type HandlerParams struct {
	fx.In

	Predictor *model.Predictor
	Fetcher   *fetch.Client
	GPU       gpu.Probe
	Metrics   *metrics.Metrics
	Labels    *labels.Table
	Logger    *slog.Logger
}

func ProvideHandler(p HandlerParams) *handlers.Handler {
	return handlers.NewHandler(handlers.Deps{
		Classifier: p.Predictor,
		Images:     p.Fetcher,
		GPU:        p.GPU,
		Observer:   p.Metrics,
		LabelCount: p.Labels.Len(),
		Logger:     p.Logger.With("handler", "predict"),
	})
}

func ProvideRouter(h *handlers.Handler, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	return handlers.NewRouter(h, handlers.RouterConfig{
		StaticDir:  cfg.Static.Dir,
		Metrics:    m.Handler(),
		Middleware: []gin.HandlerFunc{m.Middleware(handlers.StaticPrefix)},
	}, logger.With("component", "http"))
}

func StartHTTPServer(lc fx.Lifecycle, router *gin.Engine, cfg *config.Config, logger *slog.Logger) {
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return err
			}
			go func() {
				logger.Info("HTTP server starting", "addr", server.Addr)
				if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("HTTP server stopping")
			return server.Shutdown(ctx)
		},
	})
}

// Module is the full dependency graph minus config and logger, which Run
// supplies so startup failures can be reported.
var Module = fx.Options(
	fx.Provide(
		metrics.New,
		ProvideLabels,
		ProvideSession,
		ProvidePredictor,
		ProvideFetcher,
		ProvideGPUProbe,
		ProvideHandler,
		ProvideRouter,
	),
	fx.Invoke(StartHTTPServer),
)

func Run() {
	_ = godotenv.Load()

	cfg, err := config.Load(getEnv("CONFIG_FILE", "config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := NewLogger(cfg)

	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg, logger),
		Module,
		fx.StartTimeout(2*time.Minute),
	)
	if err := app.Err(); err != nil {
		logger.Error("failed to start service", "error", err)
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Error("failed to start service", "error", err)
		os.Exit(1)
	}

	sig := <-app.Done()
	logger.Info("shutting down", "signal", sig.String())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
