package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/pagewatch/internal/api"
	"github.com/vitaliisemenov/pagewatch/internal/config"
	"github.com/vitaliisemenov/pagewatch/internal/engine"
	"github.com/vitaliisemenov/pagewatch/internal/pageagent/fake"
	"github.com/vitaliisemenov/pagewatch/pkg/logger"
)

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "run against the in-memory fake Page Agent instead of a real browser host")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Boot the page-watch engine and its Command/Query API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg)
	slog.SetDefault(log)
	log.Info("starting page-watch engine", "profile", cfg.Profile, "dev_mode", devMode)

	if !devMode {
		return fmt.Errorf("no Page Agent host wired: pagewatch is a library engine consumed by a browser-extension " +
			"or headless-browser host; run with --dev to exercise it against the in-memory fake agent")
	}
	agent := fake.New()

	eng, err := engine.New(ctx, cfg, agent, log)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	stream := api.NewActivityStream(log)
	streamStop := make(chan struct{})
	go stream.Run(streamStop)
	eng.Log.OnAppend = stream.Publish

	router := api.NewRouter(api.Config{
		Handlers: &api.Handlers{
			Supervisor: eng.Supervisor,
			Pipeline:   eng.Pipeline,
			Log:        eng.Log,
			Agent:      agent,
			Logger:     log,
			Ready:      eng.Ready,
		},
		Stream: stream,
		Logger: log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("http server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
		}
	}()

	<-quit
	log.Info("shutting down")

	close(streamStop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", "error", err)
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Error("engine shutdown error", "error", err)
	}

	log.Info("shutdown complete")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
}
