package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"interview-gateway/internal/appstatus"
	"interview-gateway/internal/backend"
	"interview-gateway/internal/config"
	"interview-gateway/internal/httpapi"
	"interview-gateway/internal/logging"
	"interview-gateway/internal/metrics"
	"interview-gateway/internal/recording"
	"interview-gateway/internal/session"
	"interview-gateway/internal/storage"
	"interview-gateway/internal/store"
	"interview-gateway/internal/transcribe"
)

// cleanupInterval период проверки брошенных сессий
const cleanupInterval = time.Hour

func newServeCommand() *cobra.Command {
	var configPath string
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP сервер интервью",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFile, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML с настройками интервью (по умолчанию INTERVIEW_CONFIG)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Файл с переменными окружения")
	return cmd
}

func runServe(ctx context.Context, envFile, configPath string) error {
	fmt.Println("🚀 Запуск interview-gateway...")

	// .env необязателен: в контейнере переменные приходят из окружения
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка загрузки %s: %w", envFile, err)
	}

	appCfg := config.LoadAppConfig()
	if configPath != "" {
		appCfg.InterviewConfigPath = configPath
	}

	cfg, err := config.LoadOrDefault(appCfg.InterviewConfigPath)
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации интервью: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:      appCfg.Log.Level,
		Format:     appCfg.Log.Format,
		File:       appCfg.Log.File,
		MaxSizeMB:  appCfg.Log.MaxSizeMB,
		MaxBackups: appCfg.Log.MaxBackups,
	})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := store.Open(appCfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.NewMetrics()
	backendClient := backend.New(backend.Config{
		BaseURL:     appCfg.Backend.URL,
		Timeout:     appCfg.Backend.Timeout,
		AttachAudio: appCfg.Backend.AttachAudio,
	}, logger)

	var transcriber session.Transcriber
	if err := appCfg.OpenAI.ValidateConfig(); err != nil {
		logger.Warn("transcription disabled, answers are sent without text", zap.Error(err))
	} else {
		transcriber = transcribe.NewOpenAIClient(transcribe.Config{
			APIKey:  appCfg.OpenAI.APIKey,
			Model:   appCfg.OpenAI.Model,
			BaseURL: appCfg.OpenAI.BaseURL,
			Timeout: appCfg.OpenAI.Timeout,
		}, logger)
		logger.Info("transcription enabled", zap.Any("model", appCfg.OpenAI.GetModelInfo()))
	}

	stager := recording.NewStager(appCfg.Storage.RecordingsDir)
	archive := storage.NewArchive(appCfg.Storage.ResultsDir)

	registry := session.NewRegistry(cfg, session.Shared{
		Stager:      stager,
		Backend:     backendClient,
		Transcriber: transcriber,
		Status:      appstatus.NewSyncer(db),
		Archive:     archive,
		Metrics:     m,
	}, logger)

	limiter := httpapi.NewRateLimiter(appCfg.RateLimit.Requests, appCfg.RateLimit.Window)

	if !appCfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	api := httpapi.New(httpapi.Deps{
		Registry:    registry,
		Jobs:        db,
		Backend:     backendClient,
		Transcriber: transcriber,
		Stager:      stager,
		Archive:     archive,
		Metrics:     m,
		Config:      cfg,
		RateLimiter: limiter,
		Health:      db.Ping,
	}, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.Port),
		Handler:      api.Router(),
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
	}

	fmt.Println("\n📋 Конфигурация:")
	fmt.Printf("• Вопросов в интервью: %d\n", cfg.GetTotalTurns())
	fmt.Printf("• AI-бэкенд: %s\n", appCfg.Backend.URL)
	fmt.Printf("• Записи: %s\n", appCfg.Storage.RecordingsDir)
	fmt.Printf("• Порт: %d\n", appCfg.Server.Port)

	g, gctx := errgroup.WithContext(ctx)
	registry.StartCleanup(gctx, cleanupInterval)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка HTTP сервера: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		window := appCfg.RateLimit.Window
		if window <= 0 {
			window = time.Minute
		}
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := limiter.Prune(); n > 0 {
					logger.Debug("rate limiter pruned", zap.Int("clients", n))
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Int("active_sessions", registry.Len()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.Server.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		registry.CloseAll()
		if err != nil {
			return fmt.Errorf("ошибка остановки HTTP сервера: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}

	snapshot := m.GetSnapshot()
	logger.Info("server stopped", zap.Any("metrics", snapshot))
	fmt.Fprintln(os.Stdout, "👋 Остановлено")
	return nil
}
