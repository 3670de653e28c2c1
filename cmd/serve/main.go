package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thyrook/thinkmate/internal/api"
	"github.com/thyrook/thinkmate/internal/config"
	"github.com/thyrook/thinkmate/internal/decision"
	"github.com/thyrook/thinkmate/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	modelPath := flag.String("model", "", "Path to trained model")
	port := flag.Int("port", 0, "Listen port")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	session, err := decision.NewSession(cfg.Model.Path, logger)
	if err != nil {
		logger.Error("Failed to load model", zap.String("path", cfg.Model.Path), zap.Error(err))
		os.Exit(1)
	}
	defer session.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(session, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Serving", zap.String("addr", srv.Addr), zap.String("model", cfg.Model.Path))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", zap.Error(err))
		os.Exit(1)
	}

	decisions, failures := session.Stats()
	logger.Info("Server stopped", zap.Int("decisions", decisions), zap.Int("failures", failures))
}
