package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/image-classifier/internal/config"
	"github.com/Brownie44l1/image-classifier/internal/handlers"
	"github.com/Brownie44l1/image-classifier/internal/logger"
	"github.com/Brownie44l1/image-classifier/internal/metric"
	"github.com/Brownie44l1/image-classifier/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.AppName, cfg.AppLogLevel)
	if err := metric.Init(cfg.StatsdAddress, cfg.AppName, cfg.AppEnv, cfg.MetricSamplingRate); err != nil {
		log.Warn().Err(err).Msg("Continuing without metrics")
	}
	defer metric.Close()

	log.Info().Msgf("Loading model from: %s", cfg.ModelPath)

	p, err := pipeline.FromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Classification unavailable")
	}
	defer p.Close()

	dispatcher := pipeline.NewDispatcher(p, cfg.WorkerCount, cfg.WorkerQueueSize)
	defer dispatcher.Close()

	r := mux.NewRouter()
	handlers.NewHandler(p, dispatcher, cfg.ClassifyTimeout).Routes(r)

	srv := &http.Server{
		Handler:      handlers.CORS(r),
		Addr:         ":" + strconv.Itoa(cfg.AppPort),
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	log.Info().Msgf("Classes: %v", p.Labels())
	log.Info().Msg("Endpoints:")
	log.Info().Msg("  GET  /health        - Health check")
	log.Info().Msg("  GET  /metrics       - Worker queue counters")
	log.Info().Msg("  POST /predict       - Raw tensor prediction")
	log.Info().Msg("  POST /predict/image - Predict from image upload (field 'image', optional ?top=k)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Msgf("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Graceful shutdown failed")
	}
}
