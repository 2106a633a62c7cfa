package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/coord"
	"github.com/fixflow/backend/internal/db"
	"github.com/fixflow/backend/internal/dedupe"
	"github.com/fixflow/backend/internal/geocode"
	httpapi "github.com/fixflow/backend/internal/http"
	"github.com/fixflow/backend/internal/llm"
	"github.com/fixflow/backend/internal/notify"
	"github.com/fixflow/backend/internal/service"
	"github.com/fixflow/backend/internal/triage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "fixflow-backend").Logger()

	ctx := context.Background()

	var store db.Store
	if cfg.DatabaseURL == "" {
		store = db.NewMemory()
		logger.Warn().Msg("no DATABASE_URL, using in-memory store")
	} else {
		pg, err := db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		store = pg
	}
	defer store.Close()

	buildings := splitList(cfg.Buildings)

	var adapter llm.Adapter
	switch {
	case cfg.LLMAPIKey != "":
		adapter = llm.NewOpenAIAdapter(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMTimeout)
		logger.Info().Str("model", cfg.LLMModel).Msg("using OpenAI adapter")
	case cfg.ExtractorURL != "":
		adapter = llm.ExtractorAdapter{BaseURL: cfg.ExtractorURL}
		logger.Info().Str("url", cfg.ExtractorURL).Msg("using extractor adapter")
	default:
		adapter = llm.MockAdapter{ModelVersion: "mock-v1", Buildings: buildings}
		logger.Info().Msg("using mock adapter")
	}

	var geocoder geocode.Geocoder
	if cfg.GeocodeURL != "" {
		geocoder = &geocode.NominatimGeocoder{
			BaseURL:     cfg.GeocodeURL,
			MinInterval: time.Second,
		}
	}

	dispatcher := &notify.Dispatcher{
		Sender: notify.LogSender{Logger: logger},
		Logger: logger,
	}

	engine := &triage.Engine{
		Store:              store,
		LLM:                adapter,
		Notify:             dispatcher,
		Logger:             logger,
		Buildings:          buildings,
		RequireContactInfo: cfg.Policies.ContactInfoRequired,
	}

	detector := &dedupe.Detector{
		LLM:                adapter,
		Logger:             logger,
		FailOpen:           cfg.Policies.DuplicateFailOpen,
		AutoMergeThreshold: cfg.Policies.AutoMergeThreshold,
	}

	pipeline := &service.Pipeline{
		Store:          store,
		Detector:       detector,
		Dispatcher:     dispatcher,
		Geocoder:       geocoder,
		CountryDefault: cfg.CountryDefault,
		Logger:         logger,
	}

	coordinator := &coord.Coordinator{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
	}

	router := httpapi.Router(cfg, store, engine, pipeline, coordinator, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
