// Package app assembles the interview backend from its parts: store, AI
// provider, billing rates, metrics, engine and HTTP surface.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/novahire/novahire/internal/ai"
	"github.com/novahire/novahire/internal/billing"
	"github.com/novahire/novahire/internal/cache"
	"github.com/novahire/novahire/internal/config"
	"github.com/novahire/novahire/internal/engine"
	"github.com/novahire/novahire/internal/httpapi"
	"github.com/novahire/novahire/internal/interview"
	"github.com/novahire/novahire/internal/jobs"
	"github.com/novahire/novahire/internal/observability"
	"github.com/novahire/novahire/internal/progression"
)

// App is a fully wired backend ready to serve.
type App struct {
	Handler http.Handler
	Store   interview.Store
	Engine  *engine.Engine

	cancelJanitor context.CancelFunc
}

// Build wires every component from config. The returned App owns the store;
// call Close on shutdown.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	store, err := interview.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	var jobsLookup jobs.Lookup
	if pg, ok := store.(*interview.PostgresStore); ok {
		jobsLookup, err = jobs.NewPostgresLookup(ctx, pg.Pool())
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("jobs lookup: %w", err)
		}
	} else {
		jobsLookup = jobs.NewMemoryLookup()
	}

	provider, err := ai.NewProvider(ai.FactoryConfig{
		Mode:    cfg.AIProviderMode,
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.ChatModel,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("ai provider: %w", err)
	}
	log.Info("ai provider ready", zap.String("model", provider.ModelID()))

	for model, rate := range cfg.ChatRateOverrides {
		billing.RegisterModelRate(model, rate)
		log.Info("chat rate override applied", zap.String("model", model))
	}

	rates := billing.NewRates(
		cfg.RateSTTPerMinute,
		cfg.RateTTSPer1KChars,
		cfg.RateRealtimeAudioInMin,
		cfg.RateRealtimeAudioOutMin,
		cfg.RateRealtimeTextIn1K,
		cfg.RateRealtimeTextOut1K,
	)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	explanations := cache.NewTTL(cfg.ExplanationCacheTTL)
	janitorCtx, cancelJanitor := context.WithCancel(context.Background())
	explanations.StartJanitor(janitorCtx, cfg.ExplanationCacheTTL)

	eng := engine.New(store, provider, jobsLookup, rates, metrics, log, engine.Config{
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		HistoryWindow: cfg.HistoryWindowExchanges,
		TruncateKeep:  cfg.TruncateKeepExchanges,
		Progression: progression.Config{
			PromoteStreak:    cfg.PromoteStreak,
			PromoteThreshold: cfg.PromoteThreshold,
			DemoteStreak:     cfg.DemoteStreak,
			DemoteThreshold:  cfg.DemoteThreshold,
			SlowResponseSecs: cfg.SlowResponseSecs,
		},
	}, explanations)

	srv := httpapi.New(cfg, store, eng, metrics, log)

	return &App{
		Handler:       srv.Router(),
		Store:         store,
		Engine:        eng,
		cancelJanitor: cancelJanitor,
	}, nil
}

func (a *App) Close() error {
	if a.cancelJanitor != nil {
		a.cancelJanitor()
	}
	return a.Store.Close()
}
