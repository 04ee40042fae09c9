package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	apigazette "bundesanzeiger_insight/pkg/api/gazette"
	"bundesanzeiger_insight/pkg/core/config"
	"bundesanzeiger_insight/pkg/core/extract"
	"bundesanzeiger_insight/pkg/core/gazette"
	"bundesanzeiger_insight/pkg/core/llm"
	"bundesanzeiger_insight/pkg/core/service"
	"bundesanzeiger_insight/pkg/core/store"
)

func main() {
	cfg, err := config.Load("config/service.yaml")
	if err != nil {
		fmt.Printf("[ERROR] Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx := context.Background()
	if err := store.InitDB(ctx, cfg.DatabaseURL()); err != nil {
		log.Warnf("Database unavailable, using file cache: %v", err)
	}
	defer store.Close()

	cache := store.NewCache(store.GetPool(), cfg.Cache.FileDir, cfg.Cache.TTL.Std(), log)
	if err := cache.EnsureSchema(ctx); err != nil {
		log.Warnf("Cache schema check failed, degrading: %v", err)
	}

	var provider llm.Provider
	switch cfg.Extraction.Provider {
	case "gemini":
		provider = &llm.GeminiProvider{Model: cfg.Extraction.Model}
	default:
		provider = llm.NewOpenRouterProvider(cfg.Extraction.Model, cfg.Extraction.Timeout.Std())
	}
	log.Infof("Extraction provider: %s", provider.Name())

	var solver gazette.ChallengeSolver
	if cfg.Challenge.SolverURL != "" {
		solver = gazette.NewHTTPSolver(cfg.Challenge.SolverURL)
	} else {
		log.Warn("No challenge solver configured; gated reports will fail")
	}

	client := gazette.NewClient(cfg, solver, log)
	engine := extract.NewEngine(provider, cfg.Extraction.MaxRetries, cfg.Extraction.Timeout.Std(), log)
	svc := service.New(client, engine, cache, cfg.Match.MinSimilarity, log)

	handler := apigazette.NewHandler(svc, log)
	http.HandleFunc("/api/search", handler.HandleSearch)
	http.HandleFunc("/api/analyze", handler.HandleAnalyze)
	http.HandleFunc("/api/timeline", handler.HandleTimeline)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Infof("Listening on :%s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
