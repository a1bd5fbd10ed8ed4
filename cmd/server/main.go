package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/rs/cors"

	"cbt-companion/internal/config"
	"cbt-companion/internal/core"
	"cbt-companion/internal/db"
	httpserver "cbt-companion/internal/http"
	"cbt-companion/internal/llm"
	"cbt-companion/internal/logger"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL must be set")
	}

	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("open database", "error", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbConn.PingContext(pingCtx); err != nil {
		log.Fatal("ping database", "error", err)
	}
	if err := db.Migrate(context.Background(), dbConn); err != nil {
		log.Fatal("run migrations", "error", err)
	}
	repo := db.NewRepository(dbConn)
	notifier := db.NewNotifier(dbConn, cfg.DatabaseURL, cfg.RiskAlertChannel, log)

	rules, err := config.LoadSafetyRules(cfg.SafetyRulesFile)
	if err != nil {
		log.Fatal("load safety rules", "error", err)
	}
	log.Info("safety rules loaded", "version", rules.Version)

	llmClient := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.ChatModel, cfg.RiskModel)

	riskClassifier, err := core.NewRiskClassifier(rules, llmClient, cfg.ClassifierTimeout, log)
	if err != nil {
		log.Fatal("build risk classifier", "error", err)
	}
	distressAssessor, err := core.NewDistressAssessor(rules)
	if err != nil {
		log.Fatal("build distress assessor", "error", err)
	}

	crisis := core.NewCrisisProtocol()
	pipeline := core.NewPipeline(
		riskClassifier,
		distressAssessor,
		core.NewGroundingCatalog(),
		crisis,
		core.NewConversationPolicy(crisis, log),
		llmClient,
		cfg.GenerationTimeout,
		log,
	)

	srv := httpserver.NewServer(repo, pipeline, core.NewStructuredFlow(), notifier, cfg.MessageCap, cfg.DefaultCountry, log)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(srv)

	addr := ":" + cfg.Port
	log.Info("listening", "addr", addr, "environment", cfg.Environment)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal("server error", "error", err)
	}
}
