package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaot623/gogo/orchestrator/internal/concurrency"
	"github.com/xiaot623/gogo/orchestrator/internal/config"
	"github.com/xiaot623/gogo/orchestrator/internal/graph"
	"github.com/xiaot623/gogo/orchestrator/internal/llm"
	"github.com/xiaot623/gogo/orchestrator/internal/policy"
	"github.com/xiaot623/gogo/orchestrator/internal/repository"
	transport "github.com/xiaot623/gogo/orchestrator/internal/transport/http"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting orchestrator...")
	log.Printf("HTTP port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("LLM mode: %s", cfg.GogoMode)

	store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to initialize store: %v", err)
	}
	defer store.Close()

	llmClient := llm.NewClient(cfg.GogoMode, cfg.ArkBaseURL, cfg.ArkAPIKey, cfg.LLMTimeout)

	governor := concurrency.NewGovernor(cfg.LLMConcurrencyLimitHigh, cfg.LLMConcurrencyLimitLow)

	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("failed to initialize policy engine: %v", err)
	}

	engine := graph.NewEngine(store, llmClient, governor, policyEngine, cfg)

	server := transport.NewServer(store, engine, cfg)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	log.Printf("Market insight API started on port %d", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("failed to shutdown server gracefully: %v", err)
	}

	log.Println("Orchestrator stopped")
}
