// Copyright 2025 SupportFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package support is the customer-support platform core: the conversation
// pipeline, the human-approval escalation workflow, the order ledger, the
// audit trail, and the HTTP surface that exposes them.
package support

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"supportflow/platform/shared/logger"
	"supportflow/platform/support/knowledge"
	"supportflow/platform/support/llm"
)

// Config holds the service configuration loaded from the environment.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	AgentToken  string
	AdminToken  string
	OpenAIKey   string
	EmbedModel  string
	LLMTimeout  time.Duration
}

// LoadConfig reads service configuration from environment variables.
// Tokens and keys resolve through the _FILE Docker-secrets fallback.
func LoadConfig() Config {
	timeout := 30 * time.Second
	if raw := os.Getenv("LLM_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			timeout = d
		} else {
			log.Printf("Warning: invalid LLM_TIMEOUT %q, using %v", raw, timeout)
		}
	}

	return Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost/supportflow?sslmode=disable"),
		RedisURL:    os.Getenv("REDIS_URL"),
		AgentToken:  getSecret("AGENT_TOKEN"),
		AdminToken:  getSecret("ADMIN_TOKEN"),
		OpenAIKey:   getSecret("OPENAI_API_KEY"),
		EmbedModel:  os.Getenv("EMBEDDING_MODEL"),
		LLMTimeout:  timeout,
	}
}

// Run is the exported entry point for the support service.
//
// It connects to Postgres, applies migrations, builds the knowledge base
// index, wires the LLM provider chain, sets up HTTP routes, and starts the
// server. The function blocks until the server shuts down.
//
// Environment variables used:
//   - PORT: HTTP server port (default: 8080)
//   - DATABASE_URL: PostgreSQL connection string
//   - REDIS_URL: embedding cache (optional)
//   - AGENT_TOKEN / ADMIN_TOKEN: shared secrets for agent and admin routes
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, BEDROCK_REGION: LLM providers (optional)
//   - LLM_TIMEOUT: per-request budget for retrieval plus the LLM call (default: 30s)
func Run() {
	log.Println("Starting SupportFlow platform...")

	config := LoadConfig()
	if config.AgentToken == "" {
		log.Println("Warning: AGENT_TOKEN not set, agent routes will reject all requests")
	}
	if config.AdminToken == "" {
		log.Println("Warning: ADMIN_TOKEN not set, admin routes will reject all requests")
	}

	db, err := OpenStore(config.DatabaseURL)
	if err != nil {
		log.Fatalf("Database unavailable: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := Migrate(db); err != nil {
		log.Fatalf("Migrations failed: %v", err)
	}

	entries, err := knowledge.DefaultEntries()
	if err != nil {
		log.Fatalf("Knowledge base unavailable: %v", err)
	}

	var embedder knowledge.Embedder
	if config.OpenAIKey != "" {
		embedder = knowledge.NewOpenAIEmbedder("", config.OpenAIKey, config.EmbedModel)
	}

	var cache *knowledge.EmbeddingCache
	if config.RedisURL != "" {
		cache, err = knowledge.NewEmbeddingCache(config.RedisURL, time.Hour)
		if err != nil {
			log.Printf("Warning: embedding cache disabled: %v", err)
			cache = nil
		} else {
			defer func() { _ = cache.Close() }()
		}
	}

	retriever := knowledge.NewRetriever(entries, embedder, cache)
	if embedder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := retriever.BuildIndex(ctx); err != nil {
			log.Printf("Warning: knowledge base index incomplete, keyword search only: %v", err)
		}
		cancel()
	}

	router := llm.NewRouter(llm.LoadConfig())
	appLog := logger.New("support")

	ledger := NewLedger(db)
	audit := NewAudit(db)
	srv := &server{
		conversations: NewConversations(router, retriever, ledger, audit, appLog, config.LLMTimeout),
		escalations:   NewEscalations(db),
		ledger:        ledger,
		audit:         audit,
		metrics:       NewMetrics(db),
		router:        router,
		agentToken:    config.AgentToken,
		adminToken:    config.AdminToken,
	}

	r := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	// Health check
	r.HandleFunc("/health", srv.handleHealth).Methods("GET")

	// Metrics endpoints
	r.HandleFunc("/metrics", srv.handleMetrics).Methods("GET")  // JSON snapshot
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")  // Prometheus native format

	// Customer endpoints
	r.HandleFunc("/api/chat", srv.handleChat).Methods("POST")
	r.HandleFunc("/api/orders/{orderID}", srv.handleGetOrder).Methods("GET")
	r.HandleFunc("/api/escalate", srv.handleEscalate).Methods("POST")

	// Agent endpoints (Bearer AGENT_TOKEN)
	r.HandleFunc("/api/agent/pending", srv.requireAgent(srv.handlePendingEscalations)).Methods("GET")
	r.HandleFunc("/api/agent/approve", srv.requireAgent(srv.handleApprove)).Methods("POST")

	// Admin endpoints (?token=ADMIN_TOKEN)
	r.HandleFunc("/admin/audit", srv.requireAdmin(srv.handleAudit)).Methods("GET")

	handler := c.Handler(r)
	log.Printf("SupportFlow platform listening on port %s", config.Port)
	log.Fatal(http.ListenAndServe(":"+config.Port, handler))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getSecret(name string) string {
	// First try environment variable
	if value := os.Getenv(name); value != "" {
		return value
	}

	// Then try file-based secret (Docker secrets pattern)
	if filePath := os.Getenv(name + "_FILE"); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}
