// File path: cmd/farmchat/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/agrisense/farmchat/internal/api"
	"github.com/agrisense/farmchat/internal/catalog"
	"github.com/agrisense/farmchat/internal/common"
	"github.com/agrisense/farmchat/internal/dataset"
	"github.com/agrisense/farmchat/internal/ingest"
	"github.com/agrisense/farmchat/internal/llm"
	"github.com/agrisense/farmchat/internal/orchestrator"
	"github.com/agrisense/farmchat/internal/vector"
	"github.com/agrisense/farmchat/internal/websearch"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("farmchat: .env file not loaded", "error", err)
	} else {
		logger.Info("farmchat: environment loaded from .env")
	}

	addr := flag.String("addr", ":8082", "listen address")
	catalogPath := flag.String("catalog", defaultCatalogPath(), "path to the SQLite catalog database")
	autoStartDefault := false
	if env := strings.TrimSpace(os.Getenv("FARMCHAT_AUTOSTART_CHROMA")); env != "" {
		if parsed, err := strconv.ParseBool(env); err == nil {
			autoStartDefault = parsed
		}
	}
	autoStartChroma := flag.Bool("auto-start-chroma", autoStartDefault, "launch a local ChromaDB server and wait for it")
	flag.Parse()

	logger.Info("farmchat: startup initiated", "addr", *addr)

	if *autoStartChroma {
		service, err := startChromaService(ctx, logger)
		if err != nil {
			logger.Error("farmchat: failed to launch chromadb", "error", err)
			fmt.Println("chromadb startup error:", err)
			os.Exit(1)
		}
		defer func() {
			if err := service.Stop(context.Background()); err != nil {
				logger.Warn("farmchat: chromadb shutdown returned error", "error", err)
			}
		}()
	}

	store, err := vector.NewFromEnv(ctx)
	if err != nil {
		logger.Error("farmchat: chromadb initialization failed", "error", err)
		fmt.Println("vector store error:", err)
		os.Exit(1)
	}
	if store.Available() {
		logger.Info("farmchat: chromadb available",
			"documents", store.DocumentCollection(), "data", store.DataCollection())
	} else {
		logger.Warn("farmchat: chromadb unreachable")
	}

	provider := llm.NewProvider()
	logger.Info("farmchat: llm provider ready", "provider", provider.Name())

	if err := os.MkdirAll(filepath.Dir(*catalogPath), 0o755); err != nil {
		logger.Error("farmchat: catalog directory creation failed", "error", err)
		fmt.Println("catalog error:", err)
		os.Exit(1)
	}
	cat, err := catalog.Open(*catalogPath)
	if err != nil {
		logger.Error("farmchat: catalog open failed", "error", err)
		fmt.Println("catalog error:", err)
		os.Exit(1)
	}
	defer cat.Close()

	orchCfg, err := orchestrator.LoadConfig()
	if err != nil {
		logger.Error("farmchat: orchestrator config load failed", "error", err)
		fmt.Println("orchestrator config error:", err)
		os.Exit(1)
	}

	registry := dataset.NewColumnRegistry()
	web := websearch.New(websearch.DefaultConfig())
	orch := orchestrator.New(provider, store, registry, web, orchCfg)

	warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := orch.WarmRegistry(warmCtx); err != nil {
		logger.Warn("farmchat: column registry warm-up failed", "error", err)
	}
	warmCancel()

	ingestor := ingest.New(provider, store, registry)
	server := api.NewServer(orch, ingestor, cat, store, provider)

	logger.Info("farmchat: server listening", "addr", *addr, "health", "/healthz")
	fmt.Printf("Serving on %s\n", *addr)
	reachable := *addr
	if strings.HasPrefix(reachable, ":") {
		reachable = "localhost" + reachable
	}
	logger.Info("farmchat: verify reachability", "suggestion", fmt.Sprintf("curl http://%s/healthz", reachable))
	if err := http.ListenAndServe(*addr, server); err != nil {
		logger.Error("farmchat: server stopped", "error", err)
		fmt.Println("server stopped:", err)
	}
}

func defaultCatalogPath() string {
	return filepath.Join("data", "catalog.db")
}
