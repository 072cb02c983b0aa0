package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"pitlog/internal/analytics"
	"pitlog/internal/config"
	"pitlog/internal/recordsmcp"
	"pitlog/internal/registry"
	"pitlog/internal/storage"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	storeCfg, logCfg, err := config.ParseStore()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger, err := logCfg.Logger()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	loc, err := storeCfg.Location()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storeCfg.Options())
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	collector := analytics.NewCollector(store, registry.New(store, storeCfg.UsersTable), storeCfg.SessionsTable)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "pitlog-records-mcp",
		Version: "1.0.0",
	}, nil)
	recordsmcp.NewServer(collector, loc, logger).Register(server)

	logger.Info("starting records MCP server on stdin/stdout", zap.String("backend", storeCfg.Backend))
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
}
