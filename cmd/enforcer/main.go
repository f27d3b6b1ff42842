// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command enforcer starts the Beacon grounded-generation enforcement
// service.
//
// # Environment Variables
//
//   - BEACON_LISTEN_ADDR: HTTP bind address (default: :8092)
//   - WEAVIATE_HOST / WEAVIATE_SCHEME: vector store location
//   - EMBEDDING_SERVICE_URL: embedding sidecar base URL
//   - BEACON_LLM_BASE_URL / BEACON_LLM_MODEL / BEACON_LLM_RPM: provider settings
//   - OPENAI_API_KEY: provider credential (or /run/secrets/openai_api_key)
//   - BEACON_LEDGER_PATH: badger directory (empty: in-memory, dev only)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: trace collector (empty: tracing off)
//   - BEACON_THRESHOLD_FILE: optional threshold override file
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/beaconhq/beacon/pkg/logging"
	"github.com/beaconhq/beacon/services/enforcer"
	"github.com/beaconhq/beacon/services/enforcer/compliance"
	"github.com/beaconhq/beacon/services/enforcer/config"
	"github.com/beaconhq/beacon/services/enforcer/gate"
	"github.com/beaconhq/beacon/services/enforcer/generation"
	"github.com/beaconhq/beacon/services/enforcer/ledger"
	"github.com/beaconhq/beacon/services/enforcer/observability"
	"github.com/beaconhq/beacon/services/enforcer/retrieval"
	"github.com/beaconhq/beacon/services/enforcer/routes"
	"github.com/beaconhq/beacon/services/enforcer/store"
	"github.com/beaconhq/beacon/services/llm"
	"github.com/beaconhq/beacon/services/policy"
)

var rootCmd = &cobra.Command{
	Use:   "enforcer",
	Short: "Beacon grounded-generation enforcement service",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initTracer wires the OTLP gRPC exporter. Returns a shutdown func.
func initTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("beacon-enforcer")))
	if err != nil {
		return nil, err
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter)))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func serve() error {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(logging.Config{Service: "enforcer"})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		cleanup, err := initTracer(ctx, cfg.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("failed to setup the OTLP tracer: %w", err)
		}
		defer cleanup(context.Background())
	}

	thresholds := config.DefaultThresholds()
	if cfg.ThresholdFile != "" {
		var err error
		thresholds, err = config.LoadThresholds(cfg.ThresholdFile)
		if err != nil {
			return fmt.Errorf("failed to load thresholds: %w", err)
		}
	}

	weaviateClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create the Weaviate client: %w", err)
	}

	embedder, err := retrieval.NewHTTPEmbedder(cfg.EmbeddingServiceURL)
	if err != nil {
		return err
	}
	retrieverConfig := retrieval.DefaultRetrieverConfig()
	retrieverConfig.DefaultLimit = thresholds.RetrievalLimit
	retriever, err := retrieval.NewWeaviateRetriever(weaviateClient, embedder, retrieverConfig)
	if err != nil {
		return err
	}

	llmClient, err := llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMRequestsPerMinute)
	if err != nil {
		return fmt.Errorf("failed to create the LLM client: %w", err)
	}
	generator, err := generation.NewDraftGenerator(llmClient, 0)
	if err != nil {
		return err
	}

	scanner, err := policy.NewEngine()
	if err != nil {
		return fmt.Errorf("failed to initialize the policy engine: %w", err)
	}

	ledgerConfig := ledger.InMemoryConfig()
	if cfg.LedgerPath != "" {
		ledgerConfig = ledger.DefaultConfig(cfg.LedgerPath)
	} else {
		slog.Warn("BEACON_LEDGER_PATH not set, using an in-memory ledger; audit records will not survive a restart")
	}
	auditLedger, err := ledger.Open(ledgerConfig)
	if err != nil {
		return fmt.Errorf("failed to open the ledger: %w", err)
	}
	defer auditLedger.Close()

	proposalStore, err := store.NewWeaviateStore(weaviateClient)
	if err != nil {
		return err
	}

	metrics := observability.InitMetrics()
	service, err := enforcer.NewService(enforcer.ServiceDeps{
		Thresholds:    thresholds,
		Retriever:     retriever,
		Generator:     generator,
		Scanner:       scanner,
		Organizations: proposalStore,
		Proposals:     proposalStore,
		Recorder:      auditLedger,
		Auditor:       auditLedger,
		Snapshots:     compliance.NewSnapshotCache(cfg.ComplianceCacheTTL),
		Decisions:     gate.NewResultCache(cfg.ComplianceCacheTTL),
		Logger:        logger.Slog(),
	})
	if err != nil {
		return err
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("beacon-enforcer"))
	routes.SetupRoutes(router, service, metrics)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting the enforcer server", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
