// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianStorefront/pkg/extensions"
	"github.com/AleutianAI/AleutianStorefront/pkg/logging"
	"github.com/AleutianAI/AleutianStorefront/services/llm"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/orchestrator"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/resume"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/retrieval"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/store"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/tools"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("storefront-orchestrator")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// initWeaviate builds the Weaviate client from WEAVIATE_SERVICE_URL and
// ensures the schema. The catalog and conversation store are hard
// dependencies of this service; a missing or invalid URL is fatal.
func initWeaviate() *weaviate.Client {
	weaviateURL := os.Getenv("WEAVIATE_SERVICE_URL")
	// Trim quotes and whitespace in case the container runtime passes
	// them literally.
	weaviateURL = strings.Trim(weaviateURL, "\"' ")
	if weaviateURL == "" {
		log.Fatal("WEAVIATE_SERVICE_URL is required")
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		log.Fatalf("WEAVIATE_SERVICE_URL is invalid: %q", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		log.Fatalf("Failed to create Weaviate client: %v", err)
	}
	datatypes.EnsureWeaviateSchema(client)
	return client
}

// initStreamLog opens the durable stream log. A missing or unopenable
// path degrades to non-resumable passthrough rather than failing startup.
func initStreamLog() *resume.DB {
	path := os.Getenv("STREAM_LOG_PATH")
	if path == "" {
		slog.Warn("STREAM_LOG_PATH not set; streams will not be resumable")
		return nil
	}
	db, err := resume.OpenDB(resume.Config{
		Path:       path,
		SyncWrites: true,
		Logger:     slog.Default(),
	})
	if err != nil {
		slog.Error("Failed to open stream log; streams will not be resumable",
			"path", path, "error", err)
		return nil
	}
	return db
}

// startServer runs the HTTP server in the background, reporting a listen
// failure on the returned channel.
func startServer(router *gin.Engine, port string) (*http.Server, <-chan error) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return srv, errCh
}

func main() {
	port := os.Getenv("ORCHESTRATOR_PORT")
	if port == "" {
		port = "12210"
	}

	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  os.Getenv("ORCHESTRATOR_LOG_DIR"),
		Service: "orchestrator",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	weaviateClient := initWeaviate()
	weaviateStore := store.NewWeaviateStore(weaviateClient)
	searcher := retrieval.NewProductSearcher(weaviateClient, retrieval.SearchConfig{})

	streamDB := initStreamLog()
	streamManager := resume.NewManager(streamDB)

	log.Println("Configuring the LLM Client")
	llmClient, err := llm.NewOpenAIClient()
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	registry := tools.NewRegistry()
	for _, t := range []tools.Tool{
		tools.NewSearchProductsTool(searcher),
		tools.NewGetOrderDetailsTool(weaviateStore),
		tools.NewCreateDocumentTool(weaviateStore),
	} {
		if err := registry.Register(t); err != nil {
			log.Fatalf("Failed to register tool: %v", err)
		}
	}

	var requestCeiling time.Duration
	if raw := os.Getenv("STREAM_REQUEST_TIMEOUT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			requestCeiling = time.Duration(secs) * time.Second
		} else {
			slog.Warn("Ignoring invalid STREAM_REQUEST_TIMEOUT_SECONDS", "value", raw)
		}
	}

	orch := orchestrator.NewOrchestrator(llmClient, weaviateStore, searcher,
		streamManager, registry, metrics, orchestrator.Config{
			RequestCeiling:  requestCeiling,
			TitleGeneration: true,
		})

	var authProvider extensions.AuthProvider = &extensions.NopAuthProvider{}

	router := gin.Default()
	router.Use(otelgin.Middleware("storefront-orchestrator"))
	routes.SetupRoutes(router, orch, authProvider, metrics)

	srv, errCh := startServer(router, port)
	log.Println("Starting the orchestrator server on port ", port)

	// Block until a shutdown signal or a server failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		slog.Error("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
	if streamDB != nil {
		if err := streamDB.Close(); err != nil {
			slog.Error("Failed to close stream log", "error", err)
		}
	}
	orchestrator.PurgeSecureMemory()
}
