// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServiceConfig is the process-level configuration for the enforcer
// service, assembled from the environment at startup.
type ServiceConfig struct {
	// ListenAddr is the host:port the HTTP server binds.
	ListenAddr string

	// WeaviateHost and WeaviateScheme locate the vector store.
	WeaviateHost   string
	WeaviateScheme string

	// EmbeddingServiceURL is the base URL of the embedding sidecar.
	EmbeddingServiceURL string

	// LLMBaseURL overrides the OpenAI API endpoint (empty means the
	// provider default). LLMModel names the chat model.
	LLMBaseURL string
	LLMModel   string

	// LLMRequestsPerMinute throttles outbound generation calls.
	LLMRequestsPerMinute int

	// LedgerPath is the on-disk badger directory for the audit ledger.
	// Empty selects an in-memory ledger (tests, local dev).
	LedgerPath string

	// OTLPEndpoint receives traces; empty disables the exporter.
	OTLPEndpoint string

	// ComplianceCacheTTL bounds staleness of the polled compliance
	// snapshot.
	ComplianceCacheTTL time.Duration

	// ThresholdFile optionally overrides the default threshold table.
	ThresholdFile string
}

// FromEnv builds a ServiceConfig from BEACON_* environment variables,
// falling back to local-development defaults.
func FromEnv() ServiceConfig {
	return ServiceConfig{
		ListenAddr:           envOr("BEACON_LISTEN_ADDR", ":8092"),
		WeaviateHost:         envOr("WEAVIATE_HOST", "localhost:8080"),
		WeaviateScheme:       envOr("WEAVIATE_SCHEME", "http"),
		EmbeddingServiceURL:  envOr("EMBEDDING_SERVICE_URL", "http://localhost:8081"),
		LLMBaseURL:           os.Getenv("BEACON_LLM_BASE_URL"),
		LLMModel:             envOr("BEACON_LLM_MODEL", "gpt-4o"),
		LLMRequestsPerMinute: envIntOr("BEACON_LLM_RPM", 30),
		LedgerPath:           os.Getenv("BEACON_LEDGER_PATH"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ComplianceCacheTTL:   envDurationOr("BEACON_COMPLIANCE_CACHE_TTL", 20*time.Second),
		ThresholdFile:        os.Getenv("BEACON_THRESHOLD_FILE"),
	}
}

// Validate checks the fields the server cannot limp along without.
func (c ServiceConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.WeaviateHost == "" {
		return fmt.Errorf("weaviate host must not be empty")
	}
	if c.EmbeddingServiceURL == "" {
		return fmt.Errorf("embedding service URL must not be empty")
	}
	if c.LLMRequestsPerMinute < 1 {
		return fmt.Errorf("llm requests per minute must be at least 1, got %d", c.LLMRequestsPerMinute)
	}
	if c.ComplianceCacheTTL <= 0 {
		return fmt.Errorf("compliance cache TTL must be positive, got %s", c.ComplianceCacheTTL)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
