// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

var retrieverTracer = otel.Tracer("beaconhq.io/enforcer/retrieval")

// SourceChunkClassName is the Weaviate class holding ingested document
// chunks.
const SourceChunkClassName = "SourceChunk"

// ErrRetrievalUnavailable is returned when the vector store cannot be
// reached after all retries.
var ErrRetrievalUnavailable = errors.New("vector store is not available")

// Query scopes one retrieval pass.
type Query struct {
	// OrganizationId is the hard isolation boundary. Every chunk in the
	// result set belongs to this organization; there is no cross-tenant
	// fallback.
	OrganizationId string

	// Text is the semantic query, typically the section name plus its
	// description.
	Text string

	// ProgramArea optionally narrows results to one program.
	ProgramArea string

	// Limit caps the result count. Zero means the configured default.
	Limit int
}

// Retriever finds the source chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, q Query) ([]datatypes.SourceChunk, error)
}

// RetrieverConfig configures the Weaviate retriever.
type RetrieverConfig struct {
	// DefaultLimit is used when Query.Limit is zero.
	DefaultLimit int

	// RetryAttempts is how many times a failed query is retried.
	RetryAttempts int

	// RetryBackoff is the initial backoff; doubled per attempt up to
	// MaxRetryBackoff, with RetryJitter randomness applied.
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	RetryJitter     float64
}

// DefaultRetrieverConfig returns sensible defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		DefaultLimit:    10,
		RetryAttempts:   3,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
		RetryJitter:     0.25,
	}
}

// WeaviateRetriever performs organization-scoped nearVector search.
//
// Thread Safety: Safe for concurrent use after construction.
type WeaviateRetriever struct {
	client   *weaviate.Client
	embedder Embedder
	config   RetrieverConfig
}

// NewWeaviateRetriever creates a retriever.
//
// Inputs:
//
//	client - Weaviate client. Must not be nil.
//	embedder - Embedder for query vectors. Must not be nil.
//	config - Retry and limit settings; zero fields take defaults.
//
// Outputs:
//
//	*WeaviateRetriever - The configured retriever.
//	error - Non-nil if a required collaborator is nil.
func NewWeaviateRetriever(client *weaviate.Client, embedder Embedder, config RetrieverConfig) (*WeaviateRetriever, error) {
	if client == nil {
		return nil, errors.New("client must not be nil")
	}
	if embedder == nil {
		return nil, errors.New("embedder must not be nil")
	}
	if config.DefaultLimit == 0 {
		config.DefaultLimit = DefaultRetrieverConfig().DefaultLimit
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = DefaultRetrieverConfig().RetryAttempts
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = DefaultRetrieverConfig().RetryBackoff
	}
	if config.MaxRetryBackoff == 0 {
		config.MaxRetryBackoff = DefaultRetrieverConfig().MaxRetryBackoff
	}
	return &WeaviateRetriever{
		client:   client,
		embedder: embedder,
		config:   config,
	}, nil
}

// Retrieve implements Retriever.
//
// Description:
//
//	Embeds the query text, runs an organization-filtered nearVector
//	search, and returns chunks sorted by similarity (certainty),
//	highest first. Transient store failures are retried with
//	exponential backoff and jitter.
func (r *WeaviateRetriever) Retrieve(ctx context.Context, q Query) ([]datatypes.SourceChunk, error) {
	ctx, span := retrieverTracer.Start(ctx, "WeaviateRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("organization_id", q.OrganizationId),
		attribute.Int("limit", q.Limit),
	)

	if q.OrganizationId == "" {
		return nil, errors.New("organization id must not be empty")
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, errors.New("query text must not be empty")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = r.config.DefaultLimit
	}

	vector, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("failed to embed the query: %w", err)
	}

	operands := []*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{"organization_id"}).
			WithOperator(filters.Equal).
			WithValueString(q.OrganizationId),
	}
	if q.ProgramArea != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"program_area"}).
			WithOperator(filters.Equal).
			WithValueString(q.ProgramArea))
	}
	whereFilter := filters.Where().
		WithOperator(filters.And).
		WithOperands(operands)

	nearVector := r.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "document_id"},
		{Name: "document_name"},
		{Name: "document_type"},
		{Name: "program_area"},
		{Name: "_additional { id certainty }"},
	}

	var result *models.GraphQLResponse
	err = r.withRetry(ctx, func() error {
		var qErr error
		result, qErr = r.client.GraphQL().Get().
			WithClassName(SourceChunkClassName).
			WithFields(fields...).
			WithWhere(whereFilter).
			WithNearVector(nearVector).
			WithLimit(limit).
			Do(ctx)
		return qErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector search failed")
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("vector search error: %s", result.Errors[0].Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector search error")
		return nil, err
	}

	chunks := parseChunks(result)
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))
	return chunks, nil
}

// withRetry runs fn with exponential backoff and jitter, honoring
// context cancellation between attempts.
func (r *WeaviateRetriever) withRetry(ctx context.Context, fn func() error) error {
	backoff := r.config.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= r.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			sleep := backoff
			if r.config.RetryJitter > 0 {
				jitter := 1 + r.config.RetryJitter*(2*rand.Float64()-1)
				sleep = time.Duration(float64(sleep) * jitter)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}
			backoff *= 2
			if backoff > r.config.MaxRetryBackoff {
				backoff = r.config.MaxRetryBackoff
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// isRetryable reports whether an error is worth retrying. Context
// cancellation and schema errors are not; network failures are.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "502")
}

// parseChunks converts a GraphQL response into SourceChunks sorted by
// similarity, highest first. Malformed objects are skipped.
func parseChunks(result *models.GraphQLResponse) []datatypes.SourceChunk {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return []datatypes.SourceChunk{}
	}
	objects, ok := data[SourceChunkClassName].([]interface{})
	if !ok {
		return []datatypes.SourceChunk{}
	}

	chunks := make([]datatypes.SourceChunk, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}

		chunk := datatypes.SourceChunk{
			Text:         stringProp(m, "text"),
			DocumentId:   stringProp(m, "document_id"),
			DocumentName: stringProp(m, "document_name"),
			DocumentType: stringProp(m, "document_type"),
			ProgramArea:  stringProp(m, "program_area"),
		}
		if chunk.Text == "" {
			continue
		}

		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				chunk.Id = id
			}
			if certainty, ok := additional["certainty"].(float64); ok {
				chunk.SimilarityScore = certainty
			}
		}
		chunks = append(chunks, chunk)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].SimilarityScore > chunks[j].SimilarityScore
	})
	return chunks
}

func stringProp(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}
