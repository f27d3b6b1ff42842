// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers exposes the enforcement pipeline over HTTP.
package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/beaconhq/beacon/services/enforcer"
	"github.com/beaconhq/beacon/services/enforcer/datatypes"
	"github.com/beaconhq/beacon/services/enforcer/observability"
)

// GenerateSection handles POST /v1/sections/generate.
//
// Description:
//
//	Runs the full pipeline for one section. The default response is
//	text/plain written in two segments, the banner first, so a client
//	rendering progressively always shows the enforcement disclosure
//	before any content. Clients sending Accept: application/json get
//	the full structured result instead.
func GenerateSection(service *enforcer.Service, metrics *observability.PipelineMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.GenerationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		start := time.Now()
		result, err := service.GenerateSection(c.Request.Context(), req)
		if err != nil {
			slog.Error("generation failed",
				"section_name", req.SectionName,
				"proposal_id", req.Context.ProposalId,
				"error", err)
			recordGeneration(metrics, observability.OutcomeError, start, result)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "generation failed"})
			return
		}
		recordGeneration(metrics, outcomeOf(result), start, result)

		if strings.Contains(c.GetHeader("Accept"), "application/json") {
			c.JSON(http.StatusOK, result)
			return
		}

		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Status(http.StatusOK)
		if result.Banner != "" {
			_, _ = c.Writer.WriteString(result.Banner + "\n\n")
			c.Writer.Flush()
		}
		_, _ = c.Writer.WriteString(result.Content)
		c.Writer.Flush()
	}
}

func outcomeOf(result enforcer.GenerationResult) observability.GenerationOutcome {
	switch {
	case result.Metadata.UsedGenericKnowledge:
		return observability.OutcomePlaceholderOnly
	case strings.HasPrefix(result.Banner, "[BEACON WARNING"):
		return observability.OutcomeUnverified
	default:
		return observability.OutcomeEnforced
	}
}

func recordGeneration(metrics *observability.PipelineMetrics, outcome observability.GenerationOutcome, start time.Time, result enforcer.GenerationResult) {
	if metrics == nil {
		return
	}
	metrics.RecordGeneration(outcome, time.Since(start).Seconds())
	for _, claim := range result.Claims {
		metrics.RecordClaim(string(claim.Status))
	}
	for _, paragraph := range result.Paragraphs {
		metrics.RecordParagraph(string(paragraph.Status))
	}
	metrics.RecordEnforcement(result.Metadata.ClaimsReplaced, result.Metadata.ParagraphsPlaceholdered)
	if result.Metadata.PolicyOverride {
		metrics.RecordPolicyOverride()
	}
}
