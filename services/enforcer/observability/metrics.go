// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the enforcement
// pipeline.
//
// # Description
//
// Metrics cover the full generation path:
//   - Generation counters by outcome (enforced, placeholder-only, failed)
//   - Claim verification counters by status
//   - Paragraph attribution counters by status
//   - Enforcement action counters (claims replaced, paragraphs removed)
//   - Export gate decision counters
//   - Pipeline latency histograms
//
// # Integration
//
// Exposed via the /metrics endpoint. Use with Prometheus + Grafana for
// dashboards and alerting on enforcement health.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "beacon"

const pipelineSubsystem = "enforcer"

// GenerationOutcome labels the terminal state of one generation pass.
type GenerationOutcome string

const (
	// OutcomeEnforced means the draft passed through enforcement,
	// whether or not anything was rewritten.
	OutcomeEnforced GenerationOutcome = "enforced"

	// OutcomePlaceholderOnly means the sufficiency gate refused to
	// draft and placeholder-only content was returned.
	OutcomePlaceholderOnly GenerationOutcome = "placeholder_only"

	// OutcomeUnverified means enforcement itself failed and the raw
	// draft was returned behind a warning banner.
	OutcomeUnverified GenerationOutcome = "unverified"

	// OutcomeError means the request failed outright.
	OutcomeError GenerationOutcome = "error"
)

// PipelineMetrics holds every Prometheus metric for the pipeline.
//
// Initialize once at startup via InitMetrics; promauto panics on a
// second registration.
type PipelineMetrics struct {
	// GenerationsTotal counts generation passes by outcome.
	// Labels: outcome (enforced, placeholder_only, unverified, error)
	GenerationsTotal *prometheus.CounterVec

	// GenerationDurationSeconds measures full pipeline latency.
	// Labels: outcome
	GenerationDurationSeconds *prometheus.HistogramVec

	// ClaimsTotal counts verified claims by final status.
	// Labels: status (VERIFIED, PARTIAL, UNVERIFIED)
	ClaimsTotal *prometheus.CounterVec

	// ParagraphsTotal counts attributed paragraphs by final status.
	// Labels: status (GROUNDED, PARTIAL, UNGROUNDED, FAILED)
	ParagraphsTotal *prometheus.CounterVec

	// EnforcementActionsTotal counts rewrites applied to drafts.
	// Labels: action (claim_replaced, paragraph_placeholdered)
	EnforcementActionsTotal *prometheus.CounterVec

	// GateDecisionsTotal counts export gate evaluations by decision.
	// Labels: decision (ALLOW, WARN, BLOCK)
	GateDecisionsTotal *prometheus.CounterVec

	// PolicyOverridesTotal counts requests whose custom instructions
	// tried to weaken enforcement.
	PolicyOverridesTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance, set by InitMetrics.
var DefaultMetrics *PipelineMetrics

// InitMetrics creates and registers all pipeline metrics. Call once at
// startup.
func InitMetrics() *PipelineMetrics {
	DefaultMetrics = &PipelineMetrics{
		GenerationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "generations_total",
				Help:      "Generation passes by outcome",
			},
			[]string{"outcome"},
		),

		GenerationDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "generation_duration_seconds",
				Help:      "Full pipeline latency per generation pass",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),

		ClaimsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "claims_total",
				Help:      "Verified claims by final status",
			},
			[]string{"status"},
		),

		ParagraphsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "paragraphs_total",
				Help:      "Attributed paragraphs by final status",
			},
			[]string{"status"},
		),

		EnforcementActionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "enforcement_actions_total",
				Help:      "Rewrites applied to drafts by action",
			},
			[]string{"action"},
		),

		GateDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "gate_decisions_total",
				Help:      "Export gate evaluations by decision",
			},
			[]string{"decision"},
		),

		PolicyOverridesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "policy_overrides_total",
				Help:      "Requests whose custom instructions tried to weaken enforcement",
			},
		),
	}
	return DefaultMetrics
}

// RecordGeneration records one completed generation pass.
func (m *PipelineMetrics) RecordGeneration(outcome GenerationOutcome, seconds float64) {
	m.GenerationsTotal.WithLabelValues(string(outcome)).Inc()
	m.GenerationDurationSeconds.WithLabelValues(string(outcome)).Observe(seconds)
}

// RecordClaim records one claim's final verification status.
func (m *PipelineMetrics) RecordClaim(status string) {
	m.ClaimsTotal.WithLabelValues(status).Inc()
}

// RecordParagraph records one paragraph's final attribution status.
func (m *PipelineMetrics) RecordParagraph(status string) {
	m.ParagraphsTotal.WithLabelValues(status).Inc()
}

// RecordEnforcement records the rewrites applied in one pass.
func (m *PipelineMetrics) RecordEnforcement(claimsReplaced, paragraphsPlaceholdered int) {
	if claimsReplaced > 0 {
		m.EnforcementActionsTotal.WithLabelValues("claim_replaced").Add(float64(claimsReplaced))
	}
	if paragraphsPlaceholdered > 0 {
		m.EnforcementActionsTotal.WithLabelValues("paragraph_placeholdered").Add(float64(paragraphsPlaceholdered))
	}
}

// RecordGateDecision records one export gate evaluation.
func (m *PipelineMetrics) RecordGateDecision(decision string) {
	m.GateDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordPolicyOverride records one override attempt.
func (m *PipelineMetrics) RecordPolicyOverride() {
	m.PolicyOverridesTotal.Inc()
}
