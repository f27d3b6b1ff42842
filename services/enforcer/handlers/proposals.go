// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/beaconhq/beacon/services/enforcer"
	"github.com/beaconhq/beacon/services/enforcer/observability"
)

// GetCompliance handles GET /v1/proposals/:proposalId/compliance.
// Snapshots are cached briefly server-side to absorb UI polling.
func GetCompliance(service *enforcer.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		proposalId := c.Param("proposalId")
		status, err := service.ComplianceFor(c.Request.Context(), proposalId)
		if err != nil {
			slog.Error("compliance check failed", "proposal_id", proposalId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute compliance"})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// GetExportGate handles GET /v1/proposals/:proposalId/export-gate.
// Every call recomputes the decision and appends an audit record.
func GetExportGate(service *enforcer.Service, metrics *observability.PipelineMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		proposalId := c.Param("proposalId")
		result, err := service.EvaluateExport(c.Request.Context(), proposalId)
		if err != nil {
			slog.Error("export gate evaluation failed", "proposal_id", proposalId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to evaluate the export gate"})
			return
		}
		if metrics != nil {
			metrics.RecordGateDecision(string(result.Decision))
		}
		c.JSON(http.StatusOK, result)
	}
}

// attestRequest is the body for a WARN sign-off.
type attestRequest struct {
	AttestationText string `json:"attestation_text" binding:"required"`
	AttestedBy      string `json:"attested_by" binding:"required"`
}

// AttestExport handles POST /v1/proposals/:proposalId/export-gate/attest.
//
// The decision is re-evaluated before the attestation is accepted; a
// proposal that no longer sits at WARN gets a 409 with the current
// decision so the client can refresh its view.
func AttestExport(service *enforcer.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		proposalId := c.Param("proposalId")

		var req attestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := service.Attest(c.Request.Context(), proposalId, req.AttestationText, req.AttestedBy)
		if errors.Is(err, enforcer.ErrWarnRequired) {
			c.JSON(http.StatusConflict, gin.H{
				"error":    err.Error(),
				"decision": result.Decision,
			})
			return
		}
		if err != nil {
			slog.Error("attestation failed", "proposal_id", proposalId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record the attestation"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ClearEnforcementFailure handles
// DELETE /v1/proposals/:proposalId/enforcement-failure.
func ClearEnforcementFailure(service *enforcer.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		proposalId := c.Param("proposalId")
		if err := service.ClearEnforcementFailure(proposalId); err != nil {
			slog.Error("failed to clear enforcement failure", "proposal_id", proposalId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear the enforcement failure"})
			return
		}
		slog.Info("enforcement failure cleared", "proposal_id", proposalId)
		c.Status(http.StatusNoContent)
	}
}

// HealthCheck handles GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
