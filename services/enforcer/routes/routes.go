// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beaconhq/beacon/services/enforcer"
	"github.com/beaconhq/beacon/services/enforcer/handlers"
	"github.com/beaconhq/beacon/services/enforcer/observability"
)

// SetupRoutes registers every endpoint on the router. metrics may be
// nil in tests; handlers skip recording in that case.
func SetupRoutes(router *gin.Engine, service *enforcer.Service, metrics *observability.PipelineMetrics) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/sections/generate", handlers.GenerateSection(service, metrics))

		proposals := v1.Group("/proposals")
		{
			proposals.GET("/:proposalId/compliance", handlers.GetCompliance(service))
			proposals.GET("/:proposalId/export-gate", handlers.GetExportGate(service, metrics))
			proposals.POST("/:proposalId/export-gate/attest", handlers.AttestExport(service))
			proposals.DELETE("/:proposalId/enforcement-failure", handlers.ClearEnforcementFailure(service))
		}
	}
}
