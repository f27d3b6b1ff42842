// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gate

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

// ResultCache holds recently evaluated gate decisions so the polling UI
// does not re-attribute every section of a proposal on each poll.
// Entries expire on their own and are dropped whenever a generation or
// a flag change touches the proposal.
//
// Thread Safety: Safe for concurrent use.
type ResultCache struct {
	cache *gocache.Cache
}

// NewResultCache creates a cache whose entries live for ttl.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Get returns the cached decision for the proposal, if still fresh.
func (c *ResultCache) Get(proposalId string) (datatypes.ExportGateResult, bool) {
	v, ok := c.cache.Get(proposalId)
	if !ok {
		return datatypes.ExportGateResult{}, false
	}
	result, ok := v.(datatypes.ExportGateResult)
	return result, ok
}

// Set stores a decision under the proposal id.
func (c *ResultCache) Set(proposalId string, result datatypes.ExportGateResult) {
	c.cache.SetDefault(proposalId, result)
}

// Invalidate drops the decision for a proposal, forcing the next
// evaluation to recompute.
func (c *ResultCache) Invalidate(proposalId string) {
	c.cache.Delete(proposalId)
}
