// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

// SnapshotCache holds recently computed compliance snapshots for the
// polling UI. Entries expire on their own; a write after regeneration
// simply overwrites the stale entry.
//
// Thread Safety: Safe for concurrent use.
type SnapshotCache struct {
	cache *gocache.Cache
}

// NewSnapshotCache creates a cache whose entries live for ttl, matching
// the UI poll interval so a poll never sees a snapshot older than one
// cycle.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Get returns the cached snapshot for the proposal, if still fresh.
func (s *SnapshotCache) Get(proposalId string) (datatypes.ComplianceStatus, bool) {
	v, ok := s.cache.Get(proposalId)
	if !ok {
		return datatypes.ComplianceStatus{}, false
	}
	status, ok := v.(datatypes.ComplianceStatus)
	return status, ok
}

// Set stores a snapshot under the proposal id.
func (s *SnapshotCache) Set(proposalId string, status datatypes.ComplianceStatus) {
	s.cache.SetDefault(proposalId, status)
}

// Invalidate drops the snapshot for a proposal, forcing the next poll
// to recompute.
func (s *SnapshotCache) Invalidate(proposalId string) {
	s.cache.Delete(proposalId)
}
