// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordGenerationUpserts(t *testing.T) {
	l := openTestLedger(t)

	first := datatypes.GenerationMetadata{
		SectionId:      "sec-1",
		OrganizationId: "org-1",
		ClaimsReplaced: 2,
	}
	require.NoError(t, l.RecordGeneration(first))

	// A regeneration overwrites the previous attempt's record.
	second := first
	second.ClaimsReplaced = 0
	second.EnforcementApplied = false
	require.NoError(t, l.RecordGeneration(second))

	got, err := l.GetGeneration("org-1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.ClaimsReplaced)
	assert.NotZero(t, got.RecordedAt)
}

func TestRecordGenerationRequiresSectionId(t *testing.T) {
	l := openTestLedger(t)
	err := l.RecordGeneration(datatypes.GenerationMetadata{OrganizationId: "org-1"})
	assert.Error(t, err)
}

func TestGetGenerationMissing(t *testing.T) {
	l := openTestLedger(t)
	_, err := l.GetGeneration("org-1", "never-written")
	assert.Error(t, err)
}

func TestAuditTrailAppendOnly(t *testing.T) {
	l := openTestLedger(t)

	records := []datatypes.ExportAuditRecord{
		{Id: "r1", ProposalId: "prop-1", Decision: datatypes.GateBlock, RecordedAt: 1000},
		{Id: "r2", ProposalId: "prop-1", Decision: datatypes.GateWarn, RecordedAt: 2000},
		{Id: "r3", ProposalId: "prop-1", Decision: datatypes.GateWarn, AttestedBy: "director@example.org", RecordedAt: 3000},
		{Id: "other", ProposalId: "prop-2", Decision: datatypes.GateAllow, RecordedAt: 1500},
	}
	for _, r := range records {
		require.NoError(t, l.RecordDecision(r))
	}

	trail, err := l.AuditTrail("prop-1")
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, "r1", trail[0].Id)
	assert.Equal(t, "r2", trail[1].Id)
	assert.Equal(t, "r3", trail[2].Id)
	assert.Equal(t, "director@example.org", trail[2].AttestedBy)
}

func TestAuditTrailEmptyProposal(t *testing.T) {
	l := openTestLedger(t)
	trail, err := l.AuditTrail("nothing-here")
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestEnforcementFailureFlag(t *testing.T) {
	l := openTestLedger(t)

	failed, err := l.EnforcementFailed("prop-1")
	require.NoError(t, err)
	assert.False(t, failed)

	require.NoError(t, l.SetEnforcementFailure("prop-1", true))
	failed, err = l.EnforcementFailed("prop-1")
	require.NoError(t, err)
	assert.True(t, failed)

	// The flag persists until explicitly cleared.
	require.NoError(t, l.SetEnforcementFailure("prop-1", false))
	failed, err = l.EnforcementFailed("prop-1")
	require.NoError(t, err)
	assert.False(t, failed)

	// Clearing an unset flag is not an error.
	require.NoError(t, l.SetEnforcementFailure("prop-1", false))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
