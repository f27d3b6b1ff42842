// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package compliance evaluates proposal content against funder limits
// and enforcement state.
package compliance

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/beaconhq/beacon/services/enforcer/attribution"
	"github.com/beaconhq/beacon/services/enforcer/config"
	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

// Checker derives a ComplianceStatus snapshot from proposal content.
//
// Thread Safety: Stateless; safe for concurrent use.
type Checker struct {
	thresholds config.Thresholds
}

// NewChecker creates a checker.
func NewChecker(thresholds config.Thresholds) *Checker {
	return &Checker{thresholds: thresholds}
}

// Check evaluates every section plus the proposal-level rules.
//
// Description:
//
//	Sections are checked concurrently, one goroutine each, and the
//	findings reassembled in section order so the snapshot is
//	deterministic. Severity rules: hard word-limit overage (>1.10x),
//	any char-limit overage, an empty required section, an unresolved
//	placeholder, an unresolved blocking ambiguity, and the persistent
//	enforcement-failure flag are ERROR; soft word overage, generic
//	knowledge use, and incomplete required checklist items are
//	WARNING.
func (c *Checker) Check(ctx context.Context, proposal datatypes.ProposalContent) datatypes.ComplianceStatus {
	status := datatypes.ComplianceStatus{
		ProposalId: proposal.ProposalId,
		CheckedAt:  time.Now().UnixMilli(),
	}

	sectionIssues := make([][]datatypes.ComplianceIssue, len(proposal.Sections))
	g, _ := errgroup.WithContext(ctx)
	for i := range proposal.Sections {
		i := i
		g.Go(func() error {
			sectionIssues[i] = c.checkSection(proposal.Sections[i])
			return nil
		})
	}
	// The section checks are pure and never return an error.
	_ = g.Wait()

	for _, issues := range sectionIssues {
		status.Issues = append(status.Issues, issues...)
	}
	status.Issues = append(status.Issues, c.checkProposal(proposal)...)
	status.Checklist = c.checkChecklist(proposal)

	for _, item := range status.Checklist {
		if item.Required && !item.Complete {
			status.Issues = append(status.Issues, datatypes.ComplianceIssue{
				Code:     datatypes.IssueChecklistIncomplete,
				Severity: datatypes.SeverityWarning,
				Message:  fmt.Sprintf("required checklist item %q is not satisfied by any section", item.Label),
			})
		}
	}

	for _, issue := range status.Issues {
		switch issue.Severity {
		case datatypes.SeverityError:
			status.ErrorCount++
		case datatypes.SeverityWarning:
			status.WarningCount++
		}
	}
	return status
}

func (c *Checker) checkSection(s datatypes.SectionContent) []datatypes.ComplianceIssue {
	var issues []datatypes.ComplianceIssue
	content := strings.TrimSpace(s.Content)

	if s.Required && content == "" {
		issues = append(issues, datatypes.ComplianceIssue{
			Code:      datatypes.IssueRequiredSectionEmpty,
			Severity:  datatypes.SeverityError,
			Message:   fmt.Sprintf("required section %q has no content", s.Name),
			SectionId: s.SectionId,
		})
	}

	if s.WordLimit > 0 {
		words := len(strings.Fields(content))
		hardLimit := float64(s.WordLimit) * c.thresholds.WordLimitHard
		switch {
		case float64(words) > hardLimit:
			issues = append(issues, datatypes.ComplianceIssue{
				Code:      datatypes.IssueWordLimitExceeded,
				Severity:  datatypes.SeverityError,
				Message:   fmt.Sprintf("section %q is %d words, more than 10%% over the %d word limit", s.Name, words, s.WordLimit),
				SectionId: s.SectionId,
			})
		case words > s.WordLimit:
			issues = append(issues, datatypes.ComplianceIssue{
				Code:      datatypes.IssueWordLimitOver,
				Severity:  datatypes.SeverityWarning,
				Message:   fmt.Sprintf("section %q is %d words, over the %d word limit", s.Name, words, s.WordLimit),
				SectionId: s.SectionId,
			})
		}
	}

	if s.CharLimit > 0 {
		chars := utf8.RuneCountInString(content)
		if chars > s.CharLimit {
			issues = append(issues, datatypes.ComplianceIssue{
				Code:      datatypes.IssueCharLimitExceeded,
				Severity:  datatypes.SeverityError,
				Message:   fmt.Sprintf("section %q is %d characters, over the %d character limit", s.Name, chars, s.CharLimit),
				SectionId: s.SectionId,
			})
		}
	}

	// Tokens still present in the content are unresolved by definition;
	// resolution replaces the token with real text.
	if placeholders := attribution.ParsePlaceholders(content); len(placeholders) > 0 {
		issues = append(issues, datatypes.ComplianceIssue{
			Code:      datatypes.IssueUnresolvedPlaceholder,
			Severity:  datatypes.SeverityError,
			Message:   fmt.Sprintf("section %q has %d unresolved placeholders", s.Name, len(placeholders)),
			SectionId: s.SectionId,
		})
	}

	if s.UsedGenericKnowledge {
		issues = append(issues, datatypes.ComplianceIssue{
			Code:      datatypes.IssueGenericKnowledge,
			Severity:  datatypes.SeverityWarning,
			Message:   fmt.Sprintf("section %q was drafted without organization sources", s.Name),
			SectionId: s.SectionId,
		})
	}

	return issues
}

func (c *Checker) checkProposal(proposal datatypes.ProposalContent) []datatypes.ComplianceIssue {
	var issues []datatypes.ComplianceIssue

	for _, flag := range proposal.AmbiguityFlags {
		if flag.RequiresUserInput && !flag.Resolved {
			issues = append(issues, datatypes.ComplianceIssue{
				Code:     datatypes.IssueUnresolvedAmbiguity,
				Severity: datatypes.SeverityError,
				Message:  fmt.Sprintf("unresolved question needs your input: %s", flag.Description),
			})
		}
	}

	if proposal.EnforcementFailure {
		issues = append(issues, datatypes.ComplianceIssue{
			Code:     datatypes.IssueEnforcementFailure,
			Severity: datatypes.SeverityError,
			Message:  "a previous generation could not be verified; review flagged sections and clear the failure",
		})
	}

	return issues
}

func (c *Checker) checkChecklist(proposal datatypes.ProposalContent) []datatypes.ChecklistItemStatus {
	contentBySection := make(map[string]bool, len(proposal.Sections))
	for _, s := range proposal.Sections {
		contentBySection[s.SectionId] = strings.TrimSpace(s.Content) != ""
	}

	out := make([]datatypes.ChecklistItemStatus, 0, len(proposal.Checklist))
	for _, item := range proposal.Checklist {
		complete := false
		for _, sectionId := range item.MappedSections {
			if contentBySection[sectionId] {
				complete = true
				break
			}
		}
		out = append(out, datatypes.ChecklistItemStatus{
			ItemId:         item.Id,
			Label:          item.Label,
			Required:       item.Required,
			Complete:       complete,
			MappedSections: item.MappedSections,
		})
	}
	return out
}
