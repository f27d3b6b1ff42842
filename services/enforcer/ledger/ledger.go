// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ledger persists generation metadata, enforcement-failure
// flags, and export audit records in an embedded BadgerDB.
//
// The ledger is the only mutable state in the pipeline. Each
// generation attempt performs exactly one metadata upsert at the end;
// audit records are append-only and never rewritten.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

// Key layout. Metadata is keyed per section so a regeneration
// overwrites the previous attempt; audit records append under a
// timestamped key per proposal.
const (
	metadataPrefix = "meta/"
	auditPrefix    = "audit/"
	failurePrefix  = "failure/"
)

// Config holds the ledger's storage settings.
type Config struct {
	// Path is the directory for database files. Ignored in memory mode.
	Path string

	// InMemory runs without disk persistence (tests, local dev).
	InMemory bool

	// SyncWrites trades write latency for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal messages. Nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for the given path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns a disk-free configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Ledger is the BadgerDB-backed recorder.
//
// Thread Safety: Safe for concurrent use.
type Ledger struct {
	db *badger.DB
}

// Open creates a ledger with the given configuration.
func Open(cfg Config) (*Ledger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent ledger")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create ledger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordGeneration upserts the single metadata record for a generation
// attempt. Called exactly once per attempt, after the pipeline has
// fully resolved; partial work is never written.
func (l *Ledger) RecordGeneration(record datatypes.GenerationMetadata) error {
	if record.SectionId == "" {
		return errors.New("metadata record must carry a section id")
	}
	if record.RecordedAt == 0 {
		record.RecordedAt = time.Now().UnixMilli()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal metadata record: %w", err)
	}
	key := []byte(metadataPrefix + record.OrganizationId + "/" + record.SectionId)
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// GetGeneration reads the latest metadata record for a section.
func (l *Ledger) GetGeneration(organizationId, sectionId string) (datatypes.GenerationMetadata, error) {
	var record datatypes.GenerationMetadata
	key := []byte(metadataPrefix + organizationId + "/" + sectionId)
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return record, fmt.Errorf("no generation record for section %s", sectionId)
	}
	return record, err
}

// RecordDecision appends one export audit record. Records are never
// updated or deleted; an attestation produces a second record.
func (l *Ledger) RecordDecision(record datatypes.ExportAuditRecord) error {
	if record.ProposalId == "" {
		return errors.New("audit record must carry a proposal id")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	key := []byte(fmt.Sprintf("%s%s/%020d/%s", auditPrefix, record.ProposalId, record.RecordedAt, record.Id))
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// AuditTrail returns every audit record for a proposal in record order.
func (l *Ledger) AuditTrail(proposalId string) ([]datatypes.ExportAuditRecord, error) {
	var out []datatypes.ExportAuditRecord
	prefix := []byte(auditPrefix + proposalId + "/")
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record datatypes.ExportAuditRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				out = append(out, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// SetEnforcementFailure sets or clears the persistent fail-closed flag
// for a proposal. The flag blocks export until explicitly cleared.
func (l *Ledger) SetEnforcementFailure(proposalId string, failed bool) error {
	key := []byte(failurePrefix + proposalId)
	return l.db.Update(func(txn *badger.Txn) error {
		if !failed {
			err := txn.Delete(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return txn.Set(key, []byte("1"))
	})
}

// EnforcementFailed reports whether the proposal carries the failure
// flag.
func (l *Ledger) EnforcementFailed(proposalId string) (bool, error) {
	var failed bool
	err := l.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(failurePrefix + proposalId))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		failed = true
		return nil
	})
	return failed, err
}
