package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hivectl/hive/internal/domain"
)

// RecordSyncParams links a local entity to its identity at an external
// provider.
type RecordSyncParams struct {
	EntityType string
	EntityID   string
	Provider   string
	ExternalID string
}

// RecordSync upserts a sync record. Idempotent by (entity_type, entity_id,
// provider); a repeat with a new external id replaces the old mapping.
func (q *Queries) RecordSync(p RecordSyncParams) error {
	_, err := q.db.Exec(
		`INSERT INTO sync_records (entity_type, entity_id, provider, external_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (entity_type, entity_id, provider) DO UPDATE SET external_id = excluded.external_id`,
		p.EntityType, p.EntityID, p.Provider, p.ExternalID, now(),
	)
	if err != nil {
		return fmt.Errorf("recording sync for %s %s: %w", p.EntityType, p.EntityID, mapConstraintErr(err))
	}
	return nil
}

// GetSync returns the sync record for an entity at a provider.
func (q *Queries) GetSync(entityType, entityID, provider string) (*domain.SyncRecord, error) {
	var m syncModel
	err := q.db.QueryRow(
		`SELECT id, entity_type, entity_id, provider, external_id, created_at
		 FROM sync_records WHERE entity_type = ? AND entity_id = ? AND provider = ?`,
		entityType, entityID, provider,
	).Scan(&m.ID, &m.EntityType, &m.EntityID, &m.Provider, &m.ExternalID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync record: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

// FindSyncByExternalID resolves an external identity back to the local
// entity, used when polling the provider.
func (q *Queries) FindSyncByExternalID(provider, externalID string) (*domain.SyncRecord, error) {
	var m syncModel
	err := q.db.QueryRow(
		`SELECT id, entity_type, entity_id, provider, external_id, created_at
		 FROM sync_records WHERE provider = ? AND external_id = ?`,
		provider, externalID,
	).Scan(&m.ID, &m.EntityType, &m.EntityID, &m.Provider, &m.ExternalID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync record: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}
