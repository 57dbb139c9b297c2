package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/flowmig/internal/definition"
)

// Deploy stores a process definition. Deploying identical content under an
// existing id is a no-op; different content under an existing id, or a
// second id for the same key and version, is an error.
func (s *Store) Deploy(ctx context.Context, def *definition.ProcessDefinition, deployedAt time.Time) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("deploy %s: %w", def.ID, err)
	}
	body, err := marshalDefinition(def)
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO definitions (id, key, version, body, deployed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, def.ID, def.Key, def.Version, body, marshalTime(deployedAt))
	if err != nil {
		return fmt.Errorf("deploy %s: %w", def.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deploy %s: %w", def.ID, err)
	}
	if n == 1 {
		return nil
	}

	var existing string
	err = s.db.QueryRowContext(ctx, `SELECT body FROM definitions WHERE id = ?`, def.ID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("deploy %s: version %d of %s is already deployed under another id", def.ID, def.Version, def.Key)
	}
	if err != nil {
		return fmt.Errorf("deploy %s: %w", def.ID, err)
	}
	if existing != body {
		return fmt.Errorf("deploy %s: a different definition is already deployed under this id", def.ID)
	}
	return nil
}

// Definition returns the deployed definition with the given id.
// Returns an error wrapping definition.ErrNotFound when it is missing.
func (s *Store) Definition(ctx context.Context, id string) (*definition.ProcessDefinition, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM definitions WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", definition.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", id, err)
	}
	return unmarshalDefinition(body)
}

// Definitions returns every deployed definition ordered by key, then
// version.
func (s *Store) Definitions(ctx context.Context) ([]*definition.ProcessDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM definitions
		ORDER BY key COLLATE BINARY ASC, version ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query definitions: %w", err)
	}
	defer rows.Close()

	defs := []*definition.ProcessDefinition{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		def, err := unmarshalDefinition(body)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate definitions: %w", err)
	}
	return defs, nil
}

// LoadDefinitions returns an in-memory repository holding every deployed
// definition. Migrations resolve source and target definitions through it.
func (s *Store) LoadDefinitions(ctx context.Context) (*definition.Repository, error) {
	defs, err := s.Definitions(ctx)
	if err != nil {
		return nil, err
	}
	return definition.NewRepository(defs...), nil
}
