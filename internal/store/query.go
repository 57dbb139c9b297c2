package store

import (
	"context"
	"fmt"
	"strings"
)

// InstanceQuery selects running process instances. Empty fields do not
// restrict; set fields are combined with AND.
type InstanceQuery struct {
	// DefinitionID restricts to instances bound to this definition id.
	DefinitionID string
	// DefinitionKey restricts to instances of any version of this key.
	DefinitionKey string
	// IDs restricts to these process instance ids.
	IDs []string
}

// FindProcessInstances returns the ids of matching process instances in
// binary id order.
func (s *Store) FindProcessInstances(ctx context.Context, q InstanceQuery) ([]string, error) {
	var (
		where = []string{"e.parent_id = ''", "e.id = e.process_instance_id"}
		args  []any
	)
	if q.DefinitionID != "" {
		where = append(where, "e.process_definition_id = ?")
		args = append(args, q.DefinitionID)
	}
	if q.DefinitionKey != "" {
		where = append(where, "d.key = ?")
		args = append(args, q.DefinitionKey)
	}
	if len(q.IDs) > 0 {
		where = append(where, "e.id IN (?"+strings.Repeat(", ?", len(q.IDs)-1)+")")
		for _, id := range q.IDs {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id
		FROM executions e
		JOIN definitions d ON d.id = e.process_definition_id
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY e.id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query process instances: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan process instance: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate process instances: %w", err)
	}
	return ids, nil
}
