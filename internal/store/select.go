package store

import (
	"context"
	"fmt"
)

// Select runs a read-only query and returns its column names and rows.
// Rows gathered before a failure are returned with the error.
func (s *Store) Select(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	if err := checkReadOnly(query); err != nil {
		return nil, nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("columns: %w", err)
	}
	var results [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return cols, results, fmt.Errorf("scan: %w", err)
		}
		results = append(results, values)
	}
	if err := rows.Err(); err != nil {
		return cols, results, err
	}
	return cols, results, nil
}

// EntityIDs runs a read-only query and collects its first column as entity
// ids, skipping NULLs and stopping after limit ids when limit is positive.
// When ctx ends mid-scan the ids gathered so far are returned with the
// context's error.
func (s *Store) EntityIDs(ctx context.Context, query string, limit int) ([]string, error) {
	if err := checkReadOnly(query); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return []string{}, ctxErr
		}
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("query returns no columns")
	}

	ids := []string{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if id, ok := valueToString(values[0]); ok {
			ids = append(ids, id)
		}
		if limit > 0 && len(ids) >= limit {
			return ids, nil
		}
	}
	if err := rows.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ids, ctxErr
		}
		return nil, err
	}
	return ids, nil
}
