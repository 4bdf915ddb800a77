package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jward/atlas/internal/semantic"
)

// CommitSnapshot inserts every entity, relationship and diagnostic of snap
// within a single transaction. Duplicate entity ids keep the first row.
func (s *Store) CommitSnapshot(ctx context.Context, snap *semantic.WorkspaceSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	entStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO entities
		(id, kind, name, qualified_name, path, start_line, start_col, end_line, end_col)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("commit snapshot: prepare entities: %w", err)
	}
	defer entStmt.Close()
	for i := range snap.Entities {
		if err := insertEntityTx(ctx, entStmt, &snap.Entities[i]); err != nil {
			return fmt.Errorf("commit snapshot: entity %q: %w", snap.Entities[i].ID, err)
		}
	}

	relStmt, err := tx.PrepareContext(ctx, `INSERT INTO relationships
		(source, target, kind, certainty, confidence, provenance, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("commit snapshot: prepare relationships: %w", err)
	}
	defer relStmt.Close()
	for _, r := range snap.Relationships {
		_, err := relStmt.ExecContext(ctx,
			r.Source, r.Target, string(r.Kind),
			string(r.Certainty.Kind), int(r.Certainty.Confidence),
			string(r.Provenance.Source), r.Provenance.Detail,
		)
		if err != nil {
			return fmt.Errorf("commit snapshot: relationship %s -> %s: %w", r.Source, r.Target, err)
		}
	}

	for i := range snap.Diagnostics {
		d := &snap.Diagnostics[i]
		var path *string
		if d.Location != nil {
			path = &d.Location.Path
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO diagnostics (code, severity, message, path) VALUES (?, ?, ?, ?)",
			d.Code, string(d.Severity), d.Message, path,
		)
		if err != nil {
			return fmt.Errorf("commit snapshot: diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func insertEntityTx(ctx context.Context, stmt *sql.Stmt, e *semantic.Entity) error {
	var path *string
	var startLine, startCol, endLine, endCol *uint32
	if e.Location != nil {
		path = &e.Location.Path
		if sp := e.Location.Span; sp != nil {
			startLine, startCol = &sp.Start.Line, &sp.Start.Column
			endLine, endCol = &sp.End.Line, &sp.End.Column
		}
	}
	_, err := stmt.ExecContext(ctx,
		e.ID, string(e.Kind), e.Name, e.QualifiedName, path,
		nullableInt(startLine), nullableInt(startCol), nullableInt(endLine), nullableInt(endCol),
	)
	return err
}
