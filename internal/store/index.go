package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/grovekit/grove/internal/urn"
)

// Identity index: the cross-project corpus of known identifiers and
// aliases the resolver matches against.

// RegisterIdentity records a known identifier. Idempotent.
func (s *Store) RegisterIdentity(ctx context.Context, id urn.Identifier) error {
	if id.IsZero() {
		return fmt.Errorf("register identity: zero identifier")
	}
	_, err := s.index.ExecContext(ctx, `
		INSERT INTO identities (urn, kind) VALUES (?, ?)
		ON CONFLICT(urn) DO NOTHING
	`, id.String(), string(id.Kind()))
	if err != nil {
		return fmt.Errorf("register identity: %w", err)
	}
	return nil
}

// KnownIdentifiers returns every registered identifier, ordered by
// canonical encoding for deterministic prefix matching.
func (s *Store) KnownIdentifiers(ctx context.Context) ([]urn.Identifier, error) {
	rows, err := s.index.QueryContext(ctx, `
		SELECT urn FROM identities ORDER BY urn COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("known identifiers: %w", err)
	}
	defer rows.Close()

	var ids []urn.Identifier
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("known identifiers: %w", err)
		}
		id, err := urn.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("known identifiers: corrupt row %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PutAlias binds a human-readable alias to an identifier, registering the
// identifier as a side effect. Re-binding an existing alias overwrites it:
// aliases are a local convenience, not replicated state.
func (s *Store) PutAlias(ctx context.Context, alias string, id urn.Identifier) error {
	if alias == "" {
		return fmt.Errorf("put alias: empty alias")
	}
	if err := s.RegisterIdentity(ctx, id); err != nil {
		return err
	}
	_, err := s.index.ExecContext(ctx, `
		INSERT INTO aliases (alias, urn) VALUES (?, ?)
		ON CONFLICT(alias) DO UPDATE SET urn = excluded.urn
	`, alias, id.String())
	if err != nil {
		return fmt.Errorf("put alias: %w", err)
	}
	return nil
}

// LookupAlias resolves an exact alias, or returns ErrNotFound.
func (s *Store) LookupAlias(ctx context.Context, alias string) (urn.Identifier, error) {
	var raw string
	err := s.index.QueryRowContext(ctx, `
		SELECT urn FROM aliases WHERE alias = ?
	`, alias).Scan(&raw)
	if err == sql.ErrNoRows {
		return urn.Identifier{}, fmt.Errorf("alias %q: %w", alias, ErrNotFound)
	}
	if err != nil {
		return urn.Identifier{}, fmt.Errorf("lookup alias: %w", err)
	}
	return urn.Parse(raw)
}
