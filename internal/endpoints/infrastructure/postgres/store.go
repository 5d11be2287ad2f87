package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store keeps the endpoint set in the push_endpoints table.
type Store struct {
	db *sql.DB
}

// NewStore constructs a postgres store.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("endpoint postgres store: nil db")
	}
	return &Store{db: db}, nil
}

// EnsureSchema creates the table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS push_endpoints (
	token      TEXT PRIMARY KEY,
	position   INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}

// Load returns the stored set in registration order.
func (s *Store) Load(ctx context.Context) ([]string, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("endpoint postgres store: schema: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT token FROM push_endpoints ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	endpoints := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, token)
	}
	return endpoints, rows.Err()
}

// Save rewrites the whole set in one transaction.
func (s *Store) Save(ctx context.Context, endpoints []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM push_endpoints`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO push_endpoints (token, position) VALUES ($1, $2)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, token := range endpoints {
		if _, err := stmt.ExecContext(ctx, token, i); err != nil {
			return fmt.Errorf("endpoint postgres store: insert: %w", err)
		}
	}
	return tx.Commit()
}
