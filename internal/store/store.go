// Package store persists routing rules so the admin API survives
// restarts. It supports SQLite and PostgreSQL behind database/sql; the
// router itself never touches the store — the app layer loads the
// persisted set and publishes it wholesale.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"api-gateway/internal/common/errors"
	"api-gateway/internal/config"
	"api-gateway/internal/routing"
)

type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database, runs migrations, and returns
// a ready store.
func Open(cfg *config.Config) (*Store, error) {
	var (
		db     *sql.DB
		driver string
		err    error
	)

	switch cfg.DatabaseType {
	case "sqlite":
		driver = "sqlite3"
		db, err = sql.Open("sqlite3", cfg.DatabasePath)
	case "postgres", "postgresql":
		driver = "pgx"
		connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			cfg.PostgresUser,
			cfg.PostgresPassword,
			cfg.PostgresHost,
			cfg.PostgresPort,
			cfg.PostgresDB,
			cfg.PostgresSSLMode)
		db, err = sql.Open("pgx", connStr)
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported database type %q", cfg.DatabaseType))
	}
	if err != nil {
		return nil, errors.ConnectionError("failed to open database", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.ConnectionError("failed to ping database", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.InternalError("failed to migrate database", err)
	}

	return s, nil
}

// NewWithDB wraps an existing connection, for tests.
func NewWithDB(db *sql.DB, driver string) (*Store, error) {
	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		return nil, errors.InternalError("failed to migrate database", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Health reports whether the database connection is usable.
func (s *Store) Health() error {
	if err := s.db.Ping(); err != nil {
		return errors.ConnectionError("database ping failed", err)
	}
	return nil
}

func (s *Store) migrate() error {
	idColumn := "id TEXT PRIMARY KEY"
	timestamp := "DATETIME DEFAULT CURRENT_TIMESTAMP"
	if s.driver == "pgx" {
		timestamp = "TIMESTAMPTZ DEFAULT NOW()"
	}

	queries := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS routing_rules (
			%s,
			exact_path TEXT NOT NULL DEFAULT '',
			path_prefix TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			target_service TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			created_at %s,
			updated_at %s
		)`, idColumn, timestamp, timestamp),
		`CREATE INDEX IF NOT EXISTS idx_routing_rules_priority ON routing_rules(priority)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

// rebind converts ?-style placeholders to the $N form pgx expects.
func (s *Store) rebind(query string) string {
	if s.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// CreateRule inserts a rule. The rule's contents are stored as given; the
// store enforces ID uniqueness but performs no semantic validation.
func (s *Store) CreateRule(ctx context.Context, rule routing.Rule) error {
	query := s.rebind(`INSERT INTO routing_rules (id, exact_path, path_prefix, method, target_service, priority)
		VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		rule.ID, rule.ExactPath, rule.PathPrefix, rule.Method, rule.TargetService, rule.Priority)
	if err != nil {
		return errors.InternalError("failed to create rule", err)
	}
	return nil
}

// GetRule fetches a rule by ID.
func (s *Store) GetRule(ctx context.Context, id string) (routing.Rule, error) {
	query := s.rebind(`SELECT id, exact_path, path_prefix, method, target_service, priority
		FROM routing_rules WHERE id = ?`)

	var rule routing.Rule
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rule.ID, &rule.ExactPath, &rule.PathPrefix, &rule.Method, &rule.TargetService, &rule.Priority)
	if stderrors.Is(err, sql.ErrNoRows) {
		return routing.Rule{}, errors.NotFoundError("routing rule")
	}
	if err != nil {
		return routing.Rule{}, errors.InternalError("failed to get rule", err)
	}
	return rule, nil
}

// ListRules returns every persisted rule in insertion order. Sorting for
// evaluation is the router's job, not the store's.
func (s *Store) ListRules(ctx context.Context) ([]routing.Rule, error) {
	query := `SELECT id, exact_path, path_prefix, method, target_service, priority
		FROM routing_rules ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.InternalError("failed to list rules", err)
	}
	defer rows.Close()

	var rules []routing.Rule
	for rows.Next() {
		var rule routing.Rule
		if err := rows.Scan(&rule.ID, &rule.ExactPath, &rule.PathPrefix, &rule.Method,
			&rule.TargetService, &rule.Priority); err != nil {
			return nil, errors.InternalError("failed to scan rule", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError("failed to iterate rules", err)
	}

	return rules, nil
}

// UpdateRule replaces the stored rule with the same ID.
func (s *Store) UpdateRule(ctx context.Context, rule routing.Rule) error {
	query := s.rebind(`UPDATE routing_rules
		SET exact_path = ?, path_prefix = ?, method = ?, target_service = ?, priority = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`)

	result, err := s.db.ExecContext(ctx, query,
		rule.ExactPath, rule.PathPrefix, rule.Method, rule.TargetService, rule.Priority, rule.ID)
	if err != nil {
		return errors.InternalError("failed to update rule", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.InternalError("failed to check update result", err)
	}
	if affected == 0 {
		return errors.NotFoundError("routing rule")
	}
	return nil
}

// DeleteRule removes a rule by ID.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	query := s.rebind(`DELETE FROM routing_rules WHERE id = ?`)

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return errors.InternalError("failed to delete rule", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.InternalError("failed to check delete result", err)
	}
	if affected == 0 {
		return errors.NotFoundError("routing rule")
	}
	return nil
}
