package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const KindPostgreSQL = "postgresql"

var ErrUnsupportedKind = errors.New("unsupported database kind")

// Executor runs a statement and returns every result row.
type Executor interface {
	Execute(ctx context.Context, sql string, args ...any) ([]Row, error)
}

// Explainer returns the EXPLAIN JSON document for a statement without executing it.
type Explainer interface {
	ExplainJSON(ctx context.Context, sql string) ([]byte, error)
}

// Session is one scoped database connection owned by a single run.
type Session interface {
	Executor
	Explainer
	Kind() string
	Close(ctx context.Context) error
}

// NormalizeKind maps backend kind aliases to their canonical name.
func NormalizeKind(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	switch k {
	case "", "postgres", "pg", KindPostgreSQL:
		return KindPostgreSQL
	}
	return k
}

// Opener opens a session for a backend kind and connection string.
type Opener func(ctx context.Context, kind, connStr string) (Session, error)

// Open connects to the database described by connStr.
func Open(ctx context.Context, kind, connStr string) (Session, error) {
	switch NormalizeKind(kind) {
	case KindPostgreSQL:
		conn, err := pgx.Connect(ctx, connStr)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		return &pgSession{conn: conn}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}

type pgSession struct {
	conn *pgx.Conn
}

func (s *pgSession) Kind() string {
	return KindPostgreSQL
}

func (s *pgSession) Execute(ctx context.Context, sql string, args ...any) ([]Row, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(maps))
	for i, m := range maps {
		out[i] = Row(m)
	}
	return out, nil
}

// ExplainJSON plans the statement inside a transaction that is always rolled
// back. ANALYZE is never requested, so the statement itself does not run.
func (s *pgSession) ExplainJSON(ctx context.Context, sql string) ([]byte, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := "EXPLAIN (FORMAT JSON, COSTS TRUE, SUMMARY TRUE) " + sql

	var jsonStr string
	if err := tx.QueryRow(ctx, query).Scan(&jsonStr); err != nil {
		return nil, fmt.Errorf("executing EXPLAIN: %w", err)
	}
	return []byte(jsonStr), nil
}

func (s *pgSession) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
