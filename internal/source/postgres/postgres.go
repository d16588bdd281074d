// Package postgres reads CRM tables from a Postgres replica.
package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crm-audit-toolkit/internal/dataset"
	apperrors "crm-audit-toolkit/internal/errors"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Querier is the part of a pool or connection LoadTable needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DB wraps a connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// Connect opens and pings a pool.
func Connect(ctx context.Context, url string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid database url", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to open database pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.NewNetworkError("failed to reach database", err)
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() { db.Pool.Close() }

// URLFromEnv returns CRM_AUDIT_DB_URL, falling back to DATABASE_URL.
func URLFromEnv() string {
	if value := strings.TrimSpace(os.Getenv("CRM_AUDIT_DB_URL")); value != "" {
		return value
	}
	return strings.TrimSpace(os.Getenv("DATABASE_URL"))
}

func sanitizeIdentifier(kind, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperrors.NewConfigError(kind+" name is required", nil)
	}
	if !identifierPattern.MatchString(value) {
		return "", apperrors.NewConfigError(fmt.Sprintf("invalid %s name: %s", kind, value), nil)
	}
	return value, nil
}

// LoadTable reads every row of schema.table into a dataset.Table named name.
// SQL NULL becomes a null cell and timestamps are rendered as RFC 3339.
func LoadTable(ctx context.Context, q Querier, schema, table, name string) (*dataset.Table, error) {
	schema, err := sanitizeIdentifier("schema", schema)
	if err != nil {
		return nil, err
	}
	table, err = sanitizeIdentifier("table", table)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + pgx.Identifier{schema, table}.Sanitize()
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewNetworkError(fmt.Sprintf("%s: query failed", name), err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = field.Name
	}
	out := dataset.New(name, columns)

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s: failed to decode row", name), err)
		}
		cells := make([]dataset.Cell, len(values))
		for i, value := range values {
			cells[i] = toCell(value)
		}
		out.Append(cells...)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewNetworkError(fmt.Sprintf("%s: reading rows failed", name), err)
	}
	return out, nil
}

func toCell(value any) dataset.Cell {
	switch v := value.(type) {
	case nil:
		return dataset.Null()
	case string:
		return dataset.Text(v)
	case []byte:
		return dataset.Text(string(v))
	case time.Time:
		return dataset.Text(v.Format(time.RFC3339))
	case [16]byte:
		return dataset.Text(uuid.UUID(v).String())
	case driver.Valuer:
		inner, err := v.Value()
		if err != nil {
			return dataset.Null()
		}
		return toCell(inner)
	default:
		return dataset.Text(fmt.Sprint(v))
	}
}

// Tables names the CRM tables to read. Empty names are skipped.
type Tables struct {
	Deals      string
	Activities string
	Contacts   string
}

// LoadTables reads the named tables from schema. Deals is required.
func LoadTables(ctx context.Context, q Querier, schema string, tables Tables) (deals, activities, contacts *dataset.Table, err error) {
	if deals, err = LoadTable(ctx, q, schema, tables.Deals, "deals"); err != nil {
		return nil, nil, nil, err
	}
	if tables.Activities != "" {
		if activities, err = LoadTable(ctx, q, schema, tables.Activities, "activities"); err != nil {
			return nil, nil, nil, err
		}
	}
	if tables.Contacts != "" {
		if contacts, err = LoadTable(ctx, q, schema, tables.Contacts, "contacts"); err != nil {
			return nil, nil, nil, err
		}
	}
	return deals, activities, contacts, nil
}
