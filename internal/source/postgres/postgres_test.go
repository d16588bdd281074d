package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-audit-toolkit/internal/dataset"
	apperrors "crm-audit-toolkit/internal/errors"
)

type fakeRows struct {
	columns []string
	data    [][]any
	pos     int
	err     error
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) Scan(dest ...any) error        { return errors.New("not implemented") }
func (r *fakeRows) RawValues() [][]byte           { return nil }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.columns))
	for i, name := range r.columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return fields
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.pos-1], nil
}

type fakeQuerier struct {
	rows    map[string]*fakeRows
	queries []string
}

func (q *fakeQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.queries = append(q.queries, sql)
	rows, ok := q.rows[sql]
	if !ok {
		return nil, errors.New("relation does not exist")
	}
	return rows, nil
}

func TestLoadTableConvertsValues(t *testing.T) {
	updated := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	id := uuid.MustParse("0b6c2f4e-8a57-4c1c-9a0e-6f8f6c7f1d20")
	q := &fakeQuerier{rows: map[string]*fakeRows{
		`SELECT * FROM "crm"."deals"`: {
			columns: []string{"deal_id", "amount", "updated_at", "owner", "external_id"},
			data: [][]any{
				{int64(1), pgtype.Numeric{Valid: false}, updated, "Ann", [16]byte(id)},
				{int64(2), 1500.5, nil, nil, nil},
			},
		},
	}}

	table, err := LoadTable(context.Background(), q, "crm", "deals", "deals")
	require.NoError(t, err)

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, "1", table.Value(0, dataset.ColDealID))
	cell, _ := table.Cell(0, dataset.ColAmount)
	assert.False(t, cell.Valid)
	assert.Equal(t, "2026-02-01T09:30:00Z", table.Value(0, dataset.ColUpdatedAt))
	assert.Equal(t, id.String(), table.Value(0, "external_id"))
	assert.Equal(t, "1500.5", table.Value(1, dataset.ColAmount))
	cell, _ = table.Cell(1, dataset.ColOwner)
	assert.False(t, cell.Valid)

	times, err := table.Times(dataset.ColUpdatedAt)
	require.NoError(t, err)
	assert.True(t, times[0].Time.Equal(updated))
}

func TestLoadTableRejectsUnsafeNames(t *testing.T) {
	q := &fakeQuerier{}
	_, err := LoadTable(context.Background(), q, "crm; drop table deals", "deals", "deals")
	require.Error(t, err)
	assert.True(t, apperrors.IsConfig(err))

	_, err = LoadTable(context.Background(), q, "crm", "", "deals")
	assert.True(t, apperrors.IsConfig(err))
	assert.Empty(t, q.queries)
}

func TestLoadTablesSkipsUnnamedTables(t *testing.T) {
	q := &fakeQuerier{rows: map[string]*fakeRows{
		`SELECT * FROM "public"."deals"`:    {columns: []string{"deal_id"}, data: [][]any{{"1"}}},
		`SELECT * FROM "public"."contacts"`: {columns: []string{"email"}, data: [][]any{{"a@b.com"}}},
	}}

	deals, activities, contacts, err := LoadTables(context.Background(), q, "public", Tables{Deals: "deals", Contacts: "contacts"})
	require.NoError(t, err)
	assert.Equal(t, 1, deals.Len())
	assert.Nil(t, activities)
	assert.Equal(t, "a@b.com", contacts.Value(0, dataset.ColEmail))

	_, _, _, err = LoadTables(context.Background(), q, "public", Tables{Deals: "deals", Activities: "activities"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrTypeNetwork))
}

func TestURLFromEnv(t *testing.T) {
	t.Setenv("CRM_AUDIT_DB_URL", "")
	t.Setenv("DATABASE_URL", " postgres://fallback ")
	assert.Equal(t, "postgres://fallback", URLFromEnv())

	t.Setenv("CRM_AUDIT_DB_URL", "postgres://primary")
	assert.Equal(t, "postgres://primary", URLFromEnv())
}
