package dataset

import (
	"fmt"
	"strings"

	apperrors "crm-audit-toolkit/internal/errors"
)

// Canonical column names. Source exports are renamed to these at load time.
const (
	ColDealID       = "deal_id"
	ColAmount       = "amount"
	ColStatus       = "status"
	ColOwner        = "owner"
	ColStage        = "stage"
	ColCreatedAt    = "created_at"
	ColUpdatedAt    = "updated_at"
	ColClosedAt     = "closed_at"
	ColActivityTime = "activity_time"
	ColEmail        = "email"
	ColPhone        = "phone"
	ColCompany      = "company"
)

// Cell is one scalar value. Valid is false for null (an empty CSV field,
// an empty spreadsheet cell, or SQL NULL).
type Cell struct {
	Value string
	Valid bool
}

// Null returns a null cell.
func Null() Cell {
	return Cell{}
}

// Text returns a non-null cell holding value.
func Text(value string) Cell {
	return Cell{Value: value, Valid: true}
}

// Empty reports whether the cell is null or holds only whitespace.
func (c Cell) Empty() bool {
	return !c.Valid || strings.TrimSpace(c.Value) == ""
}

// Table is an in-memory table of rows with named columns.
type Table struct {
	Name    string
	columns []string
	index   map[string]int
	rows    [][]Cell
}

// New creates an empty table with the given columns. Duplicate column names
// keep their first position.
func New(name string, columns []string) *Table {
	t := &Table{
		Name:    name,
		columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for _, col := range columns {
		if _, exists := t.index[col]; exists {
			continue
		}
		t.index[col] = len(t.columns)
		t.columns = append(t.columns, col)
	}
	return t
}

// FromRecords builds a table from string records. Empty strings become nulls.
func FromRecords(name string, columns []string, records [][]string) *Table {
	t := New(name, columns)
	for _, record := range records {
		t.AppendStrings(record...)
	}
	return t
}

// Append adds a row. Missing trailing cells are null; extra cells are dropped.
func (t *Table) Append(cells ...Cell) {
	row := make([]Cell, len(t.columns))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// AppendStrings adds a row of raw values, treating "" as null.
func (t *Table) AppendStrings(values ...string) {
	cells := make([]Cell, len(values))
	for i, value := range values {
		if value == "" {
			cells[i] = Null()
			continue
		}
		cells[i] = Text(value)
	}
	t.Append(cells...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Has reports whether the column is present.
func (t *Table) Has(col string) bool {
	if t == nil {
		return false
	}
	_, ok := t.index[col]
	return ok
}

// Cell returns the value at row/col. ok is false when the column is absent.
func (t *Table) Cell(row int, col string) (Cell, bool) {
	idx, ok := t.index[col]
	if !ok {
		return Cell{}, false
	}
	return t.rows[row][idx], true
}

// Value returns the trimmed string at row/col, or "" for null or absent.
func (t *Table) Value(row int, col string) string {
	cell, ok := t.Cell(row, col)
	if !ok || !cell.Valid {
		return ""
	}
	return strings.TrimSpace(cell.Value)
}

// Require fails with a DataShape error naming the first absent column.
func (t *Table) Require(cols ...string) error {
	for _, col := range cols {
		if !t.Has(col) {
			return apperrors.MissingColumn(t.Name, col)
		}
	}
	return nil
}

// Clone returns a deep copy. Analyzers work on clones so derived columns
// never leak between modules sharing one base table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	clone := New(t.Name, t.columns)
	clone.rows = make([][]Cell, len(t.rows))
	for i, row := range t.rows {
		clone.rows[i] = append([]Cell(nil), row...)
	}
	return clone
}

// SetColumn adds or replaces a column. values must have one cell per row.
func (t *Table) SetColumn(col string, values []Cell) error {
	if len(values) != len(t.rows) {
		return fmt.Errorf("%s: column %q has %d values for %d rows", t.Name, col, len(values), len(t.rows))
	}
	idx, exists := t.index[col]
	if !exists {
		idx = len(t.columns)
		t.index[col] = idx
		t.columns = append(t.columns, col)
		for i := range t.rows {
			t.rows[i] = append(t.rows[i], Cell{})
		}
	}
	for i, value := range values {
		t.rows[i][idx] = value
	}
	return nil
}

// Rename maps source column names to canonical names. mapping is keyed by
// canonical name (the shape of the config "columns" section). Source names
// are matched ignoring case, spaces, underscores and dashes.
func (t *Table) Rename(mapping map[string]string) {
	if len(mapping) == 0 {
		return
	}
	normalized := make(map[string]int, len(t.columns))
	for idx, col := range t.columns {
		key := normalizeHeader(col)
		if _, exists := normalized[key]; !exists {
			normalized[key] = idx
		}
	}
	for canonical, source := range mapping {
		idx, ok := normalized[normalizeHeader(source)]
		if !ok || t.columns[idx] == canonical {
			continue
		}
		if _, taken := t.index[canonical]; taken {
			continue
		}
		delete(t.index, t.columns[idx])
		t.columns[idx] = canonical
		t.index[canonical] = idx
	}
}

func normalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}
