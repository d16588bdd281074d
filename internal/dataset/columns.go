package dataset

import (
	"database/sql"
	"fmt"
	"strings"

	apperrors "crm-audit-toolkit/internal/errors"
)

// Status is the resolved deal status. Anything outside the closed
// vocabulary is Open.
type Status int

const (
	StatusOpen Status = iota
	StatusWon
	StatusLost
)

var statusVocabulary = map[string]Status{
	"won":         StatusWon,
	"closed won":  StatusWon,
	"lost":        StatusLost,
	"closed lost": StatusLost,
}

// ParseStatus resolves free-text status case-insensitively.
func ParseStatus(value string) Status {
	if status, ok := statusVocabulary[strings.ToLower(strings.TrimSpace(value))]; ok {
		return status
	}
	return StatusOpen
}

// Closed reports whether the status is won or lost.
func (s Status) Closed() bool {
	return s == StatusWon || s == StatusLost
}

func (s Status) String() string {
	switch s {
	case StatusWon:
		return "won"
	case StatusLost:
		return "lost"
	default:
		return "open"
	}
}

// Statuses resolves the status column. ok is false when the column is
// absent, in which case every row resolves to StatusOpen.
func (t *Table) Statuses(col string) ([]Status, bool) {
	out := make([]Status, t.Len())
	if !t.Has(col) {
		return out, false
	}
	for i := range out {
		out[i] = ParseStatus(t.Value(i, col))
	}
	return out, true
}

// Strings returns the column as nullable strings. ok is false when absent.
func (t *Table) Strings(col string) ([]sql.NullString, bool) {
	out := make([]sql.NullString, t.Len())
	if !t.Has(col) {
		return out, false
	}
	for i := range out {
		cell, _ := t.Cell(i, col)
		if cell.Valid {
			out[i] = sql.NullString{String: strings.TrimSpace(cell.Value), Valid: true}
		}
	}
	return out, true
}

// Times parses a required timestamp column. Nulls stay invalid; any non-null
// value that is not a recognizable date fails with a DataShape error.
func (t *Table) Times(col string) ([]sql.NullTime, error) {
	if err := t.Require(col); err != nil {
		return nil, err
	}
	out := make([]sql.NullTime, t.Len())
	for i := range out {
		value := t.Value(i, col)
		if value == "" {
			continue
		}
		parsed, err := ParseTime(value)
		if err != nil {
			return nil, apperrors.NewDataShapeError(
				fmt.Sprintf("%s: column %q row %d is not a date", t.Name, col, i+1), err).
				WithContext("column", col).
				WithContext("row", i+1)
		}
		out[i] = sql.NullTime{Time: parsed, Valid: true}
	}
	return out, nil
}

// CoerceTimes parses an optional timestamp column, turning unparseable
// values into nulls. ok is false when the column is absent.
func (t *Table) CoerceTimes(col string) ([]sql.NullTime, bool) {
	out := make([]sql.NullTime, t.Len())
	if !t.Has(col) {
		return out, false
	}
	for i := range out {
		if parsed, err := ParseTime(t.Value(i, col)); err == nil {
			out[i] = sql.NullTime{Time: parsed, Valid: true}
		}
	}
	return out, true
}

// Floats parses a numeric column. Nulls stay invalid; non-numeric values
// fail with a DataShape error. An absent column yields all-invalid values
// and ok=false.
func (t *Table) Floats(col string) (values []sql.NullFloat64, ok bool, err error) {
	values = make([]sql.NullFloat64, t.Len())
	if !t.Has(col) {
		return values, false, nil
	}
	for i := range values {
		value := t.Value(i, col)
		if value == "" {
			continue
		}
		parsed, perr := ParseNumber(value)
		if perr != nil {
			return nil, true, apperrors.NewDataShapeError(
				fmt.Sprintf("%s: column %q row %d is not numeric", t.Name, col, i+1), perr).
				WithContext("column", col).
				WithContext("row", i+1)
		}
		values[i] = sql.NullFloat64{Float64: parsed, Valid: true}
	}
	return values, true, nil
}

// Amounts returns the amount column with nulls and an absent column
// treated as 0.
func (t *Table) Amounts() ([]float64, error) {
	values, _, err := t.Floats(ColAmount)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	for i, value := range values {
		if value.Valid {
			out[i] = value.Float64
		}
	}
	return out, nil
}
