// Package quality scores CRM data hygiene from 0 to 100.
package quality

import (
	"fmt"
	"math"
	"regexp"

	"crm-audit-toolkit/internal/dataset"
)

// DefaultContactFields are required when contacts are supplied and the
// configuration names no fields.
var DefaultContactFields = []string{dataset.ColEmail, dataset.ColCompany, dataset.ColPhone}

// topIssues is how many issues the summary carries.
const topIssues = 5

var emailPattern = regexp.MustCompile(`.+@.+\..+`)

// Options selects which checks run.
type Options struct {
	RequiredFields  []string
	CheckDuplicates bool
	CheckFormatting bool
}

// DefaultOptions runs every check with no required fields.
func DefaultOptions() Options {
	return Options{CheckDuplicates: true, CheckFormatting: true}
}

// Score is the outcome of one Check.
type Score struct {
	Overall        int
	Issues         []string
	DuplicateCount int
	EmptyRequired  int
}

// Summary is the data-quality section of the audit report.
type Summary struct {
	Score          int      `json:"score"`
	TopIssues      []string `json:"top_issues"`
	DuplicateCount int      `json:"duplicate_count"`
	EmptyRequired  int      `json:"empty_required"`
}

// Scorer checks deals and optional contacts.
type Scorer struct {
	deals    *dataset.Table
	contacts *dataset.Table
}

// New copies deals and contacts; contacts may be nil.
func New(deals, contacts *dataset.Table) *Scorer {
	return &Scorer{deals: deals.Clone(), contacts: contacts.Clone()}
}

type penalties struct {
	total  float64
	issues []string
}

func (p *penalties) add(amount, limit float64, format string, args ...interface{}) {
	p.issues = append(p.issues, fmt.Sprintf(format, args...))
	p.total += math.Min(amount, limit)
}

// Check accumulates capped penalties for missing required fields, duplicate
// emails and deal ids, and malformed emails. The score never leaves [0, 100].
func (s *Scorer) Check(opts Options) Score {
	p := &penalties{issues: make([]string, 0)}

	for _, field := range opts.RequiredFields {
		if missing, pct := missingValues(s.deals, field); missing > 0 {
			p.add(pct/2, 10, "Missing '%s': %d records (%.0f%%)", field, missing, pct)
		}
	}
	if s.contacts != nil {
		for _, field := range opts.RequiredFields {
			if missing, pct := missingValues(s.contacts, field); missing > 0 {
				p.add(pct/2, 10, "Missing '%s' in contacts: %d (%.0f%%)", field, missing, pct)
			}
		}
	}

	duplicates := 0
	if opts.CheckDuplicates {
		if s.contacts.Has(dataset.ColEmail) {
			if duplicates = duplicateValues(s.contacts, dataset.ColEmail); duplicates > 0 {
				p.add(float64(duplicates)/5, 15, "Duplicate contacts (by email): %d found", duplicates)
			}
		}
		if s.deals.Has(dataset.ColDealID) {
			if dupes := duplicateRows(s.deals, dataset.ColDealID); dupes > 0 {
				p.add(float64(dupes), 10, "Duplicate deal IDs: %d", dupes)
			}
		}
	}

	emptyRequired := 0
	if opts.CheckFormatting {
		if s.contacts.Has(dataset.ColEmail) {
			if malformed := malformedEmails(s.contacts); malformed > 0 {
				p.add(float64(malformed)/3, 10, "Malformed email addresses: %d", malformed)
			}
		}
		for _, field := range opts.RequiredFields {
			emptyRequired += nullValues(s.deals, field)
			if s.contacts != nil {
				emptyRequired += nullValues(s.contacts, field)
			}
		}
	}

	score := int(math.RoundToEven(100 - p.total))
	if score < 0 {
		score = 0
	}
	return Score{
		Overall:        score,
		Issues:         p.issues,
		DuplicateCount: duplicates,
		EmptyRequired:  emptyRequired,
	}
}

// Summary exposes the score and the first five issues.
func (s Score) Summary() Summary {
	top := s.Issues
	if len(top) > topIssues {
		top = top[:topIssues]
	}
	return Summary{
		Score:          s.Overall,
		TopIssues:      append([]string{}, top...),
		DuplicateCount: s.DuplicateCount,
		EmptyRequired:  s.EmptyRequired,
	}
}

// missingValues counts null or blank cells. Absent columns report nothing.
func missingValues(t *dataset.Table, col string) (int, float64) {
	if !t.Has(col) || t.Len() == 0 {
		return 0, 0
	}
	missing := 0
	for i := 0; i < t.Len(); i++ {
		if cell, _ := t.Cell(i, col); cell.Empty() {
			missing++
		}
	}
	return missing, float64(missing) / float64(t.Len()) * 100
}

func nullValues(t *dataset.Table, col string) int {
	values, ok := t.Strings(col)
	if !ok {
		return 0
	}
	count := 0
	for _, v := range values {
		if !v.Valid {
			count++
		}
	}
	return count
}

// duplicateValues counts distinct non-null values that occur more than once.
func duplicateValues(t *dataset.Table, col string) int {
	values, _ := t.Strings(col)
	seen := make(map[string]int)
	for _, v := range values {
		if v.Valid {
			seen[v.String]++
		}
	}
	dupes := 0
	for _, n := range seen {
		if n > 1 {
			dupes++
		}
	}
	return dupes
}

// duplicateRows counts non-null rows repeating an earlier value.
func duplicateRows(t *dataset.Table, col string) int {
	values, _ := t.Strings(col)
	seen := make(map[string]bool)
	dupes := 0
	for _, v := range values {
		if !v.Valid {
			continue
		}
		if seen[v.String] {
			dupes++
		}
		seen[v.String] = true
	}
	return dupes
}

func malformedEmails(t *dataset.Table) int {
	values, _ := t.Strings(dataset.ColEmail)
	bad := 0
	for _, v := range values {
		if v.Valid && !emailPattern.MatchString(v.String) {
			bad++
		}
	}
	return bad
}
