package quality

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"crm-audit-toolkit/internal/dataset"
)

func cleanDeals() *dataset.Table {
	return dataset.FromRecords("deals", []string{dataset.ColDealID, dataset.ColAmount},
		[][]string{{"1", "100"}, {"2", "200"}})
}

func TestCheckScenario(t *testing.T) {
	contacts := dataset.FromRecords("contacts", []string{dataset.ColEmail},
		[][]string{{""}, {"a@b.com"}, {"a@b.com"}})

	opts := DefaultOptions()
	opts.RequiredFields = []string{dataset.ColEmail}
	score := New(cleanDeals(), contacts).Check(opts)

	assert.Equal(t, []string{
		"Missing 'email' in contacts: 1 (33%)",
		"Duplicate contacts (by email): 1 found",
	}, score.Issues)
	assert.Equal(t, 1, score.DuplicateCount)
	assert.Equal(t, 1, score.EmptyRequired)
	assert.Equal(t, 90, score.Overall)
}

func TestCleanDataScoresHundred(t *testing.T) {
	contacts := dataset.FromRecords("contacts", []string{dataset.ColEmail, dataset.ColPhone},
		[][]string{{"a@b.com", "1"}, {"c@d.org", "2"}})

	opts := DefaultOptions()
	opts.RequiredFields = []string{dataset.ColEmail, dataset.ColPhone}
	score := New(cleanDeals(), contacts).Check(opts)

	assert.Equal(t, 100, score.Overall)
	assert.Empty(t, score.Issues)
	assert.Equal(t, Summary{Score: 100, TopIssues: []string{}}, score.Summary())
}

func TestScoreNeverBelowZero(t *testing.T) {
	records := make([][]string, 0, 200)
	contactRecords := make([][]string, 0, 200)
	for i := 0; i < 200; i++ {
		records = append(records, []string{"same-id", "", ""})
		contactRecords = append(contactRecords, []string{fmt.Sprintf("broken%d", i%50), ""})
	}
	deals := dataset.FromRecords("deals", []string{dataset.ColDealID, dataset.ColOwner, dataset.ColStage}, records)
	contacts := dataset.FromRecords("contacts", []string{dataset.ColEmail, dataset.ColCompany}, contactRecords)

	opts := DefaultOptions()
	opts.RequiredFields = []string{dataset.ColOwner, dataset.ColStage, dataset.ColCompany, dataset.ColPhone}
	score := New(deals, contacts).Check(opts)

	assert.GreaterOrEqual(t, score.Overall, 0)
	assert.LessOrEqual(t, score.Overall, 100)
	assert.Equal(t, 30, score.Overall)
	assert.Len(t, score.Summary().TopIssues, 5)
	assert.Len(t, score.Issues, 6)
	assert.Equal(t, 50, score.DuplicateCount)
	assert.Equal(t, 600, score.EmptyRequired)
}

func TestDuplicateDealIDs(t *testing.T) {
	deals := dataset.FromRecords("deals", []string{dataset.ColDealID},
		[][]string{{"1"}, {"1"}, {"1"}, {"2"}, {""}, {""}})

	score := New(deals, nil).Check(DefaultOptions())
	assert.Equal(t, []string{"Duplicate deal IDs: 2"}, score.Issues)
	assert.Equal(t, 98, score.Overall)

	score = New(deals, nil).Check(Options{})
	assert.Equal(t, 100, score.Overall)
}

func TestMalformedEmails(t *testing.T) {
	contacts := dataset.FromRecords("contacts", []string{dataset.ColEmail},
		[][]string{{"good@example.com"}, {"nobody"}, {"x@y"}, {"@example.com"}, {""}})

	score := New(cleanDeals(), contacts).Check(Options{CheckFormatting: true})
	assert.Equal(t, []string{"Malformed email addresses: 3"}, score.Issues)
	assert.Equal(t, 99, score.Overall)
	assert.Equal(t, 0, score.EmptyRequired)
}
