package funnel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-audit-toolkit/internal/dataset"
	apperrors "crm-audit-toolkit/internal/errors"
)

var asOf = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

func pct(v float64) *float64 { return &v }

func dealsTable(records [][]string) *dataset.Table {
	return dataset.FromRecords("deals",
		[]string{dataset.ColDealID, dataset.ColStage, dataset.ColStatus, dataset.ColCreatedAt},
		records)
}

func TestAnalyzeScenario(t *testing.T) {
	deals := dealsTable([][]string{
		{"1", "Lead", "Open", "2026-08-01"},
		{"2", "Lead", "Lost", "2026-08-02"},
		{"3", "Demo", "Open", "2026-08-03"},
		{"4", "Lead", "Won", "2026-08-04"},
		{"5", "Discovery", "Open", "2026-08-05"},
	})

	analyzer, err := New(deals)
	require.NoError(t, err)
	result := analyzer.Analyze(Query{Stages: []string{"Lead", "Demo", "Won"}}, asOf)

	rates := result.ConversionRates()
	assert.Equal(t, []StageRate{
		{Stage: "Lead", Count: 4},
		{Stage: "Demo", Count: 2, ConversionPct: pct(50)},
		{Stage: "Won", Count: 1, ConversionPct: pct(50)},
	}, rates)

	assert.Len(t, result.Bottlenecks(60), 2)
	assert.Empty(t, result.Bottlenecks(50))

	summary := result.Summary()
	require.NotNil(t, summary.BiggestDropoff)
	assert.Equal(t, "Lead -> Demo (50% loss)", *summary.BiggestDropoff)
	assert.Equal(t, rates, summary.ConversionRates)
}

func TestCountsAreNonIncreasing(t *testing.T) {
	deals := dealsTable([][]string{
		{"1", "Negotiation", "Open", "2026-05-01"},
		{"2", "Lead", "Won", "2026-05-01"},
		{"3", "Proposal", "Lost", "2026-05-01"},
		{"4", "Qualified", "Open", "2026-05-01"},
		{"5", "Closed Won", "", "2026-05-01"},
	})

	analyzer, err := New(deals)
	require.NoError(t, err)
	counts := analyzer.Analyze(Query{}, asOf).Counts()

	require.Len(t, counts, len(DefaultStages))
	for i := 1; i < len(counts); i++ {
		assert.LessOrEqual(t, counts[i].Count, counts[i-1].Count)
	}
	assert.Equal(t, 5, counts[0].Count)
	assert.Equal(t, 2, counts[5].Count)
}

func TestConversionUndefinedAfterEmptyStage(t *testing.T) {
	deals := dealsTable([][]string{{"1", "Lead", "Open", "2026-05-01"}})

	analyzer, err := New(deals)
	require.NoError(t, err)
	rates := analyzer.Analyze(Query{Stages: []string{"Lead", "Demo", "Won"}}, asOf).ConversionRates()

	assert.Nil(t, rates[0].ConversionPct)
	require.NotNil(t, rates[1].ConversionPct)
	assert.Equal(t, 0.0, *rates[1].ConversionPct)
	assert.Nil(t, rates[2].ConversionPct)
}

func TestSummaryWithoutRates(t *testing.T) {
	analyzer, err := New(dealsTable(nil))
	require.NoError(t, err)
	summary := analyzer.Analyze(Query{Stages: []string{"Lead"}}, asOf).Summary()
	assert.Nil(t, summary.BiggestDropoff)
}

func TestPeriodFilter(t *testing.T) {
	deals := dealsTable([][]string{
		{"1", "Lead", "Open", "2026-02-28"},
		{"2", "Lead", "Open", "2026-02-27"},
		{"3", "Lead", "Open", "2026-06-15"},
		{"4", "Lead", "Open", "2025-12-01"},
		{"5", "Lead", "Open", ""},
	})
	analyzer, err := New(deals)
	require.NoError(t, err)

	tests := []struct {
		name  string
		query Query
		want  int
	}{
		{"no filter keeps everything", Query{}, 5},
		{"six months clamps to end of february", Query{Period: PeriodLast6Months}, 2},
		{"unknown period means six months", Query{Period: "last_fortnight"}, 2},
		{"three months", Query{Period: PeriodLast3Months}, 1},
		{"year", Query{Period: PeriodLastYear}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts := analyzer.Analyze(Query{Stages: []string{"Lead"}, Period: tt.query.Period}, asOf).Counts()
			assert.Equal(t, tt.want, counts[0].Count)
		})
	}

	start := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	counts := analyzer.Analyze(Query{Stages: []string{"Lead"}, Start: &start, End: &end}, asOf).Counts()
	assert.Equal(t, 2, counts[0].Count, "explicit bounds are inclusive")
}

func TestSubtractMonths(t *testing.T) {
	assert.Equal(t, time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC),
		subtractMonths(time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC), 6))
	assert.Equal(t, time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC),
		subtractMonths(time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), 3))
}

func TestNewRequiresColumns(t *testing.T) {
	_, err := New(dataset.FromRecords("deals", []string{dataset.ColCreatedAt}, [][]string{{"2026-01-01"}}))
	assert.True(t, apperrors.IsDataShape(err))

	_, err = New(dataset.FromRecords("deals", []string{dataset.ColStage}, [][]string{{"Lead"}}))
	assert.True(t, apperrors.IsDataShape(err))

	_, err = New(dealsTable([][]string{{"1", "Lead", "Open", "not a date"}}))
	assert.True(t, apperrors.IsDataShape(err))
}
