package deaddeals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-audit-toolkit/internal/dataset"
	apperrors "crm-audit-toolkit/internal/errors"
)

var asOf = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(days int) string {
	return asOf.AddDate(0, 0, -days).Format(time.RFC3339)
}

func TestFindScenario(t *testing.T) {
	deals := dataset.FromRecords("deals",
		[]string{dataset.ColDealID, dataset.ColStatus, dataset.ColUpdatedAt, dataset.ColAmount},
		[][]string{
			{"1", "Open", daysAgo(45), "1000"},
			{"2", "Won", daysAgo(5), "500"},
		})

	finder, err := New(deals)
	require.NoError(t, err)

	dead := finder.Find(30, 0, asOf)
	require.Len(t, dead, 1)
	assert.Equal(t, "1", dead[0].DealID)
	assert.Equal(t, 45, dead[0].DaysStale)

	summary := finder.Summary(30, 0, asOf)
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, 1000.0, summary.RevenueAtRisk)
	assert.Equal(t, 100.0, summary.Pct)
	assert.Equal(t, 45.0, summary.AvgDaysStale)
}

func TestFindThresholdBoundary(t *testing.T) {
	deals := dataset.FromRecords("deals",
		[]string{dataset.ColDealID, dataset.ColUpdatedAt},
		[][]string{
			{"at-threshold", daysAgo(30)},
			{"past-threshold", asOf.AddDate(0, 0, -30).Add(-time.Minute).Format(time.RFC3339)},
		})

	finder, err := New(deals)
	require.NoError(t, err)

	dead := finder.Find(30, 0, asOf)
	require.Len(t, dead, 1)
	assert.Equal(t, "past-threshold", dead[0].DealID)
}

func TestFindOrderingAndFilters(t *testing.T) {
	deals := dataset.FromRecords("deals",
		[]string{dataset.ColDealID, dataset.ColStatus, dataset.ColUpdatedAt, dataset.ColAmount},
		[][]string{
			{"a", "open", daysAgo(40), "100"},
			{"b", "in progress", daysAgo(90), "200"},
			{"c", "Closed Lost", daysAgo(120), "300"},
			{"d", "", daysAgo(40), "50"},
			{"e", "open", "", "900"},
			{"f", "open", daysAgo(60), ""},
			{"g", "open", daysAgo(-3), "100"},
		})

	finder, err := New(deals)
	require.NoError(t, err)

	dead := finder.Find(30, 0, asOf)
	ids := make([]string, len(dead))
	for i, deal := range dead {
		ids[i] = deal.DealID
		assert.GreaterOrEqual(t, deal.DaysStale, 0)
		if i > 0 {
			assert.LessOrEqual(t, deal.DaysStale, dead[i-1].DaysStale)
		}
	}
	assert.Equal(t, []string{"b", "f", "a", "d"}, ids)

	filtered := finder.Find(30, 100, asOf)
	assert.Len(t, filtered, 2)
}

func TestSummaryEmpty(t *testing.T) {
	deals := dataset.FromRecords("deals",
		[]string{dataset.ColUpdatedAt, dataset.ColStatus},
		[][]string{{daysAgo(1), "Open"}})

	finder, err := New(deals)
	require.NoError(t, err)

	summary := finder.Summary(30, 0, asOf)
	assert.Equal(t, Summary{}, summary)
}

func TestNewRequiresParseableUpdatedAt(t *testing.T) {
	_, err := New(dataset.FromRecords("deals", []string{dataset.ColDealID}, [][]string{{"1"}}))
	require.Error(t, err)
	assert.True(t, apperrors.IsDataShape(err))

	_, err = New(dataset.FromRecords("deals", []string{dataset.ColUpdatedAt}, [][]string{{"yesterday"}}))
	require.Error(t, err)
	assert.True(t, apperrors.IsDataShape(err))
}
