package partition

import (
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/scholara/internal/invoicearchive/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeQuarterBoundaries(t *testing.T) {
	start, end, upper := Range(2024, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC), end)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), upper)

	_, end, upper = Range(2024, 4)
	assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), end)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), upper)
}

func TestEveryDayMapsToExactlyOneQuarter(t *testing.T) {
	for day := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC); day.Year() == 2024; day = day.AddDate(0, 0, 1) {
		matches := 0
		for q := 1; q <= 4; q++ {
			start, _, upper := Range(2024, q)
			if !day.Before(start) && day.Before(upper) {
				matches++
				assert.Equal(t, q, QuarterOf(day), day.String())
			}
		}
		require.Equal(t, 1, matches, day.String())
	}
}

func TestNameParseRoundTrip(t *testing.T) {
	name := Name(2023, 3)
	assert.Equal(t, "invoices_2023_q3", name)
	assert.Equal(t, "invoices_archive_2023_q3", ArchiveName(2023, 3))
	assert.Equal(t, "2023_q3", Key(2023, 3))

	year, quarter, ok := Parse(name)
	require.True(t, ok)
	assert.Equal(t, 2023, year)
	assert.Equal(t, 3, quarter)

	for _, bad := range []string{"invoices_2023_q5", "invoices_archive_2023_q1", "invoices_23_q1", "users"} {
		_, _, ok := Parse(bad)
		assert.False(t, ok, bad)
	}
}

func TestValidateIdentifier(t *testing.T) {
	spec := Spec(2024, 2)
	require.NoError(t, ValidateIdentifier(spec.Name))
	require.NoError(t, ValidateIdentifier(spec.Parent))
	require.NoError(t, ValidateIdentifier(ArchiveName(2024, 2)))
	for _, idx := range spec.Indexes {
		require.NoError(t, ValidateIdentifier(idx.Name))
	}

	err := ValidateIdentifier(`invoices_2024_q1"; DROP TABLE students; --`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidIdentifier))
}

func TestAgeInMonths(t *testing.T) {
	_, end, _ := Range(2023, 1)

	assert.Equal(t, 0, AgeInMonths(end, end.AddDate(0, 0, -10)))
	assert.Equal(t, 1, AgeInMonths(end, end.AddDate(0, 1, 0)))
	assert.Equal(t, 13, AgeInMonths(end, end.AddDate(0, 13, 0)))
	assert.Equal(t, 12, AgeInMonths(end, end.AddDate(0, 13, 0).Add(-48*time.Hour)))
	assert.Equal(t, 8, AgeInYears(end, end.AddDate(8, 0, 1)))
}

func TestAgeInMonthsAtShortMonthEnds(t *testing.T) {
	_, end, _ := Range(2024, 1)
	require.Equal(t, time.Date(2024, time.March, 31, 23, 59, 59, 0, time.UTC), end)

	assert.Equal(t, 3, AgeInMonths(end, time.Date(2024, time.June, 30, 23, 59, 59, 0, time.UTC)))
	assert.Equal(t, 2, AgeInMonths(end, time.Date(2024, time.June, 30, 23, 59, 58, 0, time.UTC)))
	assert.Equal(t, 13, AgeInMonths(end, time.Date(2025, time.April, 30, 23, 59, 59, 0, time.UTC)))
	assert.Equal(t, 11, AgeInMonths(end, time.Date(2025, time.February, 28, 23, 59, 59, 0, time.UTC)))
	assert.Equal(t, 12, AgeInMonths(end, time.Date(2025, time.March, 31, 23, 59, 59, 0, time.UTC)))

	policy := domain.DefaultPolicy()
	policy.ArchiveAfterMonths = 12
	policy.CompressAfterMonths = 24
	assert.Equal(t, domain.PartitionStatusArchived, Status(policy, end, time.Date(2025, time.April, 30, 23, 59, 59, 0, time.UTC)))
}

func TestStatusDerivation(t *testing.T) {
	policy := domain.DefaultPolicy()
	_, end, _ := Range(2022, 2)

	assert.Equal(t, domain.PartitionStatusActive, Status(policy, end, end.AddDate(0, 1, 0)))
	assert.Equal(t, domain.PartitionStatusArchived, Status(policy, end, end.AddDate(0, 13, 0)))
	assert.Equal(t, domain.PartitionStatusCompressed, Status(policy, end, end.AddDate(0, 25, 0)))
}

func TestStatusNeverRegresses(t *testing.T) {
	policy := domain.DefaultPolicy()
	_, end, _ := Range(2020, 4)
	rank := map[domain.PartitionStatus]int{
		domain.PartitionStatusActive:     0,
		domain.PartitionStatusArchived:   1,
		domain.PartitionStatusCompressed: 2,
	}

	prev := -1
	for now := end; now.Before(end.AddDate(4, 0, 0)); now = now.AddDate(0, 0, 7) {
		current := rank[Status(policy, end, now)]
		require.GreaterOrEqual(t, current, prev, now.String())
		prev = current
	}
}
