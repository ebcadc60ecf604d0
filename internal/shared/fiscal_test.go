package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFiscalYear(t *testing.T) {
	start, err := ParseFiscalYear("2024-2025")
	require.NoError(t, err)
	assert.Equal(t, 2024, start)

	_, err = ParseFiscalYear("2024-2026")
	assert.Error(t, err)

	_, err = ParseFiscalYear("FY2024")
	assert.Error(t, err)
}

func TestFiscalYearForDate(t *testing.T) {
	assert.Equal(t, "2024-2025", FiscalYearForDate(time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-2025", FiscalYearForDate(time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2023-2024", FiscalYearForDate(time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)))
}

func TestFiscalMonthsPartitionYear(t *testing.T) {
	months, err := FiscalMonths("2024-2025")
	require.NoError(t, err)
	require.Len(t, months, 12)

	assert.Equal(t, 7, months[0].Month)
	assert.Equal(t, 2024, months[0].Year)
	assert.Equal(t, 6, months[11].Month)
	assert.Equal(t, 2025, months[11].Year)

	for i := 1; i < len(months); i++ {
		assert.Equal(t, months[i-1].End.AddDate(0, 0, 1), months[i].Start, "months must be contiguous")
	}
	assert.Equal(t, time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC), months[11].End)
}
