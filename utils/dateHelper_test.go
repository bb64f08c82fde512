package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOnly(t *testing.T) {
	yangon := time.FixedZone("MMT", 6*3600+1800)
	// 20:00 UTC on Dec 31 is already Jan 1 in Yangon.
	instant := time.Date(2023, 12, 31, 20, 0, 0, 0, time.UTC)

	assert.True(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC).Equal(DateOnly(instant, nil)))
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(DateOnly(instant, yangon)))
	assert.True(t, DateOnly(instant, time.UTC).Equal(Today(func() time.Time { return instant }, time.UTC)))
}

func TestAddDaysAndDaysBetween(t *testing.T) {
	start, err := ParseDate("2024-01-01")
	require.NoError(t, err)

	assert.Equal(t, "2024-03-31", FormatDate(AddDays(start, 90)))
	assert.Equal(t, "2024-03-01", FormatDate(AddDays(start, 60)))
	assert.Equal(t, 90, DaysBetween(start, AddDays(start, 90)))
	assert.Equal(t, -1, DaysBetween(start, AddDays(start, -1)))

	_, err = ParseDate("01/02/2024")
	require.Error(t, err)
}

func TestReportObjectName(t *testing.T) {
	day, err := ParseDate("2024-03-30")
	require.NoError(t, err)
	assert.Equal(t, "reports/MFG001/near-expiry-2024-03-30.xlsx", ReportObjectName("MFG001", "near-expiry", day))
}
