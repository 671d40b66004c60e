package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRange(t *testing.T) {
	t.Run("explicit start and end", func(t *testing.T) {
		f := commonFlags{start: "2026-01-01", end: "2026-01-08"}
		start, end, err := f.dateRange()
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC), end)
	})

	t.Run("end before start", func(t *testing.T) {
		f := commonFlags{start: "2026-01-08", end: "2026-01-01"}
		_, _, err := f.dateRange()
		assert.Error(t, err)
	})

	t.Run("malformed date", func(t *testing.T) {
		f := commonFlags{start: "01/08/2026", end: "2026-01-08"}
		_, _, err := f.dateRange()
		assert.Error(t, err)
	})

	t.Run("defaults to days back from utc midnight", func(t *testing.T) {
		f := commonFlags{daysBack: 7}
		start, end, err := f.dateRange()
		require.NoError(t, err)

		assert.Equal(t, time.Duration(0), end.Sub(end.Truncate(24*time.Hour)))
		assert.Equal(t, end.AddDate(0, 0, -7), start)
	})
}
