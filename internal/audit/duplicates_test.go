package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opera-sds/granule-audit/internal/cmr"
	"github.com/opera-sds/granule-audit/internal/config"
	"github.com/opera-sds/granule-audit/internal/schema"
)

func dswxProduct(t *testing.T) *schema.Product {
	t.Helper()

	registry, err := schema.NewRegistry(map[string]config.Product{
		"DSWX_HLS": {
			Pattern: `OPERA_L3_DSWx-HLS_(?P<tile_id>T[^\W_]{5})_(?P<acquisition_ts>\d{8}T\d{6}Z)_` +
				`(?P<creation_ts>\d{8}T\d{6}Z)_(?P<sensor>S2A|S2B|S2C|S2D|L8|L9)_30_v\d+[.]\d+`,
			UniqueFields:      []string{"tile_id", "acquisition_ts", "sensor"},
			AggregationField:  "acquisition_ts",
			AggregationFormat: "20060102T150405Z",
			CreationField:     "creation_ts",
		},
	})
	require.NoError(t, err)

	p, err := registry.Resolve("DSWX_HLS")
	require.NoError(t, err)
	return p
}

func staticProduct(t *testing.T) *schema.Product {
	t.Helper()

	registry, err := schema.NewRegistry(map[string]config.Product{
		"RTC_S1_STATIC": {
			Pattern: `OPERA_L2_RTC-S1-STATIC_(?P<burst_id>\w{4}-\w{6}-\w{3})_(?P<validity_ts>\d{8})_` +
				`(?P<sensor>S1[A-D])_30_v\d+[.]\d+`,
			UniqueFields:      []string{"burst_id", "validity_ts", "sensor"},
			AggregationField:  "validity_ts",
			AggregationFormat: "20060102",
		},
	})
	require.NoError(t, err)

	p, err := registry.Resolve("RTC_S1_STATIC")
	require.NoError(t, err)
	return p
}

func urs(ids ...string) []cmr.Granule {
	granules := make([]cmr.Granule, len(ids))
	for i, id := range ids {
		granules[i] = cmr.Granule{UR: id}
	}
	return granules
}

func TestDetectDuplicatesEmpty(t *testing.T) {
	report, err := DetectDuplicates(nil, dswxProduct(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Total)
	assert.Equal(t, 0, report.Unique)
	assert.Equal(t, 0, report.Duplicates)
	assert.Empty(t, report.DuplicateList)
	assert.Empty(t, report.ByDate)
}

func TestDetectDuplicatesAllUnique(t *testing.T) {
	records := urs(
		"OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L8_30_v1.0",
		"OPERA_L3_DSWx-HLS_T10TEM_20260116T180931Z_20260116T235959Z_L8_30_v1.0",
		"OPERA_L3_DSWx-HLS_T11SKA_20260115T183045Z_20260115T230000Z_S2A_30_v1.0",
	)

	report, err := DetectDuplicates(records, dswxProduct(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Unique)
	assert.Equal(t, 0, report.Duplicates)
	assert.Empty(t, report.DuplicateList)
}

func TestDetectDuplicatesKeepsLatestCreation(t *testing.T) {
	older := "OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L8_30_v1.0"
	newer := "OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260116T003045Z_L8_30_v1.0"
	other := "OPERA_L3_DSWx-HLS_T11SKA_20260115T183045Z_20260115T230000Z_S2A_30_v1.0"

	t.Run("newer arrives second", func(t *testing.T) {
		report, err := DetectDuplicates(urs(older, newer, other), dswxProduct(t), nil)
		require.NoError(t, err)

		assert.Equal(t, 3, report.Total)
		assert.Equal(t, 2, report.Unique)
		assert.Equal(t, 1, report.Duplicates)
		assert.Equal(t, []string{older}, report.DuplicateList)
	})

	t.Run("newer arrives first", func(t *testing.T) {
		report, err := DetectDuplicates(urs(newer, older, other), dswxProduct(t), nil)
		require.NoError(t, err)

		assert.Equal(t, []string{older}, report.DuplicateList)
	})
}

func TestDetectDuplicatesEqualCreationKeepsFirstSeen(t *testing.T) {
	first := "OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L8_30_v1.0"
	second := "OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L8_30_v2.0"

	report, err := DetectDuplicates(urs(first, second), dswxProduct(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Unique)
	assert.Equal(t, []string{second}, report.DuplicateList)
}

func TestDetectDuplicatesNoCreationFieldFirstSeenWins(t *testing.T) {
	first := "OPERA_L2_RTC-S1-STATIC_T123-456789-IW1_20240105_S1A_30_v1.0"
	second := "OPERA_L2_RTC-S1-STATIC_T123-456789-IW1_20240105_S1A_30_v2.0"
	third := "OPERA_L2_RTC-S1-STATIC_T123-456789-IW1_20240105_S1A_30_v3.0"

	report, err := DetectDuplicates(urs(first, second, third), staticProduct(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Unique)
	assert.Equal(t, 2, report.Duplicates)
	assert.ElementsMatch(t, []string{second, third}, report.DuplicateList)
}

func TestDetectDuplicatesByDate(t *testing.T) {
	records := urs(
		"OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L8_30_v1.0",
		"OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260116T003045Z_L8_30_v1.0",
		"OPERA_L3_DSWx-HLS_T11SKA_20260116T183045Z_20260116T230000Z_S2A_30_v1.0",
	)

	report, err := DetectDuplicates(records, dswxProduct(t), nil)
	require.NoError(t, err)

	require.Contains(t, report.ByDate, "2026-01-15")
	require.Contains(t, report.ByDate, "2026-01-16")

	jan15 := report.ByDate["2026-01-15"]
	assert.Equal(t, 2, jan15.Total)
	assert.Equal(t, 1, jan15.Unique)
	assert.Equal(t, 1, jan15.Duplicates)

	jan16 := report.ByDate["2026-01-16"]
	assert.Equal(t, 1, jan16.Total)
	assert.Equal(t, 1, jan16.Unique)
	assert.Equal(t, 0, jan16.Duplicates)
}

func TestDetectDuplicatesSkipsUnparseable(t *testing.T) {
	records := urs(
		"OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L8_30_v1.0",
		"NOT_A_GRANULE_ID",
		"OPERA_L3_DSWx-HLS_T11SKA_20260115T183045Z_20260115T230000Z_S2A_30_v1.0",
	)

	report, err := DetectDuplicates(records, dswxProduct(t), nil)
	require.NoError(t, err)

	// Unparseable records count toward total but not toward grouping.
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Unique)
	assert.Equal(t, 0, report.Duplicates)
}

func TestDetectDuplicatesTotalSchemaMismatchFails(t *testing.T) {
	records := urs("HLS.S30.T10TEM.2026001T183821.v2.0", "HLS.L30.T10TEM.2026001T183821.v2.0")

	_, err := DetectDuplicates(records, dswxProduct(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema mismatch")
}

func TestDetectDuplicatesInvariant(t *testing.T) {
	records := urs(
		"OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L8_30_v1.0",
		"OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260116T003045Z_L8_30_v1.0",
		"OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260117T003045Z_L8_30_v1.0",
		"OPERA_L3_DSWx-HLS_T11SKA_20260115T183045Z_20260115T230000Z_S2A_30_v1.0",
		"OPERA_L3_DSWx-HLS_T11SKA_20260115T183045Z_20260116T230000Z_S2A_30_v1.0",
	)

	report, err := DetectDuplicates(records, dswxProduct(t), nil)
	require.NoError(t, err)

	assert.Equal(t, report.Total, report.Unique+len(report.DuplicateList))
}

func TestDetectDuplicatesIdempotent(t *testing.T) {
	records := urs(
		"OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L8_30_v1.0",
		"OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260116T003045Z_L8_30_v1.0",
		"OPERA_L3_DSWx-HLS_T11SKA_20260115T183045Z_20260115T230000Z_S2A_30_v1.0",
	)

	first, err := DetectDuplicates(records, dswxProduct(t), nil)
	require.NoError(t, err)
	second, err := DetectDuplicates(records, dswxProduct(t), nil)
	require.NoError(t, err)

	assert.Equal(t, first.DuplicateList, second.DuplicateList)
	assert.Equal(t, first.ByDate, second.ByDate)
}
