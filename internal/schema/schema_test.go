package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opera-sds/granule-audit/internal/config"
)

func loadRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg, err := config.NewAuditFromFile("../../dev/examples/audit.yml")
	require.NoError(t, err)
	registry, err := NewRegistry(cfg.Products)
	require.NoError(t, err)
	return registry
}

func TestResolve(t *testing.T) {
	registry := loadRegistry(t)

	t.Run("registered product", func(t *testing.T) {
		p, err := registry.Resolve("DSWX_HLS")
		require.NoError(t, err)
		assert.Equal(t, "DSWX_HLS", p.Name)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := registry.Resolve("DSWX_NI")
		assert.ErrorIs(t, err, ErrUnknownProduct)
	})
}

func TestParseDSWXHLS(t *testing.T) {
	registry := loadRegistry(t)
	p, err := registry.Resolve("DSWX_HLS")
	require.NoError(t, err)

	fields, err := p.Parse("OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L8_30_v1.0")
	require.NoError(t, err)

	assert.Equal(t, "T10TEM", fields["tile_id"])
	assert.Equal(t, "20260115T180931Z", fields["acquisition_ts"])
	assert.Equal(t, "20260115T235959Z", fields["creation_ts"])
	assert.Equal(t, "L8", fields["sensor"])
}

func TestParseRTCS1(t *testing.T) {
	registry := loadRegistry(t)
	p, err := registry.Resolve("RTC_S1")
	require.NoError(t, err)

	fields, err := p.Parse("OPERA_L2_RTC-S1_T123-456789-IW1_20260115T180931Z_20260115T235959Z_S1A_30_v1.0")
	require.NoError(t, err)

	assert.Equal(t, "T123-456789-IW1", fields["burst_id"])
	assert.Equal(t, "20260115T180931Z", fields["acquisition_ts"])
	assert.Equal(t, "S1A", fields["sensor"])
}

func TestParseRequiresFullMatch(t *testing.T) {
	registry := loadRegistry(t)
	p, err := registry.Resolve("DSWX_HLS")
	require.NoError(t, err)

	_, err = p.Parse("OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L8_30_v1.0_EXTRA")
	assert.Error(t, err)

	_, err = p.Parse("HLS.S30.T10TEM.2026001T183821.v2.0")
	assert.Error(t, err)
}

func TestKeyOrdering(t *testing.T) {
	registry := loadRegistry(t)
	p, err := registry.Resolve("DSWX_HLS")
	require.NoError(t, err)

	a, err := p.Parse("OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L8_30_v1.0")
	require.NoError(t, err)
	b, err := p.Parse("OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260116T003045Z_L8_30_v1.0")
	require.NoError(t, err)
	c, err := p.Parse("OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L9_30_v1.0")
	require.NoError(t, err)

	// Creation timestamp is outside the unique fields; sensor is inside.
	assert.Equal(t, p.Key(a), p.Key(b))
	assert.NotEqual(t, p.Key(a), p.Key(c))
}

func TestAggregationDate(t *testing.T) {
	registry := loadRegistry(t)

	t.Run("compact UTC timestamp", func(t *testing.T) {
		p, err := registry.Resolve("DSWX_HLS")
		require.NoError(t, err)

		fields, err := p.Parse("OPERA_L3_DSWx-HLS_T10TEM_20260115T180931Z_20260115T235959Z_L8_30_v1.0")
		require.NoError(t, err)

		date, err := p.AggregationDate(fields)
		require.NoError(t, err)
		assert.Equal(t, "2026-01-15", date)
	})

	t.Run("date-only validity timestamp", func(t *testing.T) {
		p, err := registry.Resolve("RTC_S1_STATIC")
		require.NoError(t, err)

		fields, err := p.Parse("OPERA_L2_RTC-S1-STATIC_T123-456789-IW1_20240105_S1A_30_v1.0")
		require.NoError(t, err)

		date, err := p.AggregationDate(fields)
		require.NoError(t, err)
		assert.Equal(t, "2024-01-05", date)
	})
}

func TestJulianDayLayout(t *testing.T) {
	// HLS acquisition timestamps use a compact year + day-of-year form.
	ts, err := time.Parse("2006002T150405", "2026001T183821")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", ts.UTC().Format("2006-01-02"))
}

func TestMatchInput(t *testing.T) {
	registry := loadRegistry(t)
	p, err := registry.Resolve("DSWX_HLS")
	require.NoError(t, err)
	acct := p.Accountability
	require.NotNil(t, acct)

	t.Run("band suffix stripped", func(t *testing.T) {
		for _, ref := range []string{
			"HLS.S30.T10TEM.2026001T183821.v2.0.B02.tif",
			"HLS.S30.T10TEM.2026001T183821.v2.0.B03.tif",
			"HLS.S30.T10TEM.2026001T183821.v2.0.Fmask.tif",
		} {
			id, ok := acct.MatchInput(ref)
			assert.True(t, ok, ref)
			assert.Equal(t, "HLS.S30.T10TEM.2026001T183821.v2.0", id)
		}
	})

	t.Run("path components stripped", func(t *testing.T) {
		id, ok := acct.MatchInput("/data/inputs/HLS.L30.T10TEM.2026001T183821.v2.0.B05.tif")
		assert.True(t, ok)
		assert.Equal(t, "HLS.L30.T10TEM.2026001T183821.v2.0", id)
	})

	t.Run("ancillary references ignored", func(t *testing.T) {
		for _, ref := range []string{"worldcover_0.tif", "GSHHS_f_L1.shp", "dem.vrt"} {
			_, ok := acct.MatchInput(ref)
			assert.False(t, ok, ref)
		}
	})
}

func TestExcluded(t *testing.T) {
	registry := loadRegistry(t)
	p, err := registry.Resolve("DSWX_HLS")
	require.NoError(t, err)
	acct := p.Accountability
	require.NotNil(t, acct)

	cutoff := acct.ExcludeBefore
	require.False(t, cutoff.IsZero())

	t.Run("excluded platform before cutoff", func(t *testing.T) {
		assert.True(t, acct.Excluded([]string{"LANDSAT-9"}, cutoff.Add(-time.Hour)))
	})

	t.Run("excluded platform at cutoff", func(t *testing.T) {
		assert.False(t, acct.Excluded([]string{"LANDSAT-9"}, cutoff))
	})

	t.Run("other platforms never excluded", func(t *testing.T) {
		assert.False(t, acct.Excluded([]string{"LANDSAT-8"}, cutoff.Add(-time.Hour)))
		assert.False(t, acct.Excluded([]string{"SENTINEL-2A"}, cutoff.Add(-time.Hour)))
	})
}

func TestNewRegistryValidation(t *testing.T) {
	base := config.Product{
		Pattern:           `(?P<tile_id>T\d{5})_(?P<acquisition_ts>\d{8})`,
		UniqueFields:      []string{"tile_id"},
		AggregationField:  "acquisition_ts",
		AggregationFormat: "20060102",
	}

	t.Run("valid", func(t *testing.T) {
		_, err := NewRegistry(map[string]config.Product{"P": base})
		assert.NoError(t, err)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		pc := base
		pc.Pattern = "("
		_, err := NewRegistry(map[string]config.Product{"P": pc})
		assert.Error(t, err)
	})

	t.Run("empty unique fields", func(t *testing.T) {
		pc := base
		pc.UniqueFields = nil
		_, err := NewRegistry(map[string]config.Product{"P": pc})
		assert.Error(t, err)
	})

	t.Run("unique field not a group", func(t *testing.T) {
		pc := base
		pc.UniqueFields = []string{"sensor"}
		_, err := NewRegistry(map[string]config.Product{"P": pc})
		assert.Error(t, err)
	})

	t.Run("aggregation field not a group", func(t *testing.T) {
		pc := base
		pc.AggregationField = "created"
		_, err := NewRegistry(map[string]config.Product{"P": pc})
		assert.Error(t, err)
	})

	t.Run("creation field not a group", func(t *testing.T) {
		pc := base
		pc.CreationField = "created"
		_, err := NewRegistry(map[string]config.Product{"P": pc})
		assert.Error(t, err)
	})

	t.Run("cutoff requires timestamp", func(t *testing.T) {
		pc := base
		pc.Accountability = &config.Accountability{
			InputPattern:    `HLS[.].+`,
			ExcludePlatform: "LANDSAT-9",
		}
		_, err := NewRegistry(map[string]config.Product{"P": pc})
		assert.Error(t, err)
	})
}
