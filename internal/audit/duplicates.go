package audit

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/opera-sds/granule-audit/internal/cmr"
	"github.com/opera-sds/granule-audit/internal/schema"
)

// DateCounts buckets per-day duplicate counts, keyed by aggregation date.
type DateCounts struct {
	Total      int `json:"total"`
	Unique     int `json:"unique"`
	Duplicates int `json:"duplicates"`
}

// DuplicateReport is the machine-readable duplicate detection result.
// Invariant: for matched records, unique + len(duplicate_list) equals the
// matched count.
type DuplicateReport struct {
	Total         int                    `json:"total"`
	Unique        int                    `json:"unique"`
	Duplicates    int                    `json:"duplicates"`
	DuplicateList []string               `json:"duplicate_list"`
	ByDate        map[string]*DateCounts `json:"by_date"`
}

// Rate returns the duplicate percentage over all input records.
func (r *DuplicateReport) Rate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Duplicates) / float64(r.Total) * 100
}

type survivor struct {
	ur       string
	creation string
}

// DetectDuplicates groups records by the product's uniqueness key and keeps
// one survivor per group. With a creation field configured the later creation
// timestamp wins (first-seen wins on an exact tie); without one, first-seen
// always wins. Records that fail to parse are counted toward the total but
// excluded from grouping. A non-empty input where nothing parses at all is a
// schema mismatch and fails the run.
func DetectDuplicates(records []cmr.Granule, product *schema.Product, logger *zap.Logger) (*DuplicateReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("processing granules",
		zap.String("product", product.Name),
		zap.Int("count", len(records)),
	)

	seen := make(map[string]survivor)
	duplicates := []string{}
	byDate := make(map[string]*DateCounts)
	matched := 0

	for _, record := range records {
		fields, err := product.Parse(record.UR)
		if err != nil {
			logger.Warn("skipping unparseable granule", zap.Error(err))
			continue
		}

		date, err := product.AggregationDate(fields)
		if err != nil {
			logger.Warn("skipping granule with unparseable aggregation date", zap.Error(err))
			continue
		}

		matched++

		counts, ok := byDate[date]
		if !ok {
			counts = &DateCounts{}
			byDate[date] = counts
		}
		counts.Total++

		key := product.Key(fields)

		current, ok := seen[key]
		if !ok {
			var creation string
			if product.CreationField != "" {
				creation = fields[product.CreationField]
			}
			seen[key] = survivor{ur: record.UR, creation: creation}
			counts.Unique++
			continue
		}

		counts.Duplicates++

		if product.CreationField == "" {
			duplicates = append(duplicates, record.UR)
			continue
		}

		// Fixed-width zero-padded timestamps make lexicographic comparison
		// equivalent to instant comparison.
		creation := fields[product.CreationField]
		if creation > current.creation {
			duplicates = append(duplicates, current.ur)
			seen[key] = survivor{ur: record.UR, creation: creation}
		} else {
			duplicates = append(duplicates, record.UR)
		}
	}

	if len(records) > 0 && matched == 0 {
		return nil, fmt.Errorf("none of %d identifiers matched the %s pattern: schema mismatch", len(records), product.Name)
	}

	sort.Strings(duplicates)

	report := &DuplicateReport{
		Total:         len(records),
		Unique:        len(seen),
		Duplicates:    len(duplicates),
		DuplicateList: duplicates,
		ByDate:        byDate,
	}

	logger.Info("duplicate detection complete",
		zap.String("product", product.Name),
		zap.Int("total", report.Total),
		zap.Int("unique", report.Unique),
		zap.Int("duplicates", report.Duplicates),
	)

	return report, nil
}
