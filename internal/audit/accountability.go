package audit

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/opera-sds/granule-audit/internal/cmr"
	"github.com/opera-sds/granule-audit/internal/schema"
)

// AccountabilityCounts buckets per-day reconciliation counts, keyed by input
// acquisition date.
type AccountabilityCounts struct {
	Expected int `json:"expected"`
	Actual   int `json:"actual"`
	Missing  int `json:"missing"`
}

// AccountabilityReport is the machine-readable reconciliation result.
// Invariant: expected == actual + missing_count, by construction.
type AccountabilityReport struct {
	Expected     int                              `json:"expected"`
	Actual       int                              `json:"actual"`
	Missing      []string                         `json:"missing"`
	MissingCount int                              `json:"missing_count"`
	ByDate       map[string]*AccountabilityCounts `json:"by_date"`
}

// Rate returns the percentage of expected inputs with at least one output.
func (r *AccountabilityReport) Rate() float64 {
	if r.Expected == 0 {
		return 0
	}
	return float64(r.Actual) / float64(r.Expected) * 100
}

type ReconcilerOption func(*Reconciler)

func WithLogger(l *zap.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// Reconciler verifies that every expected input granule produced at least one
// output granule referencing it. All configuration is supplied at
// construction; a Reconciler holds no mutable state across runs.
type Reconciler struct {
	acct   *schema.Accountability
	logger *zap.Logger
}

func NewReconciler(acct *schema.Accountability, opts ...ReconcilerOption) (*Reconciler, error) {
	if acct == nil {
		return nil, errors.New("accountability configuration is required")
	}

	r := &Reconciler{
		acct:   acct,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Reconcile maps each output's normalized input references back to canonical
// input identifiers, then reports the non-excluded inputs without any output.
func (r *Reconciler) Reconcile(outputs []cmr.Granule, inputSets ...[]cmr.Granule) (*AccountabilityReport, error) {
	r.logger.Info("processing output granules", zap.Int("count", len(outputs)))

	inputToOutputs := make(map[string][]string)

	for _, out := range outputs {
		refs := 0
		for _, ref := range out.InputGranules {
			id, ok := r.acct.MatchInput(ref)
			if !ok {
				continue
			}
			inputToOutputs[id] = append(inputToOutputs[id], out.UR)
			refs++
		}
		if refs == 0 {
			// A data-quality anomaly in the catalog itself: the output claims
			// no recognizable inputs.
			r.logger.Warn("output granule has no parseable input references",
				zap.String("granule", out.UR),
				zap.Int("raw_references", len(out.InputGranules)),
			)
		}
	}

	r.logger.Info("mapped outputs to inputs", zap.Int("inputs", len(inputToOutputs)))

	expected := []string{}
	expectedSeen := make(map[string]struct{})
	acquiredDate := make(map[string]string)

	for _, set := range inputSets {
		for _, in := range set {
			acquired, err := in.Acquired()
			if err != nil {
				return nil, err
			}

			if r.acct.Excluded(in.Platforms, acquired) {
				r.logger.Debug("excluding input before sensor cutoff",
					zap.String("granule", in.UR),
				)
				continue
			}

			if _, ok := expectedSeen[in.UR]; ok {
				continue
			}
			expectedSeen[in.UR] = struct{}{}
			expected = append(expected, in.UR)
			acquiredDate[in.UR] = acquired.Format("2006-01-02")

			if _, ok := inputToOutputs[in.UR]; !ok {
				inputToOutputs[in.UR] = nil
			}
		}
	}

	missing := []string{}
	byDate := make(map[string]*AccountabilityCounts)

	for _, id := range expected {
		date := acquiredDate[id]
		counts, ok := byDate[date]
		if !ok {
			counts = &AccountabilityCounts{}
			byDate[date] = counts
		}
		counts.Expected++

		if len(inputToOutputs[id]) == 0 {
			missing = append(missing, id)
			counts.Missing++
		} else {
			counts.Actual++
		}
	}

	sort.Strings(missing)

	report := &AccountabilityReport{
		Expected:     len(expected),
		Actual:       len(expected) - len(missing),
		Missing:      missing,
		MissingCount: len(missing),
		ByDate:       byDate,
	}

	r.logger.Info("accountability analysis complete",
		zap.Int("expected", report.Expected),
		zap.Int("actual", report.Actual),
		zap.Int("missing", report.MissingCount),
	)

	return report, nil
}
