package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opera-sds/granule-audit/internal"
	"github.com/opera-sds/granule-audit/internal/audit"
	"github.com/opera-sds/granule-audit/internal/presence"
)

// Metadata records the provenance of a report run.
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	RunID       string    `json:"run_id"`
	ProductType string    `json:"product_type"`
	Venue       string    `json:"venue"`
	ReportType  string    `json:"report_type"`
}

type envelope struct {
	Metadata Metadata `json:"report_metadata"`
	Results  any      `json:"results"`
}

type Option func(*Writer)

func WithLogger(l *zap.Logger) Option {
	return func(w *Writer) {
		w.logger = l
	}
}

// WithNow overrides the clock used for filenames and metadata.
func WithNow(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// Writer emits report artifacts through a repository: a full JSON report, a
// newline-delimited identifier list, and a human-readable summary.
type Writer struct {
	repository internal.Repository
	logger     *zap.Logger
	now        func() time.Time
}

func New(repository internal.Repository, opts ...Option) *Writer {
	w := &Writer{
		repository: repository,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// SaveDuplicates writes the duplicate detection artifacts and returns the
// keys written, by artifact kind.
func (w *Writer) SaveDuplicates(ctx context.Context, results *audit.DuplicateReport, product, venue string) (map[string]string, error) {
	now := w.now().UTC()
	base := path.Join("reports", "duplicates", product)
	date := now.Format("2006-01-02")

	files := make(map[string]string)

	jsonKey := path.Join(base, date+".json")
	if err := w.writeJSON(ctx, jsonKey, results, product, venue, "duplicates", now); err != nil {
		return nil, err
	}
	files["json"] = jsonKey

	textKey := path.Join(base, date+".txt")
	if err := w.writeList(ctx, textKey, results.DuplicateList); err != nil {
		return nil, err
	}
	files["text"] = textKey

	var summary bytes.Buffer
	w.writeHeader(&summary, "Duplicates", product, venue, now)
	fmt.Fprintf(&summary, "Total Granules:     %d\n", results.Total)
	fmt.Fprintf(&summary, "Unique Granules:    %d\n", results.Unique)
	fmt.Fprintf(&summary, "Duplicate Count:    %d\n", results.Duplicates)
	if results.Total > 0 {
		fmt.Fprintf(&summary, "Duplicate Rate:     %.2f%%\n", results.Rate())
	}

	summaryKey := path.Join(base, date+"_summary.txt")
	if err := w.repository.Write(ctx, summaryKey, &summary); err != nil {
		return nil, err
	}
	files["summary"] = summaryKey

	w.logger.Info("saved duplicate reports", zap.Any("files", files))
	return files, nil
}

// SaveAccountability writes the reconciliation artifacts and returns the keys
// written, by artifact kind.
func (w *Writer) SaveAccountability(ctx context.Context, results *audit.AccountabilityReport, product, venue string) (map[string]string, error) {
	now := w.now().UTC()
	base := path.Join("reports", "accountability", product)
	date := now.Format("2006-01-02")

	files := make(map[string]string)

	jsonKey := path.Join(base, date+".json")
	if err := w.writeJSON(ctx, jsonKey, results, product, venue, "accountability", now); err != nil {
		return nil, err
	}
	files["json"] = jsonKey

	textKey := path.Join(base, date+"_missing.txt")
	if err := w.writeList(ctx, textKey, results.Missing); err != nil {
		return nil, err
	}
	files["text"] = textKey

	var summary bytes.Buffer
	w.writeHeader(&summary, "Accountability", product, venue, now)
	fmt.Fprintf(&summary, "Expected Granules:  %d\n", results.Expected)
	fmt.Fprintf(&summary, "Actual Granules:    %d\n", results.Actual)
	fmt.Fprintf(&summary, "Missing Granules:   %d\n", results.MissingCount)
	if results.Expected > 0 {
		fmt.Fprintf(&summary, "Accountability:     %.2f%%\n", results.Rate())
	}

	summaryKey := path.Join(base, date+"_summary.txt")
	if err := w.repository.Write(ctx, summaryKey, &summary); err != nil {
		return nil, err
	}
	files["summary"] = summaryKey

	w.logger.Info("saved accountability reports", zap.Any("files", files))
	return files, nil
}

// SavePresence writes the cross-catalog presence artifacts and returns the
// keys written, by artifact kind.
func (w *Writer) SavePresence(ctx context.Context, results *presence.Report, product, venue string) (map[string]string, error) {
	now := w.now().UTC()
	base := path.Join("reports", "presence", product)
	date := now.Format("2006-01-02")

	files := make(map[string]string)

	jsonKey := path.Join(base, date+".json")
	if err := w.writeJSON(ctx, jsonKey, results, product, venue, "presence", now); err != nil {
		return nil, err
	}
	files["json"] = jsonKey

	textKey := path.Join(base, date+"_missing.txt")
	seen := make(map[string]struct{})
	var missing []string
	for _, id := range append(append([]string{}, results.MissingS3...), results.MissingIndex...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	if err := w.writeList(ctx, textKey, missing); err != nil {
		return nil, err
	}
	files["text"] = textKey

	var summary bytes.Buffer
	w.writeHeader(&summary, "Presence", product, venue, now)
	fmt.Fprintf(&summary, "Total Granules:     %d\n", results.Total)
	fmt.Fprintf(&summary, "Missing from S3:    %d\n", len(results.MissingS3))
	fmt.Fprintf(&summary, "Missing from Index: %d\n", len(results.MissingIndex))
	fmt.Fprintf(&summary, "Missing from Both:  %d\n", len(results.MissingBoth))

	summaryKey := path.Join(base, date+"_summary.txt")
	if err := w.repository.Write(ctx, summaryKey, &summary); err != nil {
		return nil, err
	}
	files["summary"] = summaryKey

	w.logger.Info("saved presence reports", zap.Any("files", files))
	return files, nil
}

func (w *Writer) writeJSON(ctx context.Context, key string, results any, product, venue, reportType string, now time.Time) error {
	env := envelope{
		Metadata: Metadata{
			GeneratedAt: now,
			RunID:       uuid.Must(uuid.NewUUID()).String(),
			ProductType: product,
			Venue:       venue,
			ReportType:  reportType,
		},
		Results: results,
	}

	bs, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	return w.repository.Write(ctx, key, bytes.NewReader(bs))
}

func (w *Writer) writeList(ctx context.Context, key string, ids []string) error {
	var buf bytes.Buffer
	for _, id := range ids {
		fmt.Fprintln(&buf, id)
	}
	return w.repository.Write(ctx, key, &buf)
}

func (w *Writer) writeHeader(buf *bytes.Buffer, title, product, venue string, now time.Time) {
	fmt.Fprintf(buf, "OPERA %s Report\n", title)
	fmt.Fprintln(buf, "==================================================")
	fmt.Fprintf(buf, "Product:        %s\n", product)
	fmt.Fprintf(buf, "Venue:          %s\n", venue)
	fmt.Fprintf(buf, "Generated:      %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(buf)
	fmt.Fprintln(buf, "SUMMARY")
	fmt.Fprintln(buf, "--------------------------------------------------")
}
