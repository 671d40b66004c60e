package presence

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Storage answers object existence, either for an exact key or for any
// object under a product key prefix.
type Storage interface {
	Exists(ctx context.Context, key string) (bool, error)
	ExistsPrefix(ctx context.Context, keyPrefix string) (bool, error)
}

// Index answers document existence by field value.
type Index interface {
	Exists(ctx context.Context, index, field, value string) (bool, error)
}

// Report lists granule identifiers that are registered in the metadata
// catalog but absent from object storage, the search index, or both.
type Report struct {
	Total        int      `json:"total"`
	MissingS3    []string `json:"missing_s3"`
	MissingIndex []string `json:"missing_index"`
	MissingBoth  []string `json:"missing_both"`
}

type Option func(*Checker)

func WithStorage(s Storage) Option {
	return func(c *Checker) {
		c.storage = s
	}
}

func WithIndex(index Index, name, idField string) Option {
	return func(c *Checker) {
		c.index = index
		c.indexName = name
		c.idField = idField
	}
}

func WithKeyFunc(fn func(string) string) Option {
	return func(c *Checker) {
		c.keyFn = fn
	}
}

// WithExactKeys checks identifiers as exact object keys (HeadObject) rather
// than key prefixes, for inputs that already name a single object. The key
// function defaults to identity; WithKeyFunc still overrides it.
func WithExactKeys() Option {
	return func(c *Checker) {
		c.exactKeys = true
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Checker) {
		c.logger = l
	}
}

// Checker cross-checks granule presence between catalogs. At least one of
// storage and index must be configured.
type Checker struct {
	storage   Storage
	index     Index
	indexName string
	idField   string
	exactKeys bool
	keyFn     func(string) string
	logger    *zap.Logger
}

func New(opts ...Option) (*Checker, error) {
	c := &Checker{
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}

	if c.storage == nil && c.index == nil {
		return nil, errors.New("at least one of storage and index must be configured")
	}

	if c.keyFn == nil {
		c.keyFn = ProductKey
		if c.exactKeys {
			c.keyFn = func(id string) string { return id }
		}
	}
	return c, nil
}

// Check verifies each identifier against the configured backends.
func (c *Checker) Check(ctx context.Context, ids []string) (*Report, error) {
	report := &Report{
		Total:        len(ids),
		MissingS3:    []string{},
		MissingIndex: []string{},
		MissingBoth:  []string{},
	}

	for _, id := range ids {
		inStorage := true
		if c.storage != nil {
			var found bool
			var err error
			if c.exactKeys {
				found, err = c.storage.Exists(ctx, c.keyFn(id))
			} else {
				found, err = c.storage.ExistsPrefix(ctx, c.keyFn(id))
			}
			if err != nil {
				return nil, err
			}
			inStorage = found
			if !found {
				report.MissingS3 = append(report.MissingS3, id)
				c.logger.Debug("granule missing from storage", zap.String("granule", id))
			}
		}

		inIndex := true
		if c.index != nil {
			found, err := c.index.Exists(ctx, c.indexName, c.idField, id)
			if err != nil {
				return nil, err
			}
			inIndex = found
			if !found {
				report.MissingIndex = append(report.MissingIndex, id)
				c.logger.Debug("granule missing from index", zap.String("granule", id))
			}
		}

		if !inStorage && !inIndex {
			report.MissingBoth = append(report.MissingBoth, id)
		}
	}

	c.logger.Info("presence check complete",
		zap.Int("total", report.Total),
		zap.Int("missing_s3", len(report.MissingS3)),
		zap.Int("missing_index", len(report.MissingIndex)),
	)
	return report, nil
}

// ProductKey derives the storage key prefix for a granule from its
// identifier: products are laid out as <family>/<granule>/..., where the
// family directory is the product token with dashes flattened
// (OPERA_L3_DSWx-HLS_... lives under DSWx_HLS/).
func ProductKey(granule string) string {
	parts := strings.Split(granule, "_")
	if len(parts) > 2 && strings.Contains(parts[2], "-") {
		family := strings.ReplaceAll(parts[2], "-", "_")
		return family + "/" + granule
	}
	return granule
}
