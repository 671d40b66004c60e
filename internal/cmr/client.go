package cmr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// searchAfterHeader carries the opaque continuation token. The server sets it
// on each response page; echoing it on the next request resumes the scan.
const searchAfterHeader = "CMR-Search-After"

const (
	defaultPageSize      = 2000
	defaultRetryInterval = 2 * time.Second
	defaultRetryMax      = 10 * time.Second
	defaultMaxElapsed    = 300 * time.Second
)

// timeFormat is the query-parameter instant format: RFC 3339 at second
// precision with a Z suffix.
const timeFormat = "2006-01-02T15:04:05Z"

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		c.pageSize = n
	}
}

// WithProgress directs the human-readable running count to w. It should be a
// diagnostic stream (stderr), never stdout.
func WithProgress(w io.Writer) Option {
	return func(c *Client) {
		c.progress = w
	}
}

// WithVenue labels progress output; it does not affect the endpoint.
func WithVenue(venue string) Option {
	return func(c *Client) {
		c.venue = venue
	}
}

// WithRevisionDate ranges the query over revision date instead of the
// granules' temporal extent.
func WithRevisionDate(enabled bool) Option {
	return func(c *Client) {
		c.useRevisionDate = enabled
	}
}

func WithRetryInterval(initial time.Duration) Option {
	return func(c *Client) {
		c.retryInterval = initial
	}
}

func WithMaxElapsed(d time.Duration) Option {
	return func(c *Client) {
		c.maxElapsed = d
	}
}

// Client queries a CMR granule search endpoint with pagination and retry.
type Client struct {
	endpoint        string
	venue           string
	pageSize        int
	useRevisionDate bool
	retryInterval   time.Duration
	maxElapsed      time.Duration

	httpClient *http.Client
	progress   io.Writer
	logger     *zap.Logger
}

func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:      endpoint,
		venue:         "PROD",
		pageSize:      defaultPageSize,
		retryInterval: defaultRetryInterval,
		maxElapsed:    defaultMaxElapsed,
		httpClient:    http.DefaultClient,
		progress:      io.Discard,
		logger:        zap.NewNop(),
	}

	for _, o := range opts {
		o(c)
	}
	return c
}

// Query fetches every granule of a collection, optionally bounded to a UTC
// time range. Pages are followed strictly in continuation-token order until
// the server stops returning a token.
func (c *Client) Query(ctx context.Context, collectionID string, start, end *time.Time) ([]Granule, error) {
	params := url.Values{}
	params.Set("collection_concept_id", collectionID)
	params.Set("page_size", fmt.Sprintf("%d", c.pageSize))

	if start != nil || end != nil {
		var startStr, endStr string
		if start != nil {
			startStr = start.UTC().Format(timeFormat)
		}
		if end != nil {
			endStr = end.UTC().Format(timeFormat)
		}
		rangeParam := "temporal[]"
		if c.useRevisionDate {
			rangeParam = "revision_date[]"
		}
		params.Set(rangeParam, startStr+","+endStr)
	}

	started := time.Now()
	var granules []Granule
	var searchAfter string

	for {
		pageGranules, next, err := c.fetchPage(ctx, params, searchAfter)
		if err != nil {
			return nil, err
		}
		granules = append(granules, pageGranules...)

		elapsed := int(time.Since(started).Seconds())
		fmt.Fprintf(c.progress, "\rQuerying CMR (%s): %d granules retrieved | %02d:%02d",
			c.venue, len(granules), elapsed/60, elapsed%60)

		if next == "" {
			break
		}
		searchAfter = next
	}

	fmt.Fprintln(c.progress)

	c.logger.Info("retrieved granules from CMR",
		zap.String("collection", collectionID),
		zap.Int("count", len(granules)),
	)
	return granules, nil
}

// fetchPage requests a single page, retrying the same request on transient
// failures. Exhausting the retry budget surfaces the last underlying cause.
func (c *Client) fetchPage(ctx context.Context, params url.Values, searchAfter string) ([]Granule, string, error) {
	var granules []Granule
	var next string

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.URL.RawQuery = params.Encode()
		if searchAfter != "" {
			req.Header.Set(searchAfterHeader, searchAfter)
		}

		c.logger.Debug("querying CMR",
			zap.String("url", req.URL.String()),
			zap.Bool("continuation", searchAfter != ""),
		)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("cmr returned %s", resp.Status)
			if retryable(resp.StatusCode) {
				return err
			}
			return backoff.Permanent(err)
		}

		var p page
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			// A malformed body is a permanent failure, not a transient one.
			return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
		}

		granules = p.granules()
		next = resp.Header.Get(searchAfterHeader)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxInterval = defaultRetryMax
	bo.MaxElapsedTime = c.maxElapsed

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("backing off",
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, "", fmt.Errorf("querying %s: %w", c.endpoint, err)
	}

	return granules, next, nil
}

// retryable reports whether a response status is transient. Client errors
// other than rate limiting are not.
func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}
