package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Client wraps the search index (GRQ) for document existence checks and raw
// query execution.
type Client struct {
	es     *elasticsearch.Client
	logger *zap.Logger
}

func New(addresses []string, opts ...Option) (*Client, error) {
	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	c := &Client{
		es:     esClient,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Exists reports whether any document in the index carries the given field
// value.
func (c *Client) Exists(ctx context.Context, index, field, value string) (bool, error) {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{field: value},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return false, err
	}

	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
		c.es.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return false, fmt.Errorf("count query against %s failed: %s", index, res.Status())
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Count > 0, nil
}

// Execute runs a raw JSON query against the index. The search action returns
// the total hit count; the delete action returns the number of documents
// removed.
func (c *Client) Execute(ctx context.Context, index string, query io.Reader, action string) (int, error) {
	c.logger.Info("executing query",
		zap.String("index", index),
		zap.String("action", action),
	)

	switch action {
	case "search":
		res, err := c.es.Search(
			c.es.Search.WithContext(ctx),
			c.es.Search.WithIndex(index),
			c.es.Search.WithBody(query),
			c.es.Search.WithTrackTotalHits(true),
		)
		if err != nil {
			return 0, err
		}
		var out struct {
			Hits struct {
				Total struct {
					Value int `json:"value"`
				} `json:"total"`
			} `json:"hits"`
		}
		if err := decode(res, &out); err != nil {
			return 0, err
		}
		return out.Hits.Total.Value, nil

	case "delete":
		res, err := c.es.DeleteByQuery(
			[]string{index},
			query,
			c.es.DeleteByQuery.WithContext(ctx),
		)
		if err != nil {
			return 0, err
		}
		var out struct {
			Deleted int `json:"deleted"`
		}
		if err := decode(res, &out); err != nil {
			return 0, err
		}
		return out.Deleted, nil
	}

	return 0, fmt.Errorf("invalid action %q: choose from 'search' or 'delete'", action)
}

func decode(res *esapi.Response, out any) error {
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("query failed: %s", res.Status())
	}
	return json.NewDecoder(res.Body).Decode(out)
}
