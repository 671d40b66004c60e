package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Logger struct {
	Level string `yaml:"level"`
}

type Global struct {
	Logger Logger `yaml:"logger"`
}

// CMR holds the catalog endpoints and query defaults. The UAT endpoint is
// optional; venues without one reject queries at lookup time.
type CMR struct {
	URL            string `yaml:"url"`
	URLUAT         string `yaml:"url_uat"`
	PageSize       int    `yaml:"page_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c CMR) EndpointFor(venue string) (string, error) {
	switch venue {
	case "PROD":
		return c.URL, nil
	case "UAT":
		if c.URLUAT == "" {
			return "", fmt.Errorf("no UAT endpoint configured")
		}
		return c.URLUAT, nil
	}
	return "", fmt.Errorf("unknown venue: %q", venue)
}

// Accountability configures input reconciliation for a product: how output
// metadata references are normalized back to input identifiers, which input
// collections to query, and the sensor cutoff exclusion.
type Accountability struct {
	InputPattern       string              `yaml:"input_pattern"`
	InputSuffixPattern string              `yaml:"input_suffix_pattern"`
	InputCCIDs         map[string][]string `yaml:"input_ccids"`
	ExcludePlatform    string              `yaml:"exclude_platform"`
	ExcludeBefore      string              `yaml:"exclude_before"`
}

// Product is one entry of the product schema table. Patterns use named
// capture groups; timestamp formats are Go reference layouts, always UTC.
type Product struct {
	CCID              map[string]string `yaml:"ccid"`
	Pattern           string            `yaml:"pattern"`
	UniqueFields      []string          `yaml:"unique_fields"`
	AggregationField  string            `yaml:"aggregation_field"`
	AggregationFormat string            `yaml:"aggregation_format"`
	CreationField     string            `yaml:"creation_field"`
	Accountability    *Accountability   `yaml:"accountability"`
}

type S3 struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Prefix         string `yaml:"prefix"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

type Reports struct {
	S3 *S3 `yaml:"s3"`
}

// Presence configures the cross-catalog existence checks: the rolling-storage
// bucket products live under and the GRQ search index they are registered in.
type Presence struct {
	S3        *S3      `yaml:"s3"`
	Addresses []string `yaml:"addresses"`
	Index     string   `yaml:"index"`
	IDField   string   `yaml:"id_field"`
}

type Audit struct {
	Global   Global             `yaml:"global"`
	CMR      CMR                `yaml:"cmr"`
	Products map[string]Product `yaml:"products"`
	Reports  Reports            `yaml:"reports"`
	Presence *Presence          `yaml:"presence"`
}

func NewAuditFromFile(fpath string) (*Audit, error) {
	bs, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}

	var audit Audit
	if err := yaml.Unmarshal(bs, &audit); err != nil {
		return nil, err
	}

	if audit.CMR.PageSize == 0 {
		audit.CMR.PageSize = 2000
	}

	return &audit, nil
}
