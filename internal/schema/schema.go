package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/opera-sds/granule-audit/internal/config"
)

// ErrUnknownProduct is returned by Resolve for product types that are not
// registered in the configuration.
var ErrUnknownProduct = errors.New("unknown product")

// DefaultInputSuffixPattern strips the band/mask file suffix from input
// references embedded in output metadata, collapsing per-band files to one
// logical input identifier.
const DefaultInputSuffixPattern = `[.](B[A-Za-z0-9]{2}|Fmask)[.]tif$`

// Fields holds the named capture group values of a parsed identifier.
type Fields map[string]string

// Accountability is the validated reconciliation configuration for a product.
type Accountability struct {
	InputPattern       *regexp.Regexp
	InputSuffixPattern *regexp.Regexp
	InputCCIDs         map[string][]string
	ExcludePlatform    string
	ExcludeBefore      time.Time
}

// Product is a validated identifier schema for one product type.
type Product struct {
	Name              string
	CCIDs             map[string]string
	UniqueFields      []string
	AggregationField  string
	AggregationFormat string
	CreationField     string
	Accountability    *Accountability

	pattern *regexp.Regexp
	groups  map[string]struct{}
}

// Parse matches identifier against the product pattern. The pattern must
// match the identifier in full; a partial match is a parse failure.
func (p *Product) Parse(identifier string) (Fields, error) {
	m := p.pattern.FindStringSubmatch(identifier)
	if m == nil {
		return nil, fmt.Errorf("identifier %q does not match %s pattern", identifier, p.Name)
	}

	fields := make(Fields)
	for i, name := range p.pattern.SubexpNames() {
		if name != "" {
			fields[name] = m[i]
		}
	}
	return fields, nil
}

// Key derives the duplicate-group key: the ordered concatenation of the
// unique field values. Values come from identifier capture groups and never
// contain the separator.
func (p *Product) Key(fields Fields) string {
	vals := make([]string, len(p.UniqueFields))
	for i, f := range p.UniqueFields {
		vals[i] = fields[f]
	}
	return strings.Join(vals, "\x1f")
}

// AggregationDate parses the aggregation field as UTC and floors it to a
// calendar date string (2006-01-02).
func (p *Product) AggregationDate(fields Fields) (string, error) {
	value := fields[p.AggregationField]
	t, err := time.Parse(p.AggregationFormat, value)
	if err != nil {
		return "", fmt.Errorf("parsing %s value %q: %w", p.AggregationField, value, err)
	}
	return t.UTC().Format("2006-01-02"), nil
}

// CCIDFor returns the collection concept id registered for the venue.
func (p *Product) CCIDFor(venue string) (string, error) {
	ccid, ok := p.CCIDs[venue]
	if !ok || ccid == "" {
		return "", fmt.Errorf("product %s has no collection configured for venue %s", p.Name, venue)
	}
	return ccid, nil
}

// MatchInput reports the canonical input identifier for a referenced input
// file: the basename with the band suffix stripped, if it matches the input
// pattern. Non-input references (ancillary static files) report ok=false.
func (a *Accountability) MatchInput(ref string) (string, bool) {
	name := ref
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = a.InputSuffixPattern.ReplaceAllString(name, "")

	if !a.InputPattern.MatchString(name) {
		return "", false
	}
	return name, true
}

// Excluded reports whether an input acquired before the cutoff by the
// excluded platform is out of scope for reconciliation.
func (a *Accountability) Excluded(platforms []string, acquired time.Time) bool {
	if a.ExcludePlatform == "" {
		return false
	}
	if !acquired.Before(a.ExcludeBefore) {
		return false
	}
	for _, p := range platforms {
		if p == a.ExcludePlatform {
			return true
		}
	}
	return false
}

// Registry resolves product types to their validated schemas.
type Registry struct {
	products map[string]*Product
}

// NewRegistry compiles and validates every product schema in the
// configuration. Any invalid schema is a startup failure.
func NewRegistry(cfg map[string]config.Product) (*Registry, error) {
	r := &Registry{
		products: make(map[string]*Product, len(cfg)),
	}

	for name, pc := range cfg {
		p, err := newProduct(name, pc)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", name, err)
		}
		r.products[name] = p
	}

	return r, nil
}

func (r *Registry) Resolve(productType string) (*Product, error) {
	p, ok := r.products[productType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, productType)
	}
	return p, nil
}

// Names returns the registered product types, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.products))
	for name := range r.products {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newProduct(name string, pc config.Product) (*Product, error) {
	if pc.Pattern == "" {
		return nil, errors.New("missing identifier pattern")
	}

	// Anchor both ends so a well-formed identifier must match in full.
	pattern, err := regexp.Compile(`\A(?:` + pc.Pattern + `)\z`)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern: %w", err)
	}

	groups := make(map[string]struct{})
	for _, g := range pattern.SubexpNames() {
		if g != "" {
			groups[g] = struct{}{}
		}
	}

	if len(pc.UniqueFields) == 0 {
		return nil, errors.New("unique_fields must not be empty")
	}
	for _, f := range pc.UniqueFields {
		if _, ok := groups[f]; !ok {
			return nil, fmt.Errorf("unique field %q is not a named group in the pattern", f)
		}
	}

	if _, ok := groups[pc.AggregationField]; !ok {
		return nil, fmt.Errorf("aggregation field %q is not a named group in the pattern", pc.AggregationField)
	}
	if pc.AggregationFormat == "" {
		return nil, errors.New("missing aggregation_format")
	}

	if pc.CreationField != "" {
		if _, ok := groups[pc.CreationField]; !ok {
			return nil, fmt.Errorf("creation field %q is not a named group in the pattern", pc.CreationField)
		}
	}

	p := &Product{
		Name:              name,
		CCIDs:             pc.CCID,
		UniqueFields:      pc.UniqueFields,
		AggregationField:  pc.AggregationField,
		AggregationFormat: pc.AggregationFormat,
		CreationField:     pc.CreationField,
		pattern:           pattern,
		groups:            groups,
	}

	if pc.Accountability != nil {
		acct, err := newAccountability(pc.Accountability)
		if err != nil {
			return nil, fmt.Errorf("accountability: %w", err)
		}
		p.Accountability = acct
	}

	return p, nil
}

func newAccountability(ac *config.Accountability) (*Accountability, error) {
	if ac.InputPattern == "" {
		return nil, errors.New("missing input_pattern")
	}

	inputPattern, err := regexp.Compile(`\A(?:` + ac.InputPattern + `)\z`)
	if err != nil {
		return nil, fmt.Errorf("compiling input pattern: %w", err)
	}

	suffix := ac.InputSuffixPattern
	if suffix == "" {
		suffix = DefaultInputSuffixPattern
	}
	suffixPattern, err := regexp.Compile(suffix)
	if err != nil {
		return nil, fmt.Errorf("compiling input suffix pattern: %w", err)
	}

	a := &Accountability{
		InputPattern:       inputPattern,
		InputSuffixPattern: suffixPattern,
		InputCCIDs:         ac.InputCCIDs,
		ExcludePlatform:    ac.ExcludePlatform,
	}

	if ac.ExcludePlatform != "" {
		if ac.ExcludeBefore == "" {
			return nil, errors.New("exclude_platform requires exclude_before")
		}
		cutoff, err := time.Parse(time.RFC3339, ac.ExcludeBefore)
		if err != nil {
			return nil, fmt.Errorf("parsing exclude_before: %w", err)
		}
		a.ExcludeBefore = cutoff.UTC()
	}

	return a, nil
}
