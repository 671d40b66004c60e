package cmr

import (
	"fmt"
	"time"
)

// Granule is one catalog entry, reduced to the UMM fields the audits consume.
// Records are immutable once fetched.
type Granule struct {
	UR                string
	BeginningDateTime string
	InputGranules     []string
	Platforms         []string
}

// Acquired parses the granule's temporal field. CMR reports it as RFC 3339
// with fractional seconds and a Z suffix.
func (g Granule) Acquired() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, g.BeginningDateTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("granule %s: parsing BeginningDateTime %q: %w", g.UR, g.BeginningDateTime, err)
	}
	return t.UTC(), nil
}

// page is the UMM-JSON search response envelope.
type page struct {
	Items []struct {
		UMM umm `json:"umm"`
	} `json:"items"`
}

type umm struct {
	GranuleUR      string `json:"GranuleUR"`
	TemporalExtent struct {
		RangeDateTime struct {
			BeginningDateTime string `json:"BeginningDateTime"`
		} `json:"RangeDateTime"`
	} `json:"TemporalExtent"`
	InputGranules []string `json:"InputGranules"`
	Platforms     []struct {
		ShortName string `json:"ShortName"`
	} `json:"Platforms"`
}

func (p page) granules() []Granule {
	granules := make([]Granule, 0, len(p.Items))
	for _, item := range p.Items {
		g := Granule{
			UR:                item.UMM.GranuleUR,
			BeginningDateTime: item.UMM.TemporalExtent.RangeDateTime.BeginningDateTime,
			InputGranules:     item.UMM.InputGranules,
		}
		for _, platform := range item.UMM.Platforms {
			g.Platforms = append(g.Platforms, platform.ShortName)
		}
		granules = append(granules, g)
	}
	return granules
}
