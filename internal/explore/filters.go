package explore

import (
	"sort"
	"strings"

	"github.com/reelwise/reelwise/internal/backend"
)

// Filters is a provider and release year selection. A nil field means the
// user has not restricted that dimension.
type Filters struct {
	Providers []string           `json:"providers"`
	YearRange *backend.YearRange `json:"yearRange"`
}

// Equal compares providers as an order-insensitive set, treating nil and
// empty alike, and year ranges numerically.
func (f Filters) Equal(o Filters) bool {
	if !sameProviders(f.Providers, o.Providers) {
		return false
	}
	switch {
	case f.YearRange == nil && o.YearRange == nil:
		return true
	case f.YearRange == nil || o.YearRange == nil:
		return false
	}
	return normalizeYears(*f.YearRange) == normalizeYears(*o.YearRange)
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return len(f.Providers) == 0 && f.YearRange == nil
}

// Patch returns the rerun patch for this selection.
func (f Filters) Patch() backend.RerunPatch {
	c := f.clone()
	if len(c.Providers) == 0 {
		c.Providers = nil
	}
	return backend.RerunPatch{Providers: c.Providers, YearRange: c.YearRange}
}

// Query returns the filters sent with a fresh query.
func (f Filters) Query() backend.QueryFilters {
	c := f.clone()
	return backend.QueryFilters{Providers: c.Providers, YearRange: c.YearRange}
}

func (f Filters) clone() Filters {
	out := Filters{}
	if f.Providers != nil {
		out.Providers = append([]string(nil), f.Providers...)
	}
	if f.YearRange != nil {
		yr := normalizeYears(*f.YearRange)
		out.YearRange = &yr
	}
	return out
}

func normalizeYears(yr backend.YearRange) backend.YearRange {
	if yr[0] > yr[1] {
		yr[0], yr[1] = yr[1], yr[0]
	}
	return yr
}

func sameProviders(a, b []string) bool {
	as, bs := providerSet(a), providerSet(b)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// providerSet returns the sorted, deduplicated, case-folded provider names.
func providerSet(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		key := strings.ToLower(strings.TrimSpace(p))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Reconcile merges the active spec echoed by the backend into the local
// selection. Only values the backend attributes to the user overwrite the
// local filters. System defaults are returned separately and never replace
// a local value, including an explicit "unset". Values with no source tag
// are ignored.
func Reconcile(local, defaults Filters, spec *backend.ActiveSpec) (Filters, Filters) {
	local = local.clone()
	defaults = defaults.clone()
	if spec == nil {
		return local, defaults
	}

	if p := spec.Providers; p != nil {
		value := append([]string(nil), p.Value...)
		switch p.Source {
		case backend.SourceUser:
			local.Providers = value
		case backend.SourceSystem:
			defaults.Providers = value
		}
	}

	if y := spec.YearRange; y != nil {
		var value *backend.YearRange
		if y.Value != nil {
			yr := normalizeYears(*y.Value)
			value = &yr
		}
		switch y.Source {
		case backend.SourceUser:
			local.YearRange = value
		case backend.SourceSystem:
			defaults.YearRange = value
		}
	}

	return local, defaults
}
