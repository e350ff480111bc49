// Package routing maps destination addresses to geography and picks the
// transport provider for each send. Everything here is pure table lookup:
// no I/O, no adaptivity.
package routing

import (
	"sort"
	"strings"
)

// Continent buckets used for provider selection.
type Continent string

const (
	Africa       Continent = "africa"
	Europe       Continent = "europe"
	NorthAmerica Continent = "north_america"
	SouthAmerica Continent = "south_america"
	Asia         Continent = "asia"
	Oceania      Continent = "oceania"
	Unknown      Continent = "unknown"
)

// Destination is the resolved geography of an address.
type Destination struct {
	Address     string    `json:"address"`
	CountryCode string    `json:"countryCode"`
	Continent   Continent `json:"continent"`
	Country     string    `json:"country,omitempty"`
}

// ResolveDestination strips non-numeric characters from address and matches
// the longest known dialing prefix. When no prefix matches, it falls back to
// guessing a 3-, then 2-, then 1-digit country code with unknown continent.
func ResolveDestination(address string) Destination {
	digits := stripNonDigits(address)
	dest := Destination{Address: address, Continent: Unknown}
	if digits == "" {
		return dest
	}

	for _, e := range prefixes {
		if strings.HasPrefix(digits, e.prefix) {
			dest.CountryCode = e.prefix
			dest.Continent = e.continent
			dest.Country = e.country
			return dest
		}
	}

	// Heuristic: assume the country code is the first 3 digits, shorter if
	// the number itself is shorter.
	n := 3
	if len(digits) < n {
		n = len(digits)
	}
	dest.CountryCode = digits[:n]
	return dest
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func init() {
	// Longest prefix first so e.g. "233" (Ghana) wins over "23x" fallthroughs
	// and "1" (NANP) never shadows "1264"-style future entries.
	sort.SliceStable(prefixes, func(i, j int) bool {
		return len(prefixes[i].prefix) > len(prefixes[j].prefix)
	})
}
