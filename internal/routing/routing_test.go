package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveDestination_KnownPrefixes(t *testing.T) {
	tests := []struct {
		address   string
		code      string
		continent Continent
	}{
		{"+233241234567", "233", Africa},
		{"+14155551234", "1", NorthAmerica},
		{"+254712345678", "254", Africa},
		{"+2348012345678", "234", Africa},
		{"+447911123456", "44", Europe},
		{"+5511987654321", "55", SouthAmerica},
		{"+8613812345678", "86", Asia},
		{"+61412345678", "61", Oceania},
		{"+27821234567", "27", Africa},
		{"+971501234567", "971", Asia},
	}

	for _, tt := range tests {
		dest := ResolveDestination(tt.address)
		assert.Equal(t, tt.code, dest.CountryCode, "address %s", tt.address)
		assert.Equal(t, tt.continent, dest.Continent, "address %s", tt.address)
	}
}

func TestResolveDestination_StripsFormatting(t *testing.T) {
	dest := ResolveDestination("+233 (24) 123-4567")
	assert.Equal(t, "233", dest.CountryCode)
	assert.Equal(t, Africa, dest.Continent)
	assert.Equal(t, "Ghana", dest.Country)
}

func TestResolveDestination_LongestPrefixWins(t *testing.T) {
	// "212" (Morocco) must win over "21..." partials, and "2" alone is not
	// a table entry, so the scan order matters.
	dest := ResolveDestination("+212612345678")
	assert.Equal(t, "212", dest.CountryCode)
	assert.Equal(t, "Morocco", dest.Country)
}

func TestResolveDestination_HeuristicFallback(t *testing.T) {
	// 883 is a non-geographic ITU code not in the table: fall back to the
	// first three digits with unknown continent.
	dest := ResolveDestination("+88312345678")
	assert.Equal(t, "883", dest.CountryCode)
	assert.Equal(t, Unknown, dest.Continent)

	// Shorter than three digits: take whatever is there.
	dest = ResolveDestination("99")
	assert.Equal(t, "99", dest.CountryCode)
	assert.Equal(t, Unknown, dest.Continent)
}

func TestResolveDestination_Empty(t *testing.T) {
	dest := ResolveDestination("not-a-number")
	assert.Equal(t, "", dest.CountryCode)
	assert.Equal(t, Unknown, dest.Continent)
}

func TestResolveDestination_Deterministic(t *testing.T) {
	a := ResolveDestination("+233241234567")
	b := ResolveDestination("+233241234567")
	assert.Equal(t, a, b)
}

func alwaysAvailable(string) bool { return true }

func TestPolicy_AfricaPrefersRegional(t *testing.T) {
	p := NewPolicy("meridian", "savanna")

	assert.Equal(t, "savanna", p.Primary(Africa, alwaysAvailable))
	assert.Equal(t, "meridian", p.Primary(Europe, alwaysAvailable))
	assert.Equal(t, "meridian", p.Primary(NorthAmerica, alwaysAvailable))
	assert.Equal(t, "meridian", p.Primary(Unknown, alwaysAvailable))
}

func TestPolicy_RegionalUnavailableFallsToDefault(t *testing.T) {
	p := NewPolicy("meridian", "savanna")
	down := func(name string) bool { return name != "savanna" }

	assert.Equal(t, "meridian", p.Primary(Africa, down))
}

func TestPolicy_NoRegionalConfigured(t *testing.T) {
	p := NewPolicy("meridian", "")

	assert.Equal(t, "meridian", p.Primary(Africa, alwaysAvailable))
	assert.Equal(t, "", p.Fallback("meridian", Africa))
}

func TestPolicy_Fallback(t *testing.T) {
	p := NewPolicy("meridian", "savanna")

	// Regional primary falls back to default, anywhere.
	assert.Equal(t, "meridian", p.Fallback("savanna", Africa))

	// Default primary falls back to regional only where regional is preferred.
	assert.Equal(t, "savanna", p.Fallback("meridian", Africa))
	assert.Equal(t, "", p.Fallback("meridian", Europe))
}
