package routing

// Policy is the static provider-selection table. Africa-destined traffic
// prefers the region-specialized provider when one is configured and
// currently available; everything else goes to the default provider.
type Policy struct {
	defaultProvider  string
	regionalProvider string // empty = not configured
}

// NewPolicy creates a selection policy. regionalProvider may be empty when
// no region-specialized transport is deployed.
func NewPolicy(defaultProvider, regionalProvider string) *Policy {
	return &Policy{
		defaultProvider:  defaultProvider,
		regionalProvider: regionalProvider,
	}
}

// prefersRegional reports whether the continent routes to the regional
// provider first.
func (p *Policy) prefersRegional(continent Continent) bool {
	return continent == Africa && p.regionalProvider != ""
}

// Primary picks the first provider to attempt. available reports whether a
// provider is currently accepting traffic (circuit breaker state).
func (p *Policy) Primary(continent Continent, available func(name string) bool) string {
	if p.prefersRegional(continent) && available(p.regionalProvider) {
		return p.regionalProvider
	}
	return p.defaultProvider
}

// Fallback returns the single fallback provider to try after primary
// failed, or "" when no fallback applies. At most one fallback per send:
// regional falls back to default, and default falls back to regional only
// for continents that prefer it.
func (p *Policy) Fallback(primary string, continent Continent) string {
	if primary == p.regionalProvider && p.regionalProvider != "" {
		return p.defaultProvider
	}
	if primary == p.defaultProvider && p.prefersRegional(continent) {
		return p.regionalProvider
	}
	return ""
}

// Default returns the default provider name.
func (p *Policy) Default() string { return p.defaultProvider }

// Regional returns the region-specialized provider name, or "".
func (p *Policy) Regional() string { return p.regionalProvider }
