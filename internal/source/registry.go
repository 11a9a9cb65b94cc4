package source

import (
	"fmt"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

// Registry maps source ids to Fetcher implementations. It is populated once at
// startup and read concurrently afterwards.
type Registry struct {
	catalog  *Catalog
	fetchers map[string]crawler.Fetcher
}

// NewRegistry creates an empty Registry bound to catalog.
func NewRegistry(catalog *Catalog) *Registry {
	return &Registry{
		catalog:  catalog,
		fetchers: make(map[string]crawler.Fetcher),
	}
}

// Register binds a fetcher to a catalogued community source.
func (r *Registry) Register(id string, f crawler.Fetcher) error {
	if f == nil {
		return fmt.Errorf("fetcher for %q is nil", id)
	}
	src, ok := r.catalog.Lookup(id)
	if !ok {
		return fmt.Errorf("source %q is not in the catalogue", id)
	}
	if src.Kind != crawler.KindCommunity {
		return fmt.Errorf("source %q is %s and cannot be crawled", src.ID, src.Kind)
	}
	if _, exists := r.fetchers[src.ID]; exists {
		return fmt.Errorf("source %q already registered", src.ID)
	}
	r.fetchers[src.ID] = f
	return nil
}

// Fetcher returns the fetcher registered for id.
func (r *Registry) Fetcher(id string) (crawler.Fetcher, bool) {
	f, ok := r.fetchers[NormalizeID(id)]
	return f, ok
}

// Catalog exposes the catalogue backing the registry.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Supported lists community sources that have a registered fetcher, in
// catalogue order.
func (r *Registry) Supported() []string {
	var out []string
	for _, id := range r.catalog.IDs(crawler.KindCommunity) {
		if _, ok := r.fetchers[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Classification splits a selection into its validation buckets.
type Classification struct {
	Selected  []string
	Community []string
	SNS       []string
	Unknown   []string
}

// Classify buckets the canonical form of ids. Community sources without a
// registered fetcher are treated as unknown.
func (r *Registry) Classify(ids []string) Classification {
	c := Classification{Selected: Canonical(ids)}
	for _, id := range c.Selected {
		switch r.catalog.Kind(id) {
		case crawler.KindCommunity:
			if _, ok := r.fetchers[id]; ok {
				c.Community = append(c.Community, id)
			} else {
				c.Unknown = append(c.Unknown, id)
			}
		case crawler.KindSNS:
			c.SNS = append(c.SNS, id)
		default:
			c.Unknown = append(c.Unknown, id)
		}
	}
	return c
}
