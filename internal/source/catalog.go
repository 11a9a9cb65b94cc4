// Package source holds the channel catalogue and the static fetcher registry.
package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

// DefaultSources is the built-in channel catalogue.
var DefaultSources = []crawler.Source{
	{ID: "reddit", Label: "Reddit", Kind: crawler.KindCommunity},
	{ID: "ppomppu", Label: "뽐뿌", Kind: crawler.KindCommunity},
	{ID: "dcinside", Label: "디시인사이드", Kind: crawler.KindCommunity},
	{ID: "theqoo", Label: "더쿠", Kind: crawler.KindCommunity},
	{ID: "ruliweb", Label: "루리웹", Kind: crawler.KindCommunity},
	{ID: "clien", Label: "클리앙", Kind: crawler.KindCommunity},
	{ID: "instagram", Label: "인스타그램", Kind: crawler.KindSNS},
	{ID: "youtube", Label: "유튜브", Kind: crawler.KindSNS},
	{ID: "facebook", Label: "페이스북", Kind: crawler.KindSNS},
	{ID: "x", Label: "X", Kind: crawler.KindSNS},
	{ID: "threads", Label: "스레드", Kind: crawler.KindSNS},
}

// Catalog answers kind and label lookups for source IDs.
type Catalog struct {
	byID  map[string]crawler.Source
	order []string
}

// NewCatalog builds a Catalog; duplicate or malformed entries are rejected.
func NewCatalog(sources []crawler.Source) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]crawler.Source, len(sources))}
	for _, src := range sources {
		id := NormalizeID(src.ID)
		if id == "" {
			return nil, fmt.Errorf("source id is required")
		}
		if src.Kind != crawler.KindCommunity && src.Kind != crawler.KindSNS {
			return nil, fmt.Errorf("source %q has unknown kind %q", id, src.Kind)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("duplicate source %q", id)
		}
		src.ID = id
		if src.Label == "" {
			src.Label = id
		}
		c.byID[id] = src
		c.order = append(c.order, id)
	}
	return c, nil
}

// MustDefault returns the built-in catalogue.
func MustDefault() *Catalog {
	c, err := NewCatalog(DefaultSources)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the catalogue entry for id.
func (c *Catalog) Lookup(id string) (crawler.Source, bool) {
	src, ok := c.byID[NormalizeID(id)]
	return src, ok
}

// Kind returns the kind of id, or "" for unknown ids.
func (c *Catalog) Kind(id string) crawler.SourceKind {
	src, ok := c.Lookup(id)
	if !ok {
		return ""
	}
	return src.Kind
}

// Label returns the human readable label, falling back to the id itself.
func (c *Catalog) Label(id string) string {
	if src, ok := c.Lookup(id); ok {
		return src.Label
	}
	return id
}

// FormatLabel prefixes text with the bracketed source label.
func (c *Catalog) FormatLabel(id, text string) string {
	return "[" + c.Label(id) + "] " + text
}

// IDs returns all catalogued ids of the given kind in catalogue order.
func (c *Catalog) IDs(kind crawler.SourceKind) []string {
	out := make([]string, 0, len(c.order))
	for _, id := range c.order {
		if c.byID[id].Kind == kind {
			out = append(out, id)
		}
	}
	return out
}

// ByKind returns catalogue entries grouped by kind.
func (c *Catalog) ByKind() map[crawler.SourceKind][]crawler.Source {
	out := map[crawler.SourceKind][]crawler.Source{
		crawler.KindCommunity: {},
		crawler.KindSNS:       {},
	}
	for _, id := range c.order {
		src := c.byID[id]
		out[src.Kind] = append(out[src.Kind], src)
	}
	return out
}

// NormalizeID trims and lowercases a source id.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Canonical returns the sorted, deduplicated, normalized set of ids.
func Canonical(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n := NormalizeID(id)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
