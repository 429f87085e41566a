package labtest

import (
	"fmt"

	"github.com/ehr/labreport/internal/domain/patient"
)

// Entry is one predefined lab test in a catalog edition. An entry carries
// either a general recommendation or a male/female pair, never both.
type Entry struct {
	Name              string
	Unit              string
	Recommended       string
	RecommendedMale   string
	RecommendedFemale string
	Category          bool
	Rule              Rule
}

// GenderSpecific reports whether the entry defines a male/female pair.
func (e Entry) GenderSpecific() bool {
	return e.RecommendedMale != "" || e.RecommendedFemale != ""
}

// RecommendedFor returns the recommended value or range for the given sex.
// An unset sex is treated as male; any other non-male sex gets the female
// range.
func (e Entry) RecommendedFor(sex patient.Sex) string {
	if !e.GenderSpecific() {
		return e.Recommended
	}
	if sex == patient.SexMale || sex == patient.SexUnset {
		return e.RecommendedMale
	}
	return e.RecommendedFemale
}

// Catalog is an immutable, ordered set of entries for one edition. It is
// built once at startup and shared read-only.
type Catalog struct {
	edition string
	entries []Entry
	index   map[string]int
	first   int
}

// NewCatalog validates entries and builds a catalog.
func NewCatalog(edition string, entries []Entry) (*Catalog, error) {
	if edition == "" {
		return nil, fmt.Errorf("catalog edition name is required")
	}

	c := &Catalog{
		edition: edition,
		entries: make([]Entry, len(entries)),
		index:   make(map[string]int, len(entries)),
		first:   -1,
	}
	copy(c.entries, entries)

	for i, e := range c.entries {
		if e.Name == "" {
			return nil, fmt.Errorf("catalog %s: entry %d has no name", edition, i)
		}
		if _, dup := c.index[e.Name]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate test name %q", edition, e.Name)
		}
		if e.Recommended != "" && e.GenderSpecific() {
			return nil, fmt.Errorf("catalog %s: %q has both general and gender-specific recommendations", edition, e.Name)
		}
		if e.GenderSpecific() && (e.RecommendedMale == "" || e.RecommendedFemale == "") {
			return nil, fmt.Errorf("catalog %s: %q has an incomplete gender pair", edition, e.Name)
		}
		if e.Category {
			if e.Unit != "" || e.Recommended != "" || e.GenderSpecific() {
				return nil, fmt.Errorf("catalog %s: category %q must not carry a unit or recommendation", edition, e.Name)
			}
			c.entries[i].Rule = AcceptAll
		} else if c.first < 0 {
			c.first = i
		}
		c.index[e.Name] = i
	}

	if c.first < 0 {
		return nil, fmt.Errorf("catalog %s: no selectable tests", edition)
	}
	return c, nil
}

// Edition returns the edition name.
func (c *Catalog) Edition() string { return c.edition }

// Lookup finds an entry by test name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	i, ok := c.index[name]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Default returns the entry new rows are bound to: the first selectable one.
func (c *Catalog) Default() Entry { return c.entries[c.first] }

// Entries returns all entries in catalog order, headers included.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// ListSelectable returns the entries that may be chosen as a row's test type.
func (c *Catalog) ListSelectable() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if !e.Category {
			out = append(out, e)
		}
	}
	return out
}

// Headers returns the category header entries in catalog order.
func (c *Catalog) Headers() []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.Category {
			out = append(out, e)
		}
	}
	return out
}
