package aggregate

import (
	"sort"

	"github.com/hyperifyio/gopii/internal/normalize"
)

// Candidate is one raw match produced by a single extraction strategy.
// Offsets are byte offsets into the normalized page text.
type Candidate struct {
	Raw      string
	Start    int
	End      int
	Page     int
	Strategy string
}

// Overlaps reports whether two candidates share at least one byte.
func (c Candidate) Overlaps(o Candidate) bool {
	return c.Start < o.End && o.Start < c.End
}

// Entity is a deduplicated value with every page it was seen on.
type Entity struct {
	Canonical string
	Display   string
	// Pages is strictly ascending and free of duplicates.
	Pages []int
}

// Deduplicator merges pushed values by key, keeping first-push order and
// collecting page numbers. It is not safe for concurrent use; each document
// gets its own.
type Deduplicator struct {
	key      func(string) string
	index    map[string]int
	entities []Entity
}

// NewNames keys values by their canonical form (accent-folded, lowercased,
// whitespace-collapsed), so "JOSÉ PÉREZ" and "Jose Perez" merge.
func NewNames() *Deduplicator {
	return &Deduplicator{key: normalize.Key, index: map[string]int{}}
}

// NewExact keys values by exact string equality, as used for ID numbers.
func NewExact() *Deduplicator {
	return &Deduplicator{key: func(s string) string { return s }, index: map[string]int{}}
}

// Push records value as seen on page. The first pushed spelling of a key
// becomes its display value. Empty keys are ignored.
func (d *Deduplicator) Push(value string, page int) {
	k := d.key(value)
	if k == "" {
		return
	}
	if i, ok := d.index[k]; ok {
		d.entities[i].Pages = insertPage(d.entities[i].Pages, page)
		return
	}
	d.index[k] = len(d.entities)
	d.entities = append(d.entities, Entity{Canonical: k, Display: value, Pages: []int{page}})
}

// Has reports whether value's key was already pushed.
func (d *Deduplicator) Has(value string) bool {
	_, ok := d.index[d.key(value)]
	return ok
}

func (d *Deduplicator) Len() int { return len(d.entities) }

// Results returns the entities in first-push order. The slice and page lists
// are copies.
func (d *Deduplicator) Results() []Entity {
	out := make([]Entity, len(d.entities))
	for i, e := range d.entities {
		e.Pages = append([]int(nil), e.Pages...)
		out[i] = e
	}
	return out
}

// Values returns the display values in first-push order.
func (d *Deduplicator) Values() []string {
	out := make([]string, len(d.entities))
	for i, e := range d.entities {
		out[i] = e.Display
	}
	return out
}

func insertPage(pages []int, page int) []int {
	i := sort.SearchInts(pages, page)
	if i < len(pages) && pages[i] == page {
		return pages
	}
	pages = append(pages, 0)
	copy(pages[i+1:], pages[i:])
	pages[i] = page
	return pages
}
