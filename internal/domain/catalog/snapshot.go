package catalog

import (
	"strings"
	"time"
)

// Snapshot is an immutable view of the catalog as of a single fetch.
type Snapshot struct {
	products  []Product
	byID      map[string]int
	fetchedAt time.Time
}

// NewSnapshot builds a snapshot from fetched products. The slice is copied;
// when ids repeat, the last record wins.
func NewSnapshot(products []Product, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		products:  make([]Product, 0, len(products)),
		byID:      make(map[string]int, len(products)),
		fetchedAt: fetchedAt,
	}
	for _, p := range products {
		if i, ok := s.byID[p.ID]; ok {
			s.products[i] = p
			continue
		}
		s.byID[p.ID] = len(s.products)
		s.products = append(s.products, p)
	}
	return s
}

// Products returns all products in fetch order.
func (s *Snapshot) Products() []Product {
	out := make([]Product, len(s.products))
	copy(out, s.products)
	return out
}

// Lookup returns the product with the given id.
func (s *Snapshot) Lookup(id string) (Product, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Product{}, false
	}
	return s.products[i], true
}

// Search returns products whose name, barcode or id contains term,
// case-insensitively. An empty term matches everything.
func (s *Snapshot) Search(term string) []Product {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return s.Products()
	}

	var out []Product
	for _, p := range s.products {
		if strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.Barcode), term) ||
			strings.Contains(strings.ToLower(p.ID), term) {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of products in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.products)
}

// FetchedAt returns when the snapshot was taken. Zero for the empty
// snapshot a Service starts with.
func (s *Snapshot) FetchedAt() time.Time {
	return s.fetchedAt
}
