// Package catalog holds the static product catalog that translates a
// provider variant into entitlement grants. It is loaded once at startup and
// never mutated afterwards.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"specledger/internal/domain"
)

type file struct {
	Products []domain.Product `yaml:"products"`
}

// Catalog is a read-only variant index. Safe for concurrent use.
type Catalog struct {
	byVariant map[string]domain.Product
}

// Load reads a YAML catalog from path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML catalog and validates every entry.
func Parse(raw []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var f file
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(f.Products...)
}

// New builds a catalog from products, rejecting duplicates and entries that
// grant nothing.
func New(products ...domain.Product) (*Catalog, error) {
	c := &Catalog{byVariant: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		if p.VariantID == "" {
			return nil, fmt.Errorf("catalog product %q: variant_id is required", p.Name)
		}
		if _, dup := c.byVariant[p.VariantID]; dup {
			return nil, fmt.Errorf("catalog variant %s listed twice", p.VariantID)
		}
		if p.Grants.SpecCredits < 0 {
			return nil, fmt.Errorf("catalog variant %s: negative spec_credits", p.VariantID)
		}
		if p.Grants.IsZero() {
			return nil, fmt.Errorf("catalog variant %s grants nothing", p.VariantID)
		}
		if p.Grants.Unlimited {
			p.Grants.CanEdit = true
		}
		c.byVariant[p.VariantID] = p
	}
	return c, nil
}

// Lookup returns the product for a variant id.
func (c *Catalog) Lookup(variantID string) (domain.Product, bool) {
	if c == nil {
		return domain.Product{}, false
	}
	p, ok := c.byVariant[variantID]
	return p, ok
}

// Products lists the catalog sorted by variant id.
func (c *Catalog) Products() []domain.Product {
	out := make([]domain.Product, 0, len(c.byVariant))
	for _, p := range c.byVariant {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out
}
