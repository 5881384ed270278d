package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specledger/internal/domain"
)

const sample = `
products:
  - variant_id: "101"
    product_id: "p-pack-3"
    name: Starter pack
    price_usd: 9
    grants:
      spec_credits: 3
  - variant_id: "202"
    product_id: "p-pro"
    name: Pro monthly
    price_usd: 29
    grants:
      unlimited: true
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	pack, ok := c.Lookup("101")
	require.True(t, ok)
	assert.Equal(t, "p-pack-3", pack.ProductID)
	assert.Equal(t, domain.Grants{SpecCredits: 3}, pack.Grants)

	pro, ok := c.Lookup("202")
	require.True(t, ok)
	assert.True(t, pro.Grants.Unlimited)
	assert.True(t, pro.Grants.CanEdit, "unlimited products always grant edit")

	_, ok = c.Lookup("999")
	assert.False(t, ok)
	assert.Len(t, c.Products(), 2)
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"duplicate variant": "products:\n  - {variant_id: a, grants: {spec_credits: 1}}\n  - {variant_id: a, grants: {spec_credits: 2}}\n",
		"missing variant":   "products:\n  - {name: x, grants: {spec_credits: 1}}\n",
		"grants nothing":    "products:\n  - {variant_id: a}\n",
		"negative credits":  "products:\n  - {variant_id: a, grants: {spec_credits: -1}}\n",
		"unknown field":     "products:\n  - {variant_id: a, credits: 3}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	c, err := Load(path)
	require.NoError(t, err)
	_, ok := c.Lookup("202")
	assert.True(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNilCatalogLookup(t *testing.T) {
	var c *Catalog
	_, ok := c.Lookup("101")
	assert.False(t, ok)
}
