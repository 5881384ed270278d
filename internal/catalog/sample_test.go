package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryCatalogLoads(t *testing.T) {
	c, err := Load("../../catalog.yaml")
	require.NoError(t, err)
	assert.Len(t, c.Products(), 3)
	pro, ok := c.Lookup("201")
	require.True(t, ok)
	assert.True(t, pro.Grants.Unlimited)
}
