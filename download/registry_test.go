package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	names := r.Names()
	assert.Len(t, names, 12)
	assert.IsIncreasing(t, names)

	for _, name := range names {
		a, ok := r.Lookup(name)
		require.True(t, ok)
		assert.Len(t, a.Digest, 128, name)
		assert.Len(t, a.Revision, 40, name)
		assert.Contains(t, a.Repository, "Carve/", name)
	}

	u2net, ok := r.Lookup("u2net.pth")
	require.True(t, ok)
	assert.Equal(t, "full_weights.pth", u2net.Filename)
	assert.Equal(t, "u2net-universal", u2net.ShortName())

	_, ok = r.Lookup("unknown.pth")
	assert.False(t, ok)
}

func TestNewRegistry_Copies(t *testing.T) {
	src := map[string]Artifact{"a": {Repository: "x/a"}}
	r := NewRegistry(src)
	delete(src, "a")
	_, ok := r.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, "a", Artifact{Repository: "a"}.ShortName())
}
