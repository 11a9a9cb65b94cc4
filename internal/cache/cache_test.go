package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/buzzcrawl/internal/hash/sha256"
)

func TestKeyIsOrderAndCaseInsensitive(t *testing.T) {
	t.Parallel()

	h := sha256.New()
	a, err := Key(h, "  Go Generics ", []string{"reddit", "clien"})
	require.NoError(t, err)
	b, err := Key(h, "go generics", []string{"CLIEN", "reddit", "reddit"})
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, sha256.Sum("go generics:clien:reddit"), a)
}

func TestKeyDiffersBySelection(t *testing.T) {
	t.Parallel()

	h := sha256.New()
	a, err := Key(h, "go", []string{"reddit"})
	require.NoError(t, err)
	b, err := Key(h, "go", []string{"reddit", "clien"})
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
