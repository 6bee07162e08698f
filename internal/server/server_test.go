package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitNamespaceBareArticleDefaultsToA(t *testing.T) {
	ns, url := splitNamespace("Albert_Einstein")
	require.Equal(t, byte('A'), ns)
	require.Equal(t, "Albert_Einstein", url)
}

func TestSplitNamespaceExplicitNamespace(t *testing.T) {
	ns, url := splitNamespace("I/logo.png")
	require.Equal(t, byte('I'), ns)
	require.Equal(t, "logo.png", url)
}

func TestSplitNamespaceExplicitNamespaceNoURL(t *testing.T) {
	ns, url := splitNamespace("M")
	require.Equal(t, byte('M'), ns)
	require.Equal(t, "", url)
}

func TestArticlePathOmitsNamespaceForA(t *testing.T) {
	require.Equal(t, "/wiki/Cats", articlePath("wiki", 'A', "Cats"))
	require.Equal(t, "/wiki/I/cats.png", articlePath("wiki", 'I', "cats.png"))
}

func TestArchiveFromReferer(t *testing.T) {
	name, ok := archiveFromReferer("http://localhost:8080/wiki/Cats")
	require.True(t, ok)
	require.Equal(t, "wiki", name)

	_, ok = archiveFromReferer("")
	require.False(t, ok)

	_, ok = archiveFromReferer("http://localhost:8080")
	require.False(t, ok)
}
