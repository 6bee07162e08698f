package htmlfrag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractFindsAllThreeFragments(t *testing.T) {
	html := `<html><head><title>Cats</title><meta charset="utf-8"></head><body><h1>Cats</h1><p>Obligate carnivores.</p></body></html>`
	f := Extract(html)
	require.Equal(t, "Cats", f.Title)
	require.Contains(t, f.Head, `<meta charset="utf-8">`)
	require.Contains(t, f.Body, "Obligate carnivores.")
}

func TestExtractFallsBackToWholeDocumentForBody(t *testing.T) {
	html := `<p>No wrapper tags here.</p>`
	f := Extract(html)
	require.Empty(t, f.Title)
	require.Empty(t, f.Head)
	require.Equal(t, html, f.Body)
}

func TestExtractIsCaseInsensitive(t *testing.T) {
	html := `<HTML><TITLE>Dogs</TITLE><BODY>Loyal.</BODY></HTML>`
	f := Extract(html)
	require.Equal(t, "Dogs", f.Title)
	require.Equal(t, "Loyal.", f.Body)
}
