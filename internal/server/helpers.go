package server

import "github.com/kiwixgo/zimservd/internal/htmlfrag"

// fragmentsOf extracts the renderable body out of an article's raw
// content. Non-HTML MIME types (plain text, SVG) are passed through
// unchanged since there is nothing to extract.
func fragmentsOf(mimeType string, content []byte) string {
	if mimeType != "text/html" {
		return string(content)
	}
	return htmlfrag.Extract(string(content)).Body
}
