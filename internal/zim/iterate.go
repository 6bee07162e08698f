package zim

// ArticleIterator walks an archive's namespace-A, non-redirect directory
// entries in entry-index order. It is restartable via Reset and is not
// safe for concurrent use by multiple goroutines.
type ArticleIterator struct {
	archive *Archive
	next    uint32
	start   uint32
}

// ArticleEntry is the triple an ArticleIterator yields per article.
type ArticleEntry struct {
	Index uint32
	URL   string
	Title string
}

// NewArticleIterator returns an iterator positioned at the first
// namespace-A entry.
func (a *Archive) NewArticleIterator() (*ArticleIterator, error) {
	start, err := a.findNamespaceStart('A')
	if err != nil {
		return nil, err
	}
	return &ArticleIterator{archive: a, next: start, start: start}, nil
}

// Reset rewinds the iterator back to the first namespace-A entry.
func (it *ArticleIterator) Reset() {
	it.next = it.start
}

// Next returns the next article entry, or ok=false once namespace A is
// exhausted. Redirects are skipped transparently.
func (it *ArticleIterator) Next() (entry ArticleEntry, ok bool, err error) {
	for it.next < it.archive.header.ArticleCount {
		idx := it.next
		it.next++

		e, err := it.archive.ReadEntry(idx)
		if err != nil {
			return ArticleEntry{}, false, err
		}
		if e.Namespace != 'A' {
			return ArticleEntry{}, false, nil
		}
		if e.IsRedirect {
			continue
		}
		return ArticleEntry{Index: e.Index, URL: e.URL, Title: e.DisplayTitle()}, true, nil
	}
	return ArticleEntry{}, false, nil
}
