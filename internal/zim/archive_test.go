package zim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fixture describes a small, hand-assembled ZIM file used to exercise the
// reader without depending on a real archive. Layout, in entry-index order:
//
//	0  A/apple   "Apple"   -> cluster 0, blob 0
//	1  A/banana  ""        -> cluster 0, blob 1 (title falls back to URL)
//	2  A/cherry  redirect  -> entry 0
//	3  A/loop    redirect  -> entry 3 (itself, for redirect-loop testing)
//	4  M/Title   ""        -> cluster 0, blob 2
type fixture struct {
	path    string
	mainIdx uint32
}

func writeArticleEntry(mime uint16, ns byte, cluster, blob uint32, url, title string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, mime)
	buf.WriteByte(0) // paramLen
	buf.WriteByte(ns)
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // revision
	binary.Write(&buf, binary.LittleEndian, cluster)
	binary.Write(&buf, binary.LittleEndian, blob)
	buf.WriteString(url)
	buf.WriteByte(0)
	buf.WriteString(title)
	buf.WriteByte(0)
	return buf.Bytes()
}

func writeRedirectEntry(ns byte, target uint32, url string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint16(redirectMimeType))
	buf.WriteByte(0)
	buf.WriteByte(ns)
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, target)
	buf.WriteString(url)
	buf.WriteByte(0)
	buf.WriteByte(0) // empty title
	return buf.Bytes()
}

func buildClusterPayload(t *testing.T, blobs [][]byte) []byte {
	t.Helper()
	n := uint32(len(blobs))
	offsets := make([]uint32, n+1)
	offsets[0] = 4 * (n + 1)
	for i, b := range blobs {
		offsets[i+1] = offsets[i] + uint32(len(b))
	}

	var buf bytes.Buffer
	buf.WriteByte(compressionNone) // info byte, no extensions
	for _, o := range offsets {
		binary.Write(&buf, binary.LittleEndian, o)
	}
	for _, b := range blobs {
		buf.Write(b)
	}
	return buf.Bytes()
}

func buildFixture(t *testing.T) fixture {
	t.Helper()

	var mimeList bytes.Buffer
	mimeList.WriteString("text/html")
	mimeList.WriteByte(0)
	mimeList.WriteByte(0)

	entries := [][]byte{
		writeArticleEntry(0, 'A', 0, 0, "apple", "Apple"),
		writeArticleEntry(0, 'A', 0, 1, "banana", ""),
		writeRedirectEntry('A', 0, "cherry"),
		writeRedirectEntry('A', 3, "loop"),
		writeArticleEntry(0, 'M', 0, 2, "Title", ""),
	}
	articleCount := uint32(len(entries))

	cluster := buildClusterPayload(t, [][]byte{
		[]byte("Apple full text"),
		[]byte("Banana full text"),
		[]byte("Test Archive"),
	})

	pos := int64(headerSize)
	mimeListPos := pos
	pos += int64(mimeList.Len())

	urlPtrPos := pos
	pos += int64(articleCount) * 8

	titlePtrPos := pos
	pos += int64(articleCount) * 8

	clusterPtrPos := pos
	pos += 8

	entryOffsets := make([]uint64, len(entries))
	for i, e := range entries {
		entryOffsets[i] = uint64(pos)
		pos += int64(len(e))
	}

	clusterOffset := uint64(pos)
	pos += int64(len(cluster))
	checksumPos := uint64(pos)

	header := Header{
		MagicNumber:   magicNumber,
		MajorVersion:  6,
		UUID:          uuid.New(),
		ArticleCount:  articleCount,
		ClusterCount:  1,
		URLPtrPos:     uint64(urlPtrPos),
		TitlePtrPos:   uint64(titlePtrPos),
		ClusterPtrPos: uint64(clusterPtrPos),
		MimeListPos:   uint64(mimeListPos),
		MainPage:      0,
		LayoutPage:    0xFFFFFFFF,
		ChecksumPos:   checksumPos,
	}

	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, header); err != nil {
		t.Fatalf("encoding header: %v", err)
	}
	if out.Len() != headerSize {
		t.Fatalf("header encoded to %d bytes, want %d", out.Len(), headerSize)
	}
	out.Write(mimeList.Bytes())
	for _, o := range entryOffsets {
		binary.Write(&out, binary.LittleEndian, o)
	}
	for range entries {
		binary.Write(&out, binary.LittleEndian, uint64(0)) // title pointer table, unused
	}
	binary.Write(&out, binary.LittleEndian, clusterOffset)
	for _, e := range entries {
		out.Write(e)
	}
	out.Write(cluster)

	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.zim")
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return fixture{path: path, mainIdx: 0}
}

func openFixture(t *testing.T) *Archive {
	t.Helper()
	fx := buildFixture(t)
	a, err := Open(fx.path)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.zim")
	require.NoError(t, os.WriteFile(path, make([]byte, headerSize), 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestGetArticleByIndex(t *testing.T) {
	a := openFixture(t)

	art, err := a.GetArticleByIndex(0, true)
	require.NoError(t, err)
	require.Equal(t, "apple", art.URL)
	require.Equal(t, "Apple", art.Title)
	require.Equal(t, "text/html", art.MimeType)
	require.Equal(t, []byte("Apple full text"), art.Content)
}

func TestGetArticleTitleFallsBackToURL(t *testing.T) {
	a := openFixture(t)

	art, err := a.GetArticleByIndex(1, true)
	require.NoError(t, err)
	require.Equal(t, "banana", art.Title)
}

func TestGetArticleFollowsRedirect(t *testing.T) {
	a := openFixture(t)

	art, err := a.GetArticleByURL('A', "cherry")
	require.NoError(t, err)
	require.Equal(t, "apple", art.URL)
	require.Equal(t, []byte("Apple full text"), art.Content)
}

func TestGetArticleByIndexNoFollowReturnsRedirectStub(t *testing.T) {
	a := openFixture(t)

	// "cherry" (index 2) redirects to "apple" (index 0).
	art, err := a.GetArticleByIndex(2, false)
	require.NoError(t, err)
	require.Nil(t, art.Content)
	require.Equal(t, "0", art.MimeType)
	require.Equal(t, "cherry", art.URL)
}

func TestGetArticleByIndexFollowStillResolvesRedirect(t *testing.T) {
	a := openFixture(t)

	art, err := a.GetArticleByIndex(2, true)
	require.NoError(t, err)
	require.Equal(t, "apple", art.URL)
	require.Equal(t, []byte("Apple full text"), art.Content)
}

func TestGetArticleDetectsRedirectLoop(t *testing.T) {
	a := openFixture(t)

	_, err := a.GetArticleByURL('A', "loop")
	require.ErrorIs(t, err, ErrRedirectLoop)
}

func TestFindByURLNotFound(t *testing.T) {
	a := openFixture(t)

	_, _, err := a.FindByURL('A', "does-not-exist")
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestGetMainPage(t *testing.T) {
	a := openFixture(t)

	art, err := a.GetMainPage()
	require.NoError(t, err)
	require.Equal(t, "apple", art.URL)
}

func TestMetadata(t *testing.T) {
	a := openFixture(t)

	md, err := a.Metadata()
	require.NoError(t, err)
	require.Equal(t, []byte("Test Archive"), md["Title"])
}

func TestArticleIteratorSkipsRedirectsAndOtherNamespaces(t *testing.T) {
	a := openFixture(t)

	it, err := a.NewArticleIterator()
	require.NoError(t, err)

	var urls []string
	for {
		e, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		urls = append(urls, e.URL)
	}
	require.Equal(t, []string{"apple", "banana"}, urls)
}

func TestArticleIteratorReset(t *testing.T) {
	a := openFixture(t)
	it, err := a.NewArticleIterator()
	require.NoError(t, err)

	first, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)

	it.Reset()
	again, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first, again)
}

func TestGetBlobOutOfRange(t *testing.T) {
	a := openFixture(t)

	_, err := a.GetBlob(0, 99)
	require.ErrorIs(t, err, ErrBlobOutOfRange)
}

func TestGetBlobUnknownCluster(t *testing.T) {
	a := openFixture(t)

	_, err := a.GetBlob(5, 0)
	require.ErrorIs(t, err, ErrBlobOutOfRange)
}

func TestClusterCacheServesRepeatedReads(t *testing.T) {
	a := openFixture(t)

	b1, err := a.GetBlob(0, 0)
	require.NoError(t, err)
	b2, err := a.GetBlob(0, 0)
	require.NoError(t, err)
	require.Equal(t, b1, b2)
}

func TestParseBlobOffsetsRejectsTruncatedTable(t *testing.T) {
	_, err := parseBlobOffsets([]byte{1, 2, 3})
	require.True(t, errors.Is(err, ErrTruncatedArchive))
}

func TestCompareKeyOrdersByNamespaceThenURL(t *testing.T) {
	require.Equal(t, -1, compareKey('A', "a", 'M', "a"))
	require.Equal(t, 1, compareKey('M', "a", 'A', "z"))
	require.Equal(t, 0, compareKey('A', "a", 'A', "a"))
	require.Equal(t, -1, compareKey('A', "a", 'A', "b"))
}
