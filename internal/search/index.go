package search

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/analysis/lang/en"
	"github.com/sirupsen/logrus"

	"github.com/kiwixgo/zimservd/internal/zim"
)

// fieldTitle carries the fully analyzed (lowercased, stemmed) title text,
// used for ordinary full-text matching.
const fieldTitle = "title"

// fieldTitlePrefix carries the lowercased, unstemmed title text, used for
// AND-across-terms prefix matching so "lond" finds "London".
const fieldTitlePrefix = "title_prefix"

// DefaultIndexPath derives a sibling index directory from a ZIM file path.
func DefaultIndexPath(zimPath string) string {
	return strings.TrimSuffix(zimPath, filepath.Ext(zimPath)) + ".bluge"
}

// indexJob is the unit of work the build pipeline's reader stage produces
// and its worker stage consumes.
type indexJob struct {
	idx   uint32
	title string
}

// Build creates a fresh index at indexPath from archive's articles,
// discarding any index already there. It uses a reader/worker/writer
// pipeline so document construction overlaps with directory-entry reads.
func Build(archive *zim.Archive, indexPath string) error {
	if _, err := os.Stat(indexPath); err == nil {
		if err := os.RemoveAll(indexPath); err != nil {
			return fmt.Errorf("%w: removing stale index: %v", ErrIndexBuildFailed, err)
		}
	}

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(indexPath))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexBuildFailed, err)
	}
	defer writer.Close()

	it, err := archive.NewArticleIterator()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexBuildFailed, err)
	}

	numWorkers := runtime.NumCPU()
	const batchSize = 10000
	jobs := make(chan indexJob, numWorkers*1000)
	docs := make(chan *bluge.Document, numWorkers*1000)
	errCh := make(chan error, 1)

	var readerWg, workerWg, writerWg sync.WaitGroup

	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		defer close(jobs)
		for {
			e, ok, err := it.Next()
			if err != nil {
				select {
				case errCh <- fmt.Errorf("%w: iterating entries: %v", ErrIndexBuildFailed, err):
				default:
				}
				return
			}
			if !ok {
				return
			}
			jobs <- indexJob{idx: e.Index, title: e.Title}
		}
	}()

	for w := 0; w < numWorkers; w++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for job := range jobs {
				docs <- buildDocument(job)
			}
		}()
	}
	go func() {
		workerWg.Wait()
		close(docs)
	}()

	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		batch := bluge.NewBatch()
		n := 0
		indexed := 0
		for doc := range docs {
			batch.Insert(doc)
			n++
			indexed++
			if n >= batchSize {
				if err := writer.Batch(batch); err != nil {
					select {
					case errCh <- fmt.Errorf("%w: writing batch: %v", ErrIndexBuildFailed, err):
					default:
					}
					return
				}
				logrus.WithField("articles", indexed).Info("search index build progress")
				batch = bluge.NewBatch()
				n = 0
			}
		}
		if n > 0 {
			if err := writer.Batch(batch); err != nil {
				select {
				case errCh <- fmt.Errorf("%w: writing final batch: %v", ErrIndexBuildFailed, err):
				default:
				}
				return
			}
		}
		logrus.WithField("articles", indexed).Info("search index build complete")
	}()

	readerWg.Wait()
	writerWg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	return nil
}

func buildDocument(job indexJob) *bluge.Document {
	doc := bluge.NewDocument(strconv.FormatUint(uint64(job.idx), 10))
	doc.AddField(bluge.NewTextField(fieldTitle, job.title).WithAnalyzer(en.AnalyzerEn()))
	doc.AddField(bluge.NewTextField(fieldTitlePrefix, strings.ToLower(job.title)))
	return doc
}

// Index is an open, read-only handle onto a built title index.
type Index struct {
	reader *bluge.Reader
	path   string
}

// Open opens an existing index built by Build.
func Open(indexPath string) (*Index, error) {
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", indexPath, ErrIndexNotFound)
	}
	reader, err := bluge.OpenReader(bluge.DefaultConfig(indexPath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", indexPath, ErrIndexCorrupt, err)
	}
	return &Index{reader: reader, path: indexPath}, nil
}

// Close releases the underlying index reader.
func (ix *Index) Close() error {
	if ix.reader == nil {
		return nil
	}
	return ix.reader.Close()
}

// Candidate is a retrieval-stage hit: just enough to re-fetch the article
// and feed it to RankBM25.
type Candidate struct {
	Index uint32
	Title string
}

// Candidates retrieves up to limit articles whose title matches query,
// combining an analyzed full-text match with an AND-across-terms prefix
// match so partial words still find their target. It does not itself rank
// results — BM25 reranking happens over the returned candidates.
func (ix *Index) Candidates(query string, limit int) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	should := bluge.NewBooleanQuery()
	should.AddShould(bluge.NewMatchQuery(query).SetField(fieldTitle))
	should.AddShould(prefixConjunction(query))
	should.SetMinShould(1)

	req := bluge.NewTopNSearch(limit, should).WithStandardAggregations()
	matches, err := ix.reader.Search(context.Background(), req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}

	var out []Candidate
	match, err := matches.Next()
	for err == nil && match != nil {
		var idx uint64
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				idx, _ = strconv.ParseUint(string(value), 10, 32)
			}
			return true
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
		out = append(out, Candidate{Index: uint32(idx)})
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	return out, nil
}

// prefixConjunction builds an AND of per-term prefix queries over the
// unstemmed title_prefix field, so every query word must prefix-match some
// word in the title.
func prefixConjunction(query string) bluge.Query {
	terms := tokenize(query)
	conj := bluge.NewBooleanQuery()
	if len(terms) == 0 {
		return conj
	}
	for _, t := range terms {
		conj.AddMust(bluge.NewPrefixQuery(t).SetField(fieldTitlePrefix))
	}
	return conj
}

// Count returns the number of indexed documents.
func (ix *Index) Count() (uint64, error) {
	req := bluge.NewTopNSearch(0, bluge.NewMatchAllQuery()).WithStandardAggregations()
	matches, err := ix.reader.Search(context.Background(), req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	return matches.Aggregations().Count(), nil
}

// RandomIndex picks a uniformly random indexed article index.
func (ix *Index) RandomIndex() (uint32, error) {
	count, err := ix.Count()
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: index is empty", ErrIndexNotFound)
	}

	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generating random offset: %w", err)
	}
	offset := int(binary.LittleEndian.Uint64(buf[:]) % count)

	req := bluge.NewTopNSearch(offset+1, bluge.NewMatchAllQuery())
	matches, err := ix.reader.Search(context.Background(), req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}

	match, err := matches.Next()
	for i := 0; i < offset && err == nil && match != nil; i++ {
		match, err = matches.Next()
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	if match == nil {
		return 0, fmt.Errorf("%w: ran out of documents at offset %d", ErrIndexCorrupt, offset)
	}

	var idx uint64
	err = match.VisitStoredFields(func(field string, value []byte) bool {
		if field == "_id" {
			idx, _ = strconv.ParseUint(string(value), 10, 32)
			return false
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	return uint32(idx), nil
}
