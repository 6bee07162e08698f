package search

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25Params holds the tunable Okapi BM25 constants. k1 controls term
// frequency saturation, b controls length normalization strength.
type BM25Params struct {
	K1 float64
	B  float64
}

// DefaultBM25Params matches the commonly used Okapi BM25 defaults.
var DefaultBM25Params = BM25Params{K1: 1.2, B: 0.75}

// Document is a single candidate passed to RankBM25: an opaque ID (an
// archive entry index) paired with the text to score against the query.
type Document struct {
	ID    uint32
	Title string
}

// Result is a ranked Document with its computed BM25 score.
type Result struct {
	ID    uint32
	Title string
	Score float64
}

// tokenize lowercases s and splits it on runs of non-letter/non-digit
// characters, matching the analysis a simple title field would apply.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// RankBM25 scores docs against query using Okapi BM25 with IDF computed
// only over the supplied candidate set (not a whole-archive document
// frequency), then returns them sorted by descending score. Documents that
// share no term with the query score zero but are still included, in their
// original relative order among zero-score ties.
func RankBM25(query string, docs []Document, params BM25Params) []Result {
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || len(docs) == 0 {
		results := make([]Result, len(docs))
		for i, d := range docs {
			results[i] = Result{ID: d.ID, Title: d.Title}
		}
		return results
	}

	docTerms := make([][]string, len(docs))
	termFreq := make([]map[string]int, len(docs))
	var totalLen int
	docFreq := make(map[string]int)

	for i, d := range docs {
		terms := tokenize(d.Title)
		docTerms[i] = terms
		totalLen += len(terms)

		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		termFreq[i] = freq

		seen := make(map[string]bool, len(freq))
		for _, qt := range queryTerms {
			if freq[qt] > 0 && !seen[qt] {
				docFreq[qt]++
				seen[qt] = true
			}
		}
	}

	n := float64(len(docs))
	avgdl := float64(totalLen) / n

	idf := make(map[string]float64, len(queryTerms))
	for _, qt := range queryTerms {
		if _, ok := idf[qt]; ok {
			continue
		}
		nq := float64(docFreq[qt])
		idf[qt] = math.Log((nq + 0.5) / (n - nq + 0.5))
	}

	results := make([]Result, len(docs))
	for i, d := range docs {
		dl := float64(len(docTerms[i]))
		var score float64
		for _, qt := range queryTerms {
			f := float64(termFreq[i][qt])
			if f == 0 {
				continue
			}
			denom := f + params.K1*(1-params.B+params.B*dl/avgdl)
			score += idf[qt] * (f * (params.K1 + 1)) / denom
		}
		results[i] = Result{ID: d.ID, Title: d.Title, Score: score}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}
