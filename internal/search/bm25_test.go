package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRankBM25OrdersByRelevance(t *testing.T) {
	docs := []Document{
		{ID: 0, Title: "cat dog"},
		{ID: 1, Title: "dog"},
		{ID: 2, Title: "cat cat"},
	}

	results := RankBM25("cat", docs, DefaultBM25Params)

	require.Len(t, results, 3)
	gotIDs := []uint32{results[0].ID, results[1].ID, results[2].ID}
	require.Equal(t, []uint32{2, 0, 1}, gotIDs)
	require.Zero(t, results[2].Score)
	require.Greater(t, results[0].Score, results[1].Score)
}

// TestRankBM25UpweightsCommonCandidateTerms pins down the direction of the
// candidate-only IDF: a term that recurs across most of the candidate set
// must score higher than one that appears in only a single candidate,
// the opposite of textbook BM25's rare-term-upweighting IDF.
func TestRankBM25UpweightsCommonCandidateTerms(t *testing.T) {
	docs := []Document{
		{ID: 0, Title: "common"},
		{ID: 1, Title: "common"},
		{ID: 2, Title: "common"},
		{ID: 3, Title: "common"},
		{ID: 4, Title: "rare"},
	}

	results := RankBM25("common rare", docs, DefaultBM25Params)
	require.Len(t, results, 5)

	byID := make(map[uint32]float64, len(results))
	for _, r := range results {
		byID[r.ID] = r.Score
	}

	require.Greater(t, byID[0], 0.0)
	require.Less(t, byID[4], 0.0)
	require.Greater(t, byID[0], byID[4])
}

func TestRankBM25EmptyQueryPreservesOrder(t *testing.T) {
	docs := []Document{{ID: 0, Title: "a"}, {ID: 1, Title: "b"}}
	results := RankBM25("   ", docs, DefaultBM25Params)
	require.Len(t, results, 2)
	require.Equal(t, uint32(0), results[0].ID)
	require.Equal(t, uint32(1), results[1].ID)
}

func TestRankBM25NoMatchesAllZero(t *testing.T) {
	docs := []Document{{ID: 0, Title: "apple"}, {ID: 1, Title: "banana"}}
	results := RankBM25("zzz", docs, DefaultBM25Params)
	require.Len(t, results, 2)
	for _, r := range results {
		require.Zero(t, r.Score)
	}
}

func TestTokenizeLowercasesAndSplitsOnPunctuation(t *testing.T) {
	require.Equal(t, []string{"new", "york", "city"}, tokenize("New-York, City!"))
}
