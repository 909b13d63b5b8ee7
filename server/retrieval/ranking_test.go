package retrieval

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(items []*ContextItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.MessageID
	}
	return out
}

func TestRank_BoostReordersPersonalFacts(t *testing.T) {
	ranking := DefaultRanking()
	ranking.BoostKeywords = []string{"baby"}

	items := Rank([]*Candidate{
		{MessageID: "msg1", Content: "I love my baby", Similarity: 0.72},
		{MessageID: "msg2", Content: "weather is nice", Similarity: 0.71},
	}, 0.7, ranking)

	require.Len(t, items, 2)
	assert.Equal(t, []string{"msg1", "msg2"}, ids(items))
	assert.InDelta(t, 0.82, items[0].Score, 1e-9)
	assert.True(t, items[0].Boosted)
	assert.InDelta(t, 0.72, items[0].Similarity, 1e-9)
	assert.InDelta(t, 0.71, items[1].Score, 1e-9)
	assert.False(t, items[1].Boosted)
}

func TestRank_QualityFloor(t *testing.T) {
	ranking := DefaultRanking()

	items := Rank([]*Candidate{
		{MessageID: "a", Content: "the train was late", Similarity: 0.69},
		{MessageID: "b", Content: "my train was late", Similarity: 0.61},
		{MessageID: "c", Content: "the bus was late", Similarity: 0.55},
	}, 0.5, ranking)
	// b is lifted to 0.71 by the boost, a and c stay below 0.7.
	assert.Equal(t, []string{"b"}, ids(items))

	// A caller threshold above the floor wins.
	items = Rank([]*Candidate{
		{MessageID: "a", Content: "x", Similarity: 0.75},
		{MessageID: "b", Content: "y", Similarity: 0.85},
	}, 0.8, ranking)
	assert.Equal(t, []string{"b"}, ids(items))
}

func TestRank_DedupBoundary(t *testing.T) {
	ranking := DefaultRanking()
	ranking.BoostKeywords = nil

	tests := []struct {
		name     string
		second   float64
		expected []string
	}{
		{name: "exactly at the ratio is dropped", second: 0.95, expected: []string{"top"}},
		{name: "just below the ratio is kept", second: 0.949, expected: []string{"top", "second"}},
		{name: "well outside the band is kept", second: 0.80, expected: []string{"top", "second"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := Rank([]*Candidate{
				{MessageID: "second", Content: "b", Similarity: tt.second},
				{MessageID: "top", Content: "a", Similarity: 1.0},
			}, 0, ranking)
			assert.Equal(t, tt.expected, ids(items))
		})
	}
}

func TestRank_DedupDisabled(t *testing.T) {
	ranking := DefaultRanking()
	ranking.DedupRatio = 0

	items := Rank([]*Candidate{
		{MessageID: "a", Content: "x", Similarity: 0.9},
		{MessageID: "b", Content: "y", Similarity: 0.9},
		{MessageID: "a", Content: "x", Similarity: 0.9},
	}, 0, ranking)
	assert.Equal(t, []string{"a", "b"}, ids(items))
}

func TestRank_TruncatesToContextSize(t *testing.T) {
	ranking := DefaultRanking()
	ranking.DedupRatio = 0
	ranking.ContextSize = 3

	var candidates []*Candidate
	for i := 0; i < 10; i++ {
		candidates = append(candidates, &Candidate{
			MessageID:  fmt.Sprintf("m%02d", i),
			Content:    "text",
			Similarity: 0.7 + float64(i)*0.01,
		})
	}
	items := Rank(candidates, 0, ranking)
	assert.Equal(t, []string{"m09", "m08", "m07"}, ids(items))
}

func TestRank_Deterministic(t *testing.T) {
	ranking := DefaultRanking()
	ranking.DedupRatio = 0
	candidates := []*Candidate{
		{MessageID: "c", Content: "my dog", Similarity: 0.8},
		{MessageID: "a", Content: "a dog", Similarity: 0.9},
		{MessageID: "b", Content: "my cat", Similarity: 0.8},
		{MessageID: "d", Content: "the cat", Similarity: 0.9},
	}

	first := ids(Rank(candidates, 0, ranking))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ids(Rank(candidates, 0, ranking)))
	}
	// Equal scores order by message id.
	assert.Equal(t, []string{"a", "b", "c", "d"}, first)
}

func TestMentionsAny(t *testing.T) {
	keywords := keywordSet([]string{"My", " baby ", "i"})

	tests := []struct {
		content  string
		expected bool
	}{
		{content: "MY house", expected: true},
		{content: "the baby, finally!", expected: true},
		{content: "I'm home", expected: true},
		{content: "mystery novel", expected: false},
		{content: "babysitter", expected: false},
		{content: "", expected: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, mentionsAny(tt.content, keywords), tt.content)
	}
	assert.False(t, mentionsAny("my", nil))
}
