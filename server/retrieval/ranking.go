package retrieval

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// DefaultBoostKeywords are the self-referential terms that mark biographical statements.
var DefaultBoostKeywords = []string{
	"i", "me", "my", "mine", "myself",
	"family", "baby", "partner", "wife", "husband",
	"son", "daughter", "kid", "kids", "mom", "dad",
}

// Ranking holds the tuning constants of the ranking stage.
type Ranking struct {
	// CandidateLimit is the size of the candidate pool fetched from the vector store.
	CandidateLimit int
	// FinalThreshold is the quality floor applied after boosting.
	FinalThreshold float64
	// Boost is added to the similarity of candidates mentioning a boost keyword.
	Boost float64
	// BoostKeywords are matched case-insensitively on whole words.
	BoostKeywords []string
	// DedupRatio drops a candidate whose score is at least this fraction of an
	// accepted candidate's score. Zero disables deduplication.
	DedupRatio float64
	// ContextSize is the maximum number of returned items.
	ContextSize int
}

// DefaultRanking returns the production tuning.
func DefaultRanking() Ranking {
	return Ranking{
		CandidateLimit: 30,
		FinalThreshold: 0.7,
		Boost:          0.1,
		BoostKeywords:  DefaultBoostKeywords,
		DedupRatio:     0.95,
		ContextSize:    15,
	}
}

// Candidate is a vector match joined to its message.
type Candidate struct {
	MessageID  string
	AuthorID   string
	Content    string
	Similarity float64
	CreatedAt  time.Time
}

// ContextItem is one ranked message handed to the response generator.
type ContextItem struct {
	MessageID string    `json:"messageId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	// Similarity is the raw cosine similarity.
	Similarity float64 `json:"similarity"`
	// Score is the similarity after boosting.
	Score   float64 `json:"score"`
	Boosted bool    `json:"boosted,omitempty"`
	// Fallback marks recent messages used when nothing ranked.
	Fallback bool `json:"fallback,omitempty"`
}

// Rank boosts, filters, deduplicates and truncates candidates. The result is
// ordered by descending score, ties by message id. minSimilarity raises the
// quality floor above r.FinalThreshold when larger.
func Rank(candidates []*Candidate, minSimilarity float64, r Ranking) []*ContextItem {
	floor := max(r.FinalThreshold, minSimilarity)
	keywords := keywordSet(r.BoostKeywords)

	items := make([]*ContextItem, 0, len(candidates))
	for _, c := range candidates {
		item := &ContextItem{
			MessageID:  c.MessageID,
			AuthorID:   c.AuthorID,
			Content:    c.Content,
			CreatedAt:  c.CreatedAt,
			Similarity: c.Similarity,
			Score:      c.Similarity,
		}
		if r.Boost != 0 && mentionsAny(c.Content, keywords) {
			item.Score += r.Boost
			item.Boosted = true
		}
		if item.Score >= floor {
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].MessageID < items[j].MessageID
	})

	return truncate(dedupe(items, r.DedupRatio), r.ContextSize)
}

// dedupe walks items in descending score order and keeps an item only when
// it is outside the ratio band of every item kept before it.
func dedupe(items []*ContextItem, ratio float64) []*ContextItem {
	seen := make(map[string]bool, len(items))
	kept := make([]*ContextItem, 0, len(items))
	for _, item := range items {
		if seen[item.MessageID] {
			continue
		}
		if ratio > 0 && nearDuplicate(item, kept, ratio) {
			continue
		}
		seen[item.MessageID] = true
		kept = append(kept, item)
	}
	return kept
}

func nearDuplicate(item *ContextItem, kept []*ContextItem, ratio float64) bool {
	for _, a := range kept {
		if a.Score > 0 && item.Score/a.Score >= ratio {
			return true
		}
	}
	return false
}

func truncate(items []*ContextItem, limit int) []*ContextItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func keywordSet(keywords []string) map[string]bool {
	set := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			set[k] = true
		}
	}
	return set
}

func mentionsAny(content string, keywords map[string]bool) bool {
	if len(keywords) == 0 {
		return false
	}
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if keywords[w] {
			return true
		}
	}
	return false
}
