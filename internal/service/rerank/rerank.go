// Package rerank 提供重排序服务
package rerank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ashwinyue/docqa/internal/config"
	"github.com/ashwinyue/docqa/internal/service/llm"
)

// Scorer scores one (query, text) pair. Higher is more relevant.
type Scorer interface {
	Score(ctx context.Context, query, text string) (float64, error)
}

// Candidate 待重排的候选
type Candidate struct {
	Text  string
	Score float64
	Index int
}

// Rerank scores every candidate, sorts by score descending and keeps topK.
// Ties keep the incoming order. Any scorer error aborts the whole rerank.
func Rerank(ctx context.Context, scorer Scorer, query string, candidates []Candidate, topK int) ([]Candidate, error) {
	if scorer == nil {
		return nil, errors.New("scorer is nil")
	}
	scored := make([]Candidate, len(candidates))
	for i, c := range candidates {
		score, err := scorer.Score(ctx, query, c.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to score candidate %d: %w", i, err)
		}
		c.Score = score
		scored[i] = c
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// New 按 ai.rerank.provider 创建 Scorer，none 时返回 nil
func New(cfg *config.RerankConfig, completer llm.Completer) (Scorer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "lexical":
		return NewLexicalScorer(), nil
	case "llm":
		if completer == nil {
			return nil, errors.New("llm reranker requires a chat model")
		}
		return NewLLMScorer(completer), nil
	default:
		return nil, fmt.Errorf("unsupported rerank provider: %s", cfg.Provider)
	}
}

// ========== 词重叠打分 ==========

// LexicalScorer scores by the share of query terms found in the text.
type LexicalScorer struct{}

// NewLexicalScorer 创建词重叠打分器
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score 返回 [0,1]
func (s *LexicalScorer) Score(ctx context.Context, query, text string) (float64, error) {
	queryWords := extractWords(query)
	if len(queryWords) == 0 {
		return 0, nil
	}
	textWords := extractWords(text)
	if len(textWords) == 0 {
		return 0, nil
	}

	hit := 0
	for word := range queryWords {
		if textWords[word] {
			hit++
		}
	}
	coverage := float64(hit) / float64(len(queryWords))

	// 覆盖率为主，Jaccard 区分同覆盖率的候选
	return 0.8*coverage + 0.2*jaccard(queryWords, textWords), nil
}

func jaccard(a, b map[string]bool) float64 {
	intersection := 0
	for word := range a {
		if b[word] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func extractWords(s string) map[string]bool {
	words := make(map[string]bool)
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words[current.String()] = true
			current.Reset()
		}
	}
	for _, ch := range strings.ToLower(s) {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			current.WriteRune(ch)
		} else {
			flush()
		}
	}
	flush()
	return words
}
