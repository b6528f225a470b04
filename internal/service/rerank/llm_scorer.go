package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashwinyue/docqa/internal/service/llm"
	"github.com/kaptinlin/jsonrepair"
)

const (
	scorerSystemPrompt = `You are a relevance grader for a document search system.
Rate how well the passage answers the query on a scale from 0 to 10.
Respond with JSON only, in the form {"score": <number>}.`

	maxPassageRunes = 1500
)

// LLMScorer asks the chat model for a 0-10 relevance grade and normalizes it to [0,1].
type LLMScorer struct {
	completer llm.Completer
}

// NewLLMScorer 创建 LLM 打分器
func NewLLMScorer(completer llm.Completer) *LLMScorer {
	return &LLMScorer{completer: completer}
}

// Score 调用模型打分
func (s *LLMScorer) Score(ctx context.Context, query, text string) (float64, error) {
	passage := []rune(text)
	if len(passage) > maxPassageRunes {
		passage = passage[:maxPassageRunes]
	}
	user := fmt.Sprintf("Query: %s\n\nPassage:\n%s", query, string(passage))

	out, err := s.completer.Complete(ctx, scorerSystemPrompt, user,
		llm.WithTemperature(0),
		llm.WithMaxTokens(20),
	)
	if err != nil {
		return 0, err
	}
	return parseScore(out)
}

func parseScore(out string) (float64, error) {
	s := strings.TrimSpace(out)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	// 模型偶尔输出不规范的 JSON
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return 0, fmt.Errorf("failed to repair score json %q: %w", out, err)
	}

	var resp struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(repaired), &resp); err != nil {
		return 0, fmt.Errorf("failed to parse score %q: %w", out, err)
	}
	if resp.Score == nil {
		return 0, fmt.Errorf("score missing in %q", out)
	}

	score := *resp.Score
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score / 10, nil
}
