// Package query answers questions from a tenant's own documents.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/ashwinyue/docqa/internal/model"
	"github.com/ashwinyue/docqa/internal/repository"
	"github.com/ashwinyue/docqa/internal/service/embedding"
	"github.com/ashwinyue/docqa/internal/service/llm"
	"github.com/ashwinyue/docqa/internal/service/rerank"
	"github.com/ashwinyue/docqa/internal/service/vectorstore"
)

const (
	// DefaultTopK 默认返回的来源数
	DefaultTopK = 5
	// MinRerankCandidates 少于该数量不重排
	MinRerankCandidates = 3

	maxRerankPool     = 20
	rerankPoolFactor  = 4
	confidenceWindow  = 3
	sourcePreviewLen  = 150
	contextDelimiter  = "\n\n---\n\n"
	answerTemperature = 0.3
	answerMaxTokens   = 500

	// NoResultsAnswer 检索不到任何片段时的固定回答
	NoResultsAnswer = "I couldn't find any relevant information in your documents to answer this question."

	errorAnswerPrefix = "An error occurred while processing your query: "
)

const systemPrompt = `You are a helpful AI assistant that answers questions based on the provided document context.

Rules:
1. ONLY use information from the provided context
2. If the context doesn't contain enough information to answer, say "I don't have enough information in the documents to answer that question."
3. Be concise and accurate
4. If you reference specific information, mention which document or section it came from
5. Use a professional but friendly tone`

// ErrEmptyQuestion 问题为空
var ErrEmptyQuestion = errors.New("question is empty")

// Request 查询请求
type Request struct {
	TenantID     string
	Question     string
	DocumentIDs  []string
	TopK         int
	UseReranking bool
}

// Result 查询结果
type Result struct {
	Query      string         `json:"query"`
	Answer     string         `json:"answer"`
	Sources    []model.Source `json:"sources"`
	Confidence float64        `json:"confidence"`
	Reranked   bool           `json:"reranked"`
	// RerankSkipped is set when reranking was requested but did not run.
	RerankSkipped bool  `json:"rerank_skipped"`
	LatencyMs     int64 `json:"response_time_ms"`
}

// Engine RAG 查询引擎
type Engine struct {
	embedder    embedding.Provider
	vectors     vectorstore.Store
	scorer      rerank.Scorer
	completer   llm.Completer
	chunks      repository.DocumentStore
	stats       repository.StatsStore
	defaultTopK int
	log         *logger.Logger
}

// NewEngine scorer 可为 nil，表示没有重排能力
func NewEngine(
	embedder embedding.Provider,
	vectors vectorstore.Store,
	scorer rerank.Scorer,
	completer llm.Completer,
	chunks repository.DocumentStore,
	stats repository.StatsStore,
	defaultTopK int,
	log *logger.Logger,
) *Engine {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Engine{
		embedder:    embedder,
		vectors:     vectors,
		scorer:      scorer,
		completer:   completer,
		chunks:      chunks,
		stats:       stats,
		defaultTopK: defaultTopK,
		log:         log.With("component", "QueryEngine"),
	}
}

// Answer never returns an error: failures degrade into an in-band answer.
func (e *Engine) Answer(ctx context.Context, req Request) *Result {
	start := time.Now()
	res, err := e.answer(ctx, req)
	if err != nil {
		e.log.Error("query failed", "tenant_id", req.TenantID, "error", err)
		res = &Result{
			Query:   req.Question,
			Answer:  errorAnswerPrefix + err.Error(),
			Sources: []model.Source{},
		}
	}
	res.LatencyMs = time.Since(start).Milliseconds()
	return res
}

func (e *Engine) answer(ctx context.Context, req Request) (*Result, error) {
	filter := vectorstore.Filter{TenantID: req.TenantID, DocumentIDs: req.DocumentIDs}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	topK := req.TopK
	if topK <= 0 {
		topK = e.defaultTopK
	}
	canRerank := req.UseReranking && e.scorer != nil
	pool := topK
	if canRerank {
		pool = topK * rerankPoolFactor
		if pool > maxRerankPool {
			pool = maxRerankPool
		}
	}

	vector, err := e.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	matches, err := e.vectors.Query(ctx, vector, pool, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	if len(matches) == 0 {
		return &Result{
			Query:         req.Question,
			Answer:        NoResultsAnswer,
			Sources:       []model.Source{},
			RerankSkipped: req.UseReranking,
		}, nil
	}

	res := &Result{Query: req.Question}
	kept := matches
	if canRerank && len(matches) >= MinRerankCandidates {
		reordered, err := e.rerank(ctx, question, matches, topK)
		if err != nil {
			e.log.Warn("rerank failed, using similarity order", "tenant_id", req.TenantID, "error", err)
			kept = truncateMatches(matches, topK)
			res.RerankSkipped = true
		} else {
			kept = reordered
			res.Reranked = true
		}
	} else {
		kept = truncateMatches(matches, topK)
		if req.UseReranking {
			e.log.Debug("rerank skipped", "candidates", len(matches), "scorer", e.scorer != nil)
			res.RerankSkipped = true
		}
	}

	blocks := make([]string, 0, len(kept))
	res.Sources = make([]model.Source, 0, len(kept))
	for i, m := range kept {
		text := e.fullText(ctx, m)
		blocks = append(blocks, fmt.Sprintf("[Source %d: %s]\n%s", i+1, m.Metadata.Filename, text))
		res.Sources = append(res.Sources, model.Source{
			DocumentID: m.Metadata.DocumentID,
			Filename:   m.Metadata.Filename,
			ChunkIndex: m.Metadata.ChunkIndex,
			PageNumber: m.Metadata.PageNumber,
			Score:      m.Score,
			Preview:    preview(m.Metadata.Text),
		})
	}

	userPrompt := fmt.Sprintf(
		"Context from documents:\n\n%s\n\n---\n\nQuestion: %s\n\nPlease provide a clear and concise answer based on the context above.",
		strings.Join(blocks, contextDelimiter), question,
	)
	answer, err := e.completer.Complete(ctx, systemPrompt, userPrompt,
		llm.WithTemperature(answerTemperature),
		llm.WithMaxTokens(answerMaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	res.Answer = answer
	res.Confidence = confidence(kept)

	if err := e.stats.RecordQuery(ctx, req.TenantID, time.Now().UTC()); err != nil {
		e.log.Warn("failed to update query stats", "tenant_id", req.TenantID, "error", err)
	}
	return res, nil
}

// rerank scores the stored preview of each match and keeps topK.
// Similarity scores are carried through unchanged.
func (e *Engine) rerank(ctx context.Context, question string, matches []vectorstore.Match, topK int) ([]vectorstore.Match, error) {
	candidates := make([]rerank.Candidate, len(matches))
	for i, m := range matches {
		candidates[i] = rerank.Candidate{Text: m.Metadata.Text, Index: i}
	}
	ranked, err := rerank.Rerank(ctx, e.scorer, question, candidates, topK)
	if err != nil {
		return nil, err
	}
	out := make([]vectorstore.Match, len(ranked))
	for i, c := range ranked {
		out[i] = matches[c.Index]
	}
	return out, nil
}

// fullText 从关系库取完整分块文本，取不到时回退到预览
func (e *Engine) fullText(ctx context.Context, m vectorstore.Match) string {
	chunk, err := e.chunks.GetChunk(ctx, m.Metadata.DocumentID, m.Metadata.ChunkIndex)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			e.log.Warn("failed to load chunk text", "document_id", m.Metadata.DocumentID, "chunk_index", m.Metadata.ChunkIndex, "error", err)
		}
		return m.Metadata.Text
	}
	return chunk.Text
}

func truncateMatches(matches []vectorstore.Match, n int) []vectorstore.Match {
	if len(matches) > n {
		return matches[:n]
	}
	return matches
}

func confidence(kept []vectorstore.Match) float64 {
	n := len(kept)
	if n > confidenceWindow {
		n = confidenceWindow
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for _, m := range kept[:n] {
		sum += m.Score
	}
	return sum / float64(n)
}

func preview(text string) string {
	if utf8.RuneCountInString(text) > sourcePreviewLen {
		text = string([]rune(text)[:sourcePreviewLen])
	}
	return text + "..."
}
