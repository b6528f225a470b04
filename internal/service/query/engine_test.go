package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/ashwinyue/docqa/internal/model"
	"github.com/ashwinyue/docqa/internal/service/vectorstore"
	"github.com/ashwinyue/docqa/internal/testutil"
)

type scriptedStore struct {
	matches   []vectorstore.Match
	err       error
	lastTopK  int
	lastQuery vectorstore.Filter
}

func (s *scriptedStore) Upsert(ctx context.Context, records []vectorstore.Record) error { return nil }

func (s *scriptedStore) Query(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	s.lastTopK = topK
	s.lastQuery = filter
	if s.err != nil {
		return nil, s.err
	}
	if len(s.matches) > topK {
		return s.matches[:topK], nil
	}
	return s.matches, nil
}

func (s *scriptedStore) Delete(ctx context.Context, filter vectorstore.Filter) error { return nil }

func (s *scriptedStore) Stats(ctx context.Context) (*vectorstore.IndexStats, error) {
	return &vectorstore.IndexStats{}, nil
}

type textScorer struct {
	scores map[string]float64
	err    error
	calls  int
}

func (s *textScorer) Score(ctx context.Context, query, text string) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.scores[text], nil
}

func match(doc string, idx int, score float64, text string) vectorstore.Match {
	return vectorstore.Match{
		ID:    vectorstore.VectorID("t1", doc, idx),
		Score: score,
		Metadata: vectorstore.Metadata{
			TenantID:   "t1",
			DocumentID: doc,
			Filename:   doc + ".pdf",
			ChunkIndex: idx,
			Text:       text,
		},
	}
}

type engineFixture struct {
	store     *scriptedStore
	completer *testutil.FakeCompleter
	docs      *testutil.MemoryDocumentStore
	stats     *testutil.MemoryStatsStore
}

func newEngine(f *engineFixture, scorer *textScorer) *Engine {
	if f.completer == nil {
		f.completer = &testutil.FakeCompleter{Reply: "The answer."}
	}
	if f.docs == nil {
		f.docs = testutil.NewMemoryDocumentStore()
	}
	if f.stats == nil {
		f.stats = testutil.NewMemoryStatsStore()
	}
	var e *Engine
	if scorer != nil {
		e = NewEngine(testutil.NewFakeEmbedder(), f.store, scorer, f.completer, f.docs, f.stats, 0, logger.Nop())
	} else {
		e = NewEngine(testutil.NewFakeEmbedder(), f.store, nil, f.completer, f.docs, f.stats, 0, logger.Nop())
	}
	return e
}

func TestAnswer_NoMatches(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	f := &engineFixture{store: &scriptedStore{}}
	e := newEngine(f, nil)

	res := e.Answer(context.Background(), Request{TenantID: "t1", Question: "anything?"})
	assert.Equal(NoResultsAnswer, res.Answer)
	assert.Equal(0.0, res.Confidence)
	assert.Len(len(res.Sources), 0)
	assert.False(res.Reranked)
	assert.Equal(0, f.completer.CallCount(), "no synthesis on empty context")
	assert.Equal(5, f.store.lastTopK)
}

func TestAnswer_PoolSize(t *testing.T) {
	tests := []struct {
		name      string
		topK      int
		rerank    bool
		hasScorer bool
		wantPool  int
	}{
		{"default", 0, false, true, 5},
		{"rerank widens", 3, true, true, 12},
		{"rerank capped", 10, true, true, 20},
		{"no scorer", 4, true, false, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &engineFixture{store: &scriptedStore{}}
			var scorer *textScorer
			if tt.hasScorer {
				scorer = &textScorer{}
			}
			e := newEngine(f, scorer)
			e.Answer(context.Background(), Request{TenantID: "t1", Question: "q", TopK: tt.topK, UseReranking: tt.rerank})
			if f.store.lastTopK != tt.wantPool {
				t.Errorf("pool = %d, want %d", f.store.lastTopK, tt.wantPool)
			}
		})
	}
}

func TestAnswer_TooFewCandidatesSkipsRerank(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	scorer := &textScorer{}
	f := &engineFixture{store: &scriptedStore{matches: []vectorstore.Match{
		match("d1", 0, 0.9, "first"),
		match("d1", 1, 0.8, "second"),
	}}}
	e := newEngine(f, scorer)

	res := e.Answer(context.Background(), Request{TenantID: "t1", Question: "q", TopK: 5, UseReranking: true})
	assert.False(res.Reranked)
	assert.True(res.RerankSkipped)
	assert.Equal(0, scorer.calls)
	assert.Len(len(res.Sources), 2)
	assert.Equal(0, res.Sources[0].ChunkIndex)
}

func TestAnswer_RerankOrderAndConfidence(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	scorer := &textScorer{scores: map[string]float64{
		"alpha": 0.1, "beta": 0.9, "gamma": 0.5, "delta": 0.9,
	}}
	f := &engineFixture{store: &scriptedStore{matches: []vectorstore.Match{
		match("d1", 0, 0.95, "alpha"),
		match("d1", 1, 0.90, "beta"),
		match("d1", 2, 0.85, "gamma"),
		match("d1", 3, 0.80, "delta"),
	}}}
	e := newEngine(f, scorer)

	res := e.Answer(context.Background(), Request{TenantID: "t1", Question: "q", TopK: 3, UseReranking: true})
	assert.True(res.Reranked)
	assert.False(res.RerankSkipped)
	assert.Len(len(res.Sources), 3)

	// ties keep similarity order: beta before delta
	wantOrder := []int{1, 3, 2}
	for i, idx := range wantOrder {
		assert.Equal(idx, res.Sources[i].ChunkIndex)
	}
	// confidence averages similarity scores of the kept candidates
	want := (0.90 + 0.80 + 0.85) / 3
	assert.True(res.Confidence > want-1e-9 && res.Confidence < want+1e-9, res.Confidence)
	assert.Equal(0.90, res.Sources[0].Score)
}

func TestAnswer_RerankFailureFallsBack(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	scorer := &textScorer{err: errors.New("scorer down")}
	f := &engineFixture{store: &scriptedStore{matches: []vectorstore.Match{
		match("d1", 0, 0.9, "a"),
		match("d1", 1, 0.8, "b"),
		match("d1", 2, 0.7, "c"),
		match("d1", 3, 0.6, "d"),
	}}}
	e := newEngine(f, scorer)

	res := e.Answer(context.Background(), Request{TenantID: "t1", Question: "q", TopK: 2, UseReranking: true})
	assert.Equal("The answer.", res.Answer)
	assert.False(res.Reranked)
	assert.True(res.RerankSkipped)
	assert.Len(len(res.Sources), 2)
	assert.Equal(0, res.Sources[0].ChunkIndex)
	assert.Equal(1, res.Sources[1].ChunkIndex)
}

func TestAnswer_ContextUsesFullChunkText(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	ctx := context.Background()
	docs := testutil.NewMemoryDocumentStore()
	assert.NoError(docs.CreateChunks(ctx, []*model.DocumentChunk{
		{ID: "c0", DocumentID: "d1", ChunkIndex: 0, Text: "full text of chunk zero"},
	}))
	f := &engineFixture{
		docs: docs,
		store: &scriptedStore{matches: []vectorstore.Match{
			match("d1", 0, 0.9, "preview zero"),
			match("d1", 1, 0.8, "preview one"),
		}},
	}
	e := newEngine(f, nil)

	res := e.Answer(ctx, Request{TenantID: "t1", Question: "what?"})
	assert.Equal(1, f.completer.CallCount())

	call := f.completer.Calls[0]
	assert.Contains(call.System, "I don't have enough information in the documents to answer that question.")
	assert.Contains(call.User, "[Source 1: d1.pdf]\nfull text of chunk zero")
	assert.Contains(call.User, "\n\n---\n\n[Source 2: d1.pdf]\npreview one")
	assert.Contains(call.User, "Question: what?")
	assert.True(strings.HasPrefix(call.User, "Context from documents:\n\n"))

	assert.Equal("preview zero...", res.Sources[0].Preview)
	assert.True(res.Sources[0].PageNumber == nil)

	stats, _ := f.stats.GetStats(ctx, "t1")
	assert.Equal(1, stats.TotalQueries)
}

func TestAnswer_PreviewTruncated(t *testing.T) {
	long := strings.Repeat("p", 180)
	f := &engineFixture{store: &scriptedStore{matches: []vectorstore.Match{match("d1", 0, 0.5, long)}}}
	res := newEngine(f, nil).Answer(context.Background(), Request{TenantID: "t1", Question: "q"})
	if got := res.Sources[0].Preview; got != strings.Repeat("p", 150)+"..." {
		t.Errorf("preview length = %d", len(got))
	}
}

func TestAnswer_Errors(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		store     *scriptedStore
		completer *testutil.FakeCompleter
		wantIn    string
	}{
		{
			name:   "missing tenant",
			req:    Request{Question: "q"},
			store:  &scriptedStore{},
			wantIn: vectorstore.ErrTenantRequired.Error(),
		},
		{
			name:   "search failure",
			req:    Request{TenantID: "t1", Question: "q"},
			store:  &scriptedStore{err: errors.New("index offline")},
			wantIn: "index offline",
		},
		{
			name:      "synthesis failure",
			req:       Request{TenantID: "t1", Question: "q"},
			store:     &scriptedStore{matches: []vectorstore.Match{match("d1", 0, 0.5, "x")}},
			completer: &testutil.FakeCompleter{Err: errors.New("model overloaded")},
			wantIn:    "model overloaded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &engineFixture{store: tt.store, completer: tt.completer}
			res := newEngine(f, nil).Answer(context.Background(), tt.req)
			if !strings.HasPrefix(res.Answer, "An error occurred while processing your query: ") {
				t.Errorf("answer = %q", res.Answer)
			}
			if !strings.Contains(res.Answer, tt.wantIn) {
				t.Errorf("answer %q does not mention %q", res.Answer, tt.wantIn)
			}
			if len(res.Sources) != 0 || res.Confidence != 0 {
				t.Errorf("expected no sources and zero confidence, got %+v", res)
			}
		})
	}
}

func TestAnswer_StatsFailureIsIgnored(t *testing.T) {
	stats := testutil.NewMemoryStatsStore()
	stats.RecordQueryErr = errors.New("db locked")
	f := &engineFixture{stats: stats, store: &scriptedStore{matches: []vectorstore.Match{match("d1", 0, 0.5, "x")}}}

	res := newEngine(f, nil).Answer(context.Background(), Request{TenantID: "t1", Question: "q"})
	if res.Answer != "The answer." {
		t.Errorf("answer = %q", res.Answer)
	}
}

func TestAnswer_PassesTenantAndDocumentFilter(t *testing.T) {
	f := &engineFixture{store: &scriptedStore{}}
	newEngine(f, nil).Answer(context.Background(), Request{TenantID: "t1", Question: "q", DocumentIDs: []string{"d1", "d2"}})
	if f.store.lastQuery.TenantID != "t1" || len(f.store.lastQuery.DocumentIDs) != 2 {
		t.Errorf("filter = %+v", f.store.lastQuery)
	}
}
