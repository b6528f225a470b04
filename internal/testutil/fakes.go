package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/ashwinyue/docqa/internal/service/llm"
)

// FakeEmbedder deterministic bag-of-words vectors, so texts sharing words are
// close under cosine similarity.
type FakeEmbedder struct {
	Dim   int
	Err   error
	Calls int
	mu    sync.Mutex
}

// NewFakeEmbedder 创建测试用嵌入器
func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{Dim: 32}
}

func (e *FakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *FakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.Calls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *FakeEmbedder) vector(text string) []float32 {
	v := make([]float32, e.Dim)
	// 保证非零向量
	v[0] = 0.01
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,!?;:")))
		v[int(h.Sum32()%uint32(e.Dim))] += 1
	}
	return v
}

// FakeCompleter 记录调用并返回预设回复
type FakeCompleter struct {
	mu    sync.Mutex
	Reply string
	Err   error
	Calls []CompleterCall
}

// CompleterCall 一次 Complete 调用的入参
type CompleterCall struct {
	System string
	User   string
}

func (c *FakeCompleter) Complete(ctx context.Context, system, user string, opts ...llm.Option) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, CompleterCall{System: system, User: user})
	if c.Err != nil {
		return "", c.Err
	}
	return c.Reply, nil
}

// CallCount 调用次数
func (c *FakeCompleter) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}
