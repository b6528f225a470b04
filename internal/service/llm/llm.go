// Package llm is the single-turn completion capability shared by answer
// synthesis, title inference and LLM reranking.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashwinyue/docqa/internal/config"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const dashscopeCompatibleURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// ErrEmptyCompletion 模型返回空内容
var ErrEmptyCompletion = errors.New("empty completion")

// Completer 单轮补全
type Completer interface {
	Complete(ctx context.Context, system, user string, opts ...Option) (string, error)
}

type options struct {
	temperature *float32
	maxTokens   *int
}

// Option 补全参数
type Option func(*options)

// WithTemperature 采样温度
func WithTemperature(t float32) Option {
	return func(o *options) { o.temperature = &t }
}

// WithMaxTokens 最大输出 token 数
func WithMaxTokens(n int) Option {
	return func(o *options) { o.maxTokens = &n }
}

// ChatCompleter Completer over an eino chat model.
type ChatCompleter struct {
	model    einomodel.BaseChatModel
	handlers []callbacks.Handler
}

// NewCompleter 包装 eino ChatModel，handlers 接收每次调用的回调
func NewCompleter(m einomodel.BaseChatModel, handlers ...callbacks.Handler) *ChatCompleter {
	return &ChatCompleter{model: m, handlers: handlers}
}

// Complete sends one system and one user message and returns the trimmed reply.
func (c *ChatCompleter) Complete(ctx context.Context, system, user string, opts ...Option) (string, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var callOpts []einomodel.Option
	if o.temperature != nil {
		callOpts = append(callOpts, einomodel.WithTemperature(*o.temperature))
	}
	if o.maxTokens != nil {
		callOpts = append(callOpts, einomodel.WithMaxTokens(*o.maxTokens))
	}

	messages := make([]*schema.Message, 0, 2)
	if system != "" {
		messages = append(messages, schema.SystemMessage(system))
	}
	messages = append(messages, schema.UserMessage(user))

	if len(c.handlers) > 0 {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
			Name:      "Completer",
			Type:      "ChatModel",
			Component: components.ComponentOfChatModel,
		}, c.handlers...)
	}

	resp, err := c.model.Generate(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Content), nil
}

// NewChatModel 按 ai.provider 创建 OpenAI 兼容的 ChatModel
func NewChatModel(ctx context.Context, aiCfg *config.AIConfig) (einomodel.BaseChatModel, error) {
	var apiKey, baseURL, modelName string
	var timeout int

	switch aiCfg.Provider {
	case "openai":
		apiKey = aiCfg.OpenAI.APIKey
		baseURL = aiCfg.OpenAI.BaseURL
		modelName = aiCfg.OpenAI.Model
		timeout = aiCfg.OpenAI.Timeout
	case "alibaba", "qwen", "dashscope":
		apiKey = aiCfg.Alibaba.AccessKeySecret
		baseURL = dashscopeCompatibleURL
		modelName = aiCfg.Alibaba.Model
		timeout = aiCfg.Alibaba.Timeout
	case "deepseek":
		apiKey = aiCfg.DeepSeek.APIKey
		baseURL = aiCfg.DeepSeek.BaseURL
		modelName = aiCfg.DeepSeek.Model
		timeout = aiCfg.DeepSeek.Timeout
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", aiCfg.Provider)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for provider: %s", aiCfg.Provider)
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	modelCfg := &openai.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   modelName,
	}
	if timeout > 0 {
		modelCfg.Timeout = time.Duration(timeout) * time.Second
	}
	return openai.NewChatModel(ctx, modelCfg)
}
