package llm

import (
	"context"
	"time"

	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type startKey struct{}

// CallLogger eino callbacks.Handler that logs model calls with latency and
// token usage.
type CallLogger struct {
	log   *logger.Logger
	debug bool
}

// NewCallLogger debug 为 true 时额外记录调用开始
func NewCallLogger(log *logger.Logger, debug bool) *CallLogger {
	return &CallLogger{log: log.With("component", "ChatModel"), debug: debug}
}

func (l *CallLogger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if l.debug {
		fields := []interface{}{"name", info.Name, "type", info.Type}
		if in := einomodel.ConvCallbackInput(input); in != nil {
			fields = append(fields, "messages", len(in.Messages))
		}
		l.log.Debug("model call start", fields...)
	}
	return context.WithValue(ctx, startKey{}, time.Now())
}

func (l *CallLogger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	fields := []interface{}{"name", info.Name, "type", info.Type, "latency", elapsed(ctx)}
	if out := einomodel.ConvCallbackOutput(output); out != nil && out.TokenUsage != nil {
		fields = append(fields,
			"prompt_tokens", out.TokenUsage.PromptTokens,
			"completion_tokens", out.TokenUsage.CompletionTokens,
		)
	}
	l.log.Info("model call", fields...)
	return ctx
}

func (l *CallLogger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	l.log.Warn("model call failed", "name", info.Name, "type", info.Type, "latency", elapsed(ctx), "error", err)
	return ctx
}

func (l *CallLogger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return context.WithValue(ctx, startKey{}, time.Now())
}

func (l *CallLogger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	l.log.Info("model stream", "name", info.Name, "type", info.Type, "latency", elapsed(ctx))
	return ctx
}

func elapsed(ctx context.Context) time.Duration {
	start, ok := ctx.Value(startKey{}).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start)
}

var _ callbacks.Handler = (*CallLogger)(nil)
