package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/ashwinyue/docqa/internal/config"
	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type mockChatModel struct {
	reply    string
	err      error
	messages []*schema.Message
	opts     *einomodel.Options
}

func (m *mockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	m.messages = input
	m.opts = einomodel.GetCommonOptions(nil, opts...)
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *mockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestChatCompleter_Complete(t *testing.T) {
	m := &mockChatModel{reply: "  answer  "}
	c := NewCompleter(m)

	got, err := c.Complete(context.Background(), "sys", "user", WithTemperature(0.3), WithMaxTokens(15))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "answer" {
		t.Errorf("Complete() = %q, want %q", got, "answer")
	}
	if len(m.messages) != 2 || m.messages[0].Role != schema.System || m.messages[1].Role != schema.User {
		t.Errorf("unexpected messages: %+v", m.messages)
	}
	if m.opts.Temperature == nil || *m.opts.Temperature != 0.3 {
		t.Errorf("temperature option not forwarded")
	}
	if m.opts.MaxTokens == nil || *m.opts.MaxTokens != 15 {
		t.Errorf("max tokens option not forwarded")
	}
}

func TestChatCompleter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		model   *mockChatModel
		wantErr error
	}{
		{"empty reply", &mockChatModel{reply: "   "}, ErrEmptyCompletion},
		{"provider error", &mockChatModel{err: errors.New("boom")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCompleter(tt.model).Complete(context.Background(), "", "hi")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewChatModel_Validation(t *testing.T) {
	if _, err := NewChatModel(context.Background(), &config.AIConfig{Provider: "unknown"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewChatModel(context.Background(), &config.AIConfig{Provider: "openai"}); err == nil {
		t.Error("expected error for missing api key")
	}
}

// callbackModel reports through eino callbacks the way provider models do
type callbackModel struct {
	mockChatModel
}

func (m *callbackModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	ctx = callbacks.OnStart(ctx, &einomodel.CallbackInput{Messages: input})
	msg, err := m.mockChatModel.Generate(ctx, input, opts...)
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, err
	}
	callbacks.OnEnd(ctx, &einomodel.CallbackOutput{
		Message:    msg,
		TokenUsage: &einomodel.TokenUsage{PromptTokens: 12, CompletionTokens: 3},
	})
	return msg, nil
}

type recordingHandler struct {
	CallLogger
	events []string
	usage  *einomodel.TokenUsage
}

func (h *recordingHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	h.events = append(h.events, "start:"+info.Name)
	return ctx
}

func (h *recordingHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	h.events = append(h.events, "end")
	if out := einomodel.ConvCallbackOutput(output); out != nil {
		h.usage = out.TokenUsage
	}
	return ctx
}

func (h *recordingHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	h.events = append(h.events, "error")
	return ctx
}

func TestChatCompleter_Callbacks(t *testing.T) {
	h := &recordingHandler{}
	c := NewCompleter(&callbackModel{mockChatModel{reply: "ok"}}, h, NewCallLogger(logger.Nop(), true))

	if _, err := c.Complete(context.Background(), "", "hi"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(h.events) != 2 || h.events[0] != "start:Completer" || h.events[1] != "end" {
		t.Errorf("events = %v", h.events)
	}
	if h.usage == nil || h.usage.PromptTokens != 12 {
		t.Errorf("token usage not delivered: %+v", h.usage)
	}

	h.events = nil
	failing := NewCompleter(&callbackModel{mockChatModel{err: errors.New("boom")}}, h)
	if _, err := failing.Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error")
	}
	if len(h.events) != 2 || h.events[1] != "error" {
		t.Errorf("events = %v", h.events)
	}
}
