package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"askbot/internal/domain"
	"askbot/internal/tool"
)

// scriptedProvider replays a fixed sequence of outputs, repeating the
// last one when the script runs out.
type scriptedProvider struct {
	outputs []string
	calls   int
	lastMsg []domain.Message
	err     error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Healthy(ctx context.Context) error { return nil }

func (p *scriptedProvider) Generate(ctx context.Context, messages []domain.Message) (string, error) {
	p.lastMsg = messages
	if p.err != nil {
		return "", p.err
	}
	idx := p.calls
	if idx >= len(p.outputs) {
		idx = len(p.outputs) - 1
	}
	p.calls++
	return p.outputs[idx], nil
}

func newTestLoop(t *testing.T, prov domain.Provider, maxGen int, tools ...domain.Tool) *Loop {
	t.Helper()
	logger := slog.Default()
	reg := tool.NewRegistry(logger)
	for _, tl := range tools {
		reg.Register(tl)
	}
	return NewLoop(LoopConfig{
		Provider:       prov,
		Dispatcher:     NewDispatcher(reg, logger, 2),
		Prompt:         NewPromptBuilder(reg),
		Extractor:      NewExtractor(logger, false),
		Logger:         logger,
		MaxGenerations: maxGen,
	})
}

func TestLoop_DirectAnswer(t *testing.T) {
	prov := &scriptedProvider{outputs: []string{"思考：无需工具。\n回答：答案是42。"}}
	loop := newTestLoop(t, prov, 5)

	answer, err := loop.Run(context.Background(), "什么是42?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Answer != "答案是42。" {
		t.Fatalf("got %q", answer.Answer)
	}
	if prov.calls != 1 {
		t.Fatalf("expected exactly 1 generation, got %d", prov.calls)
	}
	if answer.Truncated {
		t.Fatal("direct answer must not be truncated")
	}
	if len(answer.ToolCalls) != 0 || len(answer.ToolResults) != 0 {
		t.Fatalf("expected empty tool slices, got %v / %v", answer.ToolCalls, answer.ToolResults)
	}
}

func TestLoop_ToolRoundtrip(t *testing.T) {
	clock := &fakeTool{
		name: "clock",
		execute: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			return map[string]any{"now": "12:00"}, nil
		},
	}
	prov := &scriptedProvider{outputs: []string{
		"工具调用：\n{\"name\": \"clock\", \"input\": {}}\n行动后思考：等待",
		"回答：现在是12:00。",
	}}
	loop := newTestLoop(t, prov, 5, clock)

	answer, err := loop.Run(context.Background(), "现在几点?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Answer != "现在是12:00。" {
		t.Fatalf("got %q", answer.Answer)
	}
	if len(answer.ToolCalls) != 1 || answer.ToolCalls[0].Name != "clock" {
		t.Fatalf("tool calls not recorded: %v", answer.ToolCalls)
	}
	if len(answer.ToolResults) != 1 || answer.ToolResults[0].Output["now"] != "12:00" {
		t.Fatalf("tool results not recorded: %v", answer.ToolResults)
	}

	// Second generation must see the tool result rendered in the prompt.
	var sawResult bool
	for _, m := range prov.lastMsg {
		if strings.Contains(m.Content, "12:00") && strings.Contains(m.Content, "工具执行结果") {
			sawResult = true
		}
	}
	if !sawResult {
		t.Fatal("tool result was not fed back to the model")
	}
}

func TestLoop_ToolFailureFedBack(t *testing.T) {
	broken := &fakeTool{
		name: "broken",
		execute: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			return nil, fmt.Errorf("no signal")
		},
	}
	prov := &scriptedProvider{outputs: []string{
		"工具调用：\n{\"name\": \"broken\", \"input\": {}}",
		"回答：工具不可用。",
	}}
	loop := newTestLoop(t, prov, 5, broken)

	answer, err := loop.Run(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("tool failure must not abort the loop: %v", err)
	}
	if !answer.ToolResults[0].Failed() {
		t.Fatal("expected a failure result")
	}

	var sawFailure bool
	for _, m := range prov.lastMsg {
		if strings.Contains(m.Content, "执行失败") && strings.Contains(m.Content, "no signal") {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatal("failure notice was not fed back to the model")
	}
}

func TestLoop_BudgetTruncation(t *testing.T) {
	noop := &fakeTool{
		name: "noop",
		execute: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		},
	}
	// The model keeps requesting tools forever.
	prov := &scriptedProvider{outputs: []string{
		"还不确定。工具调用：\n{\"name\": \"noop\", \"input\": {}}",
	}}
	loop := newTestLoop(t, prov, 3, noop)

	answer, err := loop.Run(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("budget exhaustion must not be an error: %v", err)
	}
	if !answer.Truncated {
		t.Fatal("expected truncated answer")
	}
	if prov.calls != 3 {
		t.Fatalf("expected exactly 3 generations, got %d", prov.calls)
	}
	if len(answer.ToolCalls) != 3 {
		t.Fatalf("expected 3 recorded tool calls, got %d", len(answer.ToolCalls))
	}
}

func TestLoop_ModelErrorFatal(t *testing.T) {
	prov := &scriptedProvider{err: fmt.Errorf("connection refused")}
	loop := newTestLoop(t, prov, 5)

	_, err := loop.Run(context.Background(), "q", nil)
	if err == nil {
		t.Fatal("model invocation failure must abort the request")
	}
	var me *domain.ModelError
	if !errors.As(err, &me) {
		t.Fatalf("expected *domain.ModelError, got %T", err)
	}
	if me.Provider != "scripted" {
		t.Fatalf("error must name the provider, got %q", me.Provider)
	}
}

func TestLoop_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prov := &scriptedProvider{outputs: []string{"回答：不会到达。"}}
	loop := newTestLoop(t, prov, 5)

	_, err := loop.Run(ctx, "q", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if prov.calls != 0 {
		t.Fatal("cancelled request must not invoke the model")
	}
}

func TestLoop_HistoryIncluded(t *testing.T) {
	prov := &scriptedProvider{outputs: []string{"回答：好的。"}}
	loop := newTestLoop(t, prov, 5)

	history := []domain.Message{
		{Role: domain.RoleUser, Content: "之前的问题"},
		{Role: domain.RoleAssistant, Content: "之前的回答"},
	}
	if _, err := loop.Run(context.Background(), "新问题", history); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawHistory bool
	for _, m := range prov.lastMsg {
		if m.Content == "之前的回答" {
			sawHistory = true
		}
	}
	if !sawHistory {
		t.Fatal("chat history was not included in the prompt")
	}
}
