package agent

import (
	"log/slog"
	"testing"
)

func newTestExtractor() *Extractor {
	return NewExtractor(slog.Default(), false)
}

// --- Extract ---

func TestExtract_NoMarker(t *testing.T) {
	calls := newTestExtractor().Extract("我知道答案。\n回答：是42。")
	if calls != nil {
		t.Fatalf("expected nil for output without tool marker, got %v", calls)
	}
}

func TestExtract_SingleCall(t *testing.T) {
	output := `思考：需要搜索。
工具调用：
{"name": "search", "input": {"query": "golang context"}}
行动后思考：等待结果`
	calls := newTestExtractor().Extract(output)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "search" {
		t.Fatalf("expected 'search', got %q", calls[0].Name)
	}
	if calls[0].Input["query"] != "golang context" {
		t.Fatalf("expected query, got %v", calls[0].Input)
	}
}

func TestExtract_MultipleCalls(t *testing.T) {
	output := `工具调用：
{"name": "search", "input": {"query": "a"}}
{"name": "zhihu_hot", "input": {"limit": 5}}
行动后思考：`
	calls := newTestExtractor().Extract(output)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Name != "search" || calls[1].Name != "zhihu_hot" {
		t.Fatalf("order not preserved: %v", calls)
	}
}

func TestExtract_DuplicateCallsKept(t *testing.T) {
	output := `工具调用：
{"name": "search", "input": {"query": "x"}}
{"name": "search", "input": {"query": "x"}}`
	calls := newTestExtractor().Extract(output)
	if len(calls) != 2 {
		t.Fatalf("identical requests must both survive, got %d", len(calls))
	}
}

func TestExtract_MalformedCandidateDropped(t *testing.T) {
	output := `工具调用：
{"name": search broken}
{"name": "search", "input": {"query": "ok"}}`
	calls := newTestExtractor().Extract(output)
	if len(calls) != 1 {
		t.Fatalf("expected the valid call to survive, got %d", len(calls))
	}
	if calls[0].Input["query"] != "ok" {
		t.Fatalf("wrong call survived: %v", calls[0])
	}
}

func TestExtract_UnbalancedBraceDropped(t *testing.T) {
	output := `工具调用：
{"name": "search", "input": {"query": "never closes"
后面还有文字 {"name": "zhihu_hot"}`
	calls := newTestExtractor().Extract(output)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call after the unbalanced candidate, got %d", len(calls))
	}
	if calls[0].Name != "zhihu_hot" {
		t.Fatalf("expected zhihu_hot, got %q", calls[0].Name)
	}
}

func TestExtract_MissingNameDropped(t *testing.T) {
	output := `工具调用：
{"input": {"query": "x"}}`
	calls := newTestExtractor().Extract(output)
	if len(calls) != 0 {
		t.Fatalf("candidate without name must be dropped, got %v", calls)
	}
}

func TestExtract_MissingInputDefaultsEmpty(t *testing.T) {
	output := `工具调用：
{"name": "zhihu_hot"}`
	calls := newTestExtractor().Extract(output)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Input == nil {
		t.Fatal("input should be initialized to empty map")
	}
	if len(calls[0].Input) != 0 {
		t.Fatalf("expected empty input, got %v", calls[0].Input)
	}
}

func TestExtract_NestedInputObject(t *testing.T) {
	output := `工具调用：
{"name": "search", "input": {"query": "x", "opts": {"deep": true}}}`
	calls := newTestExtractor().Extract(output)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call with nested input, got %d", len(calls))
	}
	opts, ok := calls[0].Input["opts"].(map[string]any)
	if !ok || opts["deep"] != true {
		t.Fatalf("nested object lost: %v", calls[0].Input)
	}
}

func TestExtract_BracesInsideStrings(t *testing.T) {
	output := `工具调用：
{"name": "search", "input": {"query": "json like {a: 1}"}}`
	calls := newTestExtractor().Extract(output)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Input["query"] != "json like {a: 1}" {
		t.Fatalf("string with braces mangled: %v", calls[0].Input)
	}
}

func TestExtract_IgnoresTextAfterEndMarker(t *testing.T) {
	output := `工具调用：
{"name": "search", "input": {"query": "x"}}
行动后思考：这里不算
{"name": "zhihu_hot"}`
	calls := newTestExtractor().Extract(output)
	if len(calls) != 1 {
		t.Fatalf("calls after the end marker must not be extracted, got %d", len(calls))
	}
}

// --- FinalAnswer ---

func TestFinalAnswer_WithMarker(t *testing.T) {
	out := FinalAnswer("思考：...\n回答：北京时间是UTC+8。")
	if out != "北京时间是UTC+8。" {
		t.Fatalf("got %q", out)
	}
}

func TestFinalAnswer_LastMarkerWins(t *testing.T) {
	out := FinalAnswer("回答：初版\n继续思考\n回答：终版")
	if out != "终版" {
		t.Fatalf("got %q", out)
	}
}

func TestFinalAnswer_NoMarker(t *testing.T) {
	out := FinalAnswer("  没有标记的完整输出  ")
	if out != "没有标记的完整输出" {
		t.Fatalf("got %q", out)
	}
}
