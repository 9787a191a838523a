package agent

import (
	"encoding/json"
	"log/slog"
	"strings"

	"askbot/internal/domain"
)

// Marker phrases of the tool-call protocol. The system prompt instructs
// the model to emit its reasoning, tool requests, and final answer in
// sections separated by these fixed phrases; the extractor and the prompt
// builder must agree on them.
const (
	toolSectionStart = "工具调用"
	toolSectionEnd   = "行动后思考"
	answerMarker     = "回答："
)

// Extractor scans free-form model output for tool-call requests.
// Extraction is best-effort: malformed candidates are dropped, never
// surfaced as errors. Dropped candidates are logged at debug level, or at
// warn level when surfaceNoise is set.
type Extractor struct {
	logger       *slog.Logger
	surfaceNoise bool
}

func NewExtractor(logger *slog.Logger, surfaceNoise bool) *Extractor {
	return &Extractor{logger: logger, surfaceNoise: surfaceNoise}
}

// Extract returns the tool calls requested in output, in order of
// appearance. Output without the tool-request marker yields nil.
func (e *Extractor) Extract(output string) []domain.ToolCall {
	start := strings.Index(output, toolSectionStart)
	if start < 0 {
		return nil
	}
	section := output[start+len(toolSectionStart):]
	if end := strings.Index(section, toolSectionEnd); end >= 0 {
		section = section[:end]
	}

	var calls []domain.ToolCall
	for {
		objStart := strings.IndexByte(section, '{')
		if objStart < 0 {
			break
		}
		objEnd := matchBrace(section, objStart)
		if objEnd < 0 {
			// Unbalanced brace; skip it so later valid objects still match.
			section = section[objStart+1:]
			continue
		}
		candidate := section[objStart:objEnd]
		section = section[objEnd:]

		call, ok := parseCall(candidate)
		if !ok {
			e.dropped(candidate)
			continue
		}
		calls = append(calls, call)
	}
	return calls
}

// FinalAnswer returns the final-answer segment of a model output: the
// text after the last answer marker, or the whole output when the marker
// is absent.
func FinalAnswer(output string) string {
	if i := strings.LastIndex(output, answerMarker); i >= 0 {
		return strings.TrimSpace(output[i+len(answerMarker):])
	}
	return strings.TrimSpace(output)
}

func (e *Extractor) dropped(candidate string) {
	if e.surfaceNoise {
		e.logger.Warn("dropped malformed tool call candidate", "candidate", candidate)
		return
	}
	e.logger.Debug("dropped malformed tool call candidate", "candidate", candidate)
}

// parseCall parses one JSON candidate into a tool call. A candidate must
// carry a non-empty "name"; a missing "input" defaults to an empty map.
func parseCall(candidate string) (domain.ToolCall, bool) {
	var raw struct {
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	}
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return domain.ToolCall{}, false
	}
	if raw.Name == "" {
		return domain.ToolCall{}, false
	}
	if raw.Input == nil {
		raw.Input = make(map[string]any)
	}
	return domain.ToolCall{Name: raw.Name, Input: raw.Input}, true
}

// matchBrace finds the end of the balanced JSON object opening at start,
// skipping braces inside string literals. Returns end+1, or -1 when the
// object never closes.
func matchBrace(s string, start int) int {
	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
