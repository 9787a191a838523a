package agent

import (
	"context"
	"log/slog"
	"time"

	"askbot/internal/domain"
	"askbot/internal/metrics"
)

const defaultMaxGenerations = 8

// loopState is the explicit state of the orchestration loop.
type loopState int

const (
	stateGenerating loopState = iota
	stateDispatching
	stateDone
)

// State is the per-request record threaded through every loop iteration.
// One State exists per inbound request; nothing in it is shared.
type State struct {
	// Question is immutable for the lifetime of one invocation.
	Question string
	// History holds prior turns supplied by the caller, read-only.
	History []domain.Message
	// Messages collects every prompt and response exchanged with the
	// model during this invocation, append-only.
	Messages []domain.Message
	// PendingToolCalls holds the calls requested by the most recent
	// model output; repopulated on each generation step.
	PendingToolCalls []domain.ToolCall
	// ToolResults holds the results of the most recently dispatched
	// batch; repopulated on each dispatch step.
	ToolResults []domain.ToolResult
}

// Answer is the outcome of one request: the final answer text plus every
// tool call made and its result, in dispatch order. Truncated is set when
// the generation budget forced termination.
type Answer struct {
	Answer      string              `json:"answer"`
	ToolCalls   []domain.ToolCall   `json:"tool_calls"`
	ToolResults []domain.ToolResult `json:"tool_results"`
	Truncated   bool                `json:"truncated,omitempty"`
}

// Loop is the orchestration state machine: it alternates model generation
// and tool dispatch until the model stops requesting tools or the
// generation budget runs out. One Loop serves all requests; each Run call
// owns its State and runs sequentially within itself.
type Loop struct {
	provider       domain.Provider
	dispatcher     *Dispatcher
	prompt         *PromptBuilder
	extractor      *Extractor
	logger         *slog.Logger
	maxGenerations int
}

// LoopConfig holds the collaborators and tuning parameters for the loop.
type LoopConfig struct {
	Provider       domain.Provider
	Dispatcher     *Dispatcher
	Prompt         *PromptBuilder
	Extractor      *Extractor
	Logger         *slog.Logger
	MaxGenerations int
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxGenerations <= 0 {
		cfg.MaxGenerations = defaultMaxGenerations
	}
	return &Loop{
		provider:       cfg.Provider,
		dispatcher:     cfg.Dispatcher,
		prompt:         cfg.Prompt,
		extractor:      cfg.Extractor,
		logger:         cfg.Logger,
		maxGenerations: cfg.MaxGenerations,
	}
}

// Run answers one question. The model call is invoked exactly once per
// generation step; tool failures are folded into state and fed back to
// the model, never raised. The only fatal errors are a failed model
// invocation and context cancellation.
func (l *Loop) Run(ctx context.Context, question string, history []domain.Message) (*Answer, error) {
	st := &State{Question: question, History: history}

	var (
		state       = stateGenerating
		generations int
		lastOutput  string
		truncated   bool
		allCalls    []domain.ToolCall
		allResults  []domain.ToolResult
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch state {
		case stateGenerating:
			if generations >= l.maxGenerations {
				l.logger.Warn("generation budget exceeded, truncating",
					"budget", l.maxGenerations, "question_len", len(question))
				metrics.LoopTruncations.Inc()
				truncated = true
				state = stateDone
				continue
			}
			generations++
			metrics.LoopGenerations.Inc()

			messages := l.prompt.BuildMessages(st)
			st.Messages = append(st.Messages, messages[len(messages)-1])

			start := time.Now()
			output, err := l.provider.Generate(ctx, messages)
			if err != nil {
				return nil, &domain.ModelError{Provider: l.provider.Name(), Err: err}
			}
			l.logger.Debug("model responded",
				"generation", generations,
				"latency_ms", time.Since(start).Milliseconds(),
				"output_len", len(output))

			st.Messages = append(st.Messages, domain.Message{Role: domain.RoleAssistant, Content: output})
			lastOutput = output

			st.PendingToolCalls = l.extractor.Extract(output)
			if len(st.PendingToolCalls) == 0 {
				state = stateDone
			} else {
				state = stateDispatching
			}

		case stateDispatching:
			results := l.dispatcher.Dispatch(ctx, st.PendingToolCalls)
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			allCalls = append(allCalls, st.PendingToolCalls...)
			allResults = append(allResults, results...)
			st.ToolResults = results
			st.PendingToolCalls = nil
			state = stateGenerating

		case stateDone:
			answer := &Answer{
				Answer:      FinalAnswer(lastOutput),
				ToolCalls:   allCalls,
				ToolResults: allResults,
				Truncated:   truncated,
			}
			if answer.ToolCalls == nil {
				answer.ToolCalls = []domain.ToolCall{}
			}
			if answer.ToolResults == nil {
				answer.ToolResults = []domain.ToolResult{}
			}
			l.logger.Info("request answered",
				"generations", generations,
				"tool_calls", len(answer.ToolCalls),
				"truncated", truncated)
			return answer, nil
		}
	}
}
