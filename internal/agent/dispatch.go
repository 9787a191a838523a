package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"askbot/internal/domain"
	"askbot/internal/metrics"
	"askbot/internal/tool"
)

const defaultMaxParallelTools = 5

// Dispatcher executes a batch of tool calls against the registry and
// collects one result per call, in request order. A single call's failure
// never aborts the rest of the batch, and the dispatcher itself never
// returns an error: every outcome is folded into a ToolResult.
type Dispatcher struct {
	registry    *tool.Registry
	logger      *slog.Logger
	maxParallel int
}

func NewDispatcher(registry *tool.Registry, logger *slog.Logger, maxParallel int) *Dispatcher {
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallelTools
	}
	return &Dispatcher{
		registry:    registry,
		logger:      logger,
		maxParallel: maxParallel,
	}
}

// Dispatch runs the calls concurrently with bounded parallelism. Results
// are written by index, so output order always matches call order.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []domain.ToolCall) []domain.ToolResult {
	results := make([]domain.ToolResult, len(calls))
	sem := make(chan struct{}, d.maxParallel)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c domain.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = d.dispatchOne(ctx, c)
		}(i, call)
	}
	wg.Wait()
	return results
}

// dispatchOne executes a single call, converting every failure mode
// (unknown tool, schema violation, runtime error, panic) into a Failure
// result. No retry: the model sees the failure text and decides.
func (d *Dispatcher) dispatchOne(ctx context.Context, call domain.ToolCall) (res domain.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", call.Name, "panic", r)
			res = domain.Failure(call.Name, fmt.Sprintf("tool panicked: %v", r))
		}
	}()

	d.logger.Info("executing tool", "tool", call.Name)
	metrics.ToolExecutions.Inc()

	output, err := d.registry.Execute(ctx, call.Name, call.Input)
	if err != nil {
		metrics.ToolFailures.Inc()
		if errors.Is(err, domain.ErrToolNotFound) {
			d.logger.Warn("tool not found", "tool", call.Name, "available", d.registry.Names())
			return domain.Failure(call.Name, "tool not found")
		}
		d.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		return domain.Failure(call.Name, err.Error())
	}

	return domain.Success(call.Name, output)
}
