package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/mkravets/omnibot/internal/bus"
	"github.com/mkravets/omnibot/internal/constants"
	"github.com/mkravets/omnibot/internal/llm"
	"github.com/mkravets/omnibot/internal/logger"
	"github.com/mkravets/omnibot/internal/tools"
)

// runnerQueueSize bounds how many inbound messages may wait behind an
// in-flight run for the same session key.
const runnerQueueSize = 16

// runner serializes runs for one session key. Messages wait in its queue;
// at most one run is in flight at a time.
type runner struct {
	key     string
	channel string
	chatID  string
	exec    *Executor
	tools   *tools.Registry
	queue   chan bus.InboundMessage

	mu        sync.Mutex
	cancelRun context.CancelFunc
}

func newRunner(e *Executor, key, channel, chatID string, reg *tools.Registry) *runner {
	return &runner{
		key:     key,
		channel: channel,
		chatID:  chatID,
		exec:    e,
		tools:   reg,
		queue:   make(chan bus.InboundMessage, runnerQueueSize),
	}
}

// enqueue adds a message to the runner's queue. Returns false if the queue
// is full.
func (r *runner) enqueue(msg bus.InboundMessage) bool {
	select {
	case r.queue <- msg:
		return true
	default:
		return false
	}
}

// cancelInFlight cancels the current run, if any. Callers hold the
// executor's lock; the runner's own lock orders this against run start.
func (r *runner) cancelInFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelRun == nil {
		return false
	}
	r.cancelRun()
	r.cancelRun = nil
	return true
}

// loop consumes the queue until the executor shuts down.
func (r *runner) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			r.runOne(ctx, msg)
		}
	}
}

// runOne executes a single run under a cancellable context.
func (r *runner) runOne(ctx context.Context, msg bus.InboundMessage) {
	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.cancelRun = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.cancelRun = nil
		r.mu.Unlock()
		cancel()
	}()

	r.exec.cfg.Metrics.RunStarted(r.channel)
	err := r.exec.processTurn(runCtx, msg, r.tools)

	switch {
	case runCtx.Err() != nil && ctx.Err() == nil:
		// Cancelled by a disconnect or fatal channel error. No outbound;
		// leave a marker so later context reflects the incomplete turn.
		r.exec.cfg.Metrics.RunCancelled(r.channel)
		if err := r.exec.cfg.Sessions.AppendTurn(r.key, llm.RoleAssistant, constants.MsgTurnCancelled); err != nil {
			r.exec.logger.Error("failed to append cancellation marker", err,
				logger.Field{Key: "session_key", Value: r.key})
		}
	case err != nil:
		r.exec.cfg.Metrics.RunFailed(r.channel)
		r.exec.logger.Error("run failed", err,
			logger.Field{Key: "session_key", Value: r.key})
	default:
		r.exec.cfg.Metrics.RunCompleted(r.channel)
	}
}

// processTurn is the run state machine: append the user turn, then
// alternate provider calls and tool executions until the model produces
// final content or the iteration bound is hit.
func (e *Executor) processTurn(ctx context.Context, msg bus.InboundMessage, reg *tools.Registry) error {
	key := msg.SessionKey()

	// Revive or create the session: it may have been archived by the idle
	// sweep since the last run for this key.
	if _, err := e.cfg.Sessions.GetOrCreate(key); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	if err := e.cfg.Sessions.AppendTurn(key, llm.RoleUser, msg.Content); err != nil {
		return fmt.Errorf("failed to append user turn: %w", err)
	}

	for iteration := 0; iteration < e.cfg.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		req, err := e.buildRequest(key, reg)
		if err != nil {
			return err
		}

		resp, err := e.callProvider(ctx, req)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Retries exhausted or a non-retryable failure. The user gets
			// the fixed apology, never the raw error.
			e.logger.Error("provider call failed", err,
				logger.Field{Key: "session_key", Value: key},
				logger.Field{Key: "iteration", Value: iteration})
			e.publishErrorEvent(msg, fmt.Sprintf("provider failure: %v", err))
			e.publishOutbound(msg, constants.MsgProviderApology)
			return nil
		}

		if resp.FinishReason == llm.FinishReasonToolCalls && len(resp.ToolCalls) > 0 {
			if resp.Content != "" {
				if err := e.cfg.Sessions.AppendTurn(key, llm.RoleAssistant, resp.Content); err != nil {
					return fmt.Errorf("failed to append assistant turn: %w", err)
				}
			}

			results := e.executeToolCalls(ctx, reg, resp.ToolCalls)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			for _, call := range resp.ToolCalls {
				if err := e.cfg.Sessions.AppendToolResult(key, call.ID, results[call.ID]); err != nil {
					return fmt.Errorf("failed to append tool result: %w", err)
				}
			}
			continue
		}

		if err := e.cfg.Sessions.AppendTurn(key, llm.RoleAssistant, resp.Content); err != nil {
			return fmt.Errorf("failed to append assistant turn: %w", err)
		}
		e.publishOutbound(msg, resp.Content)
		return nil
	}

	// Iteration bound hit before the model produced final content.
	e.logger.Warn("tool loop iteration bound reached",
		logger.Field{Key: "session_key", Value: key},
		logger.Field{Key: "max_iterations", Value: e.cfg.MaxIterations})
	if err := e.cfg.Sessions.AppendTurn(key, llm.RoleAssistant, constants.MsgToolLoopFallback); err != nil {
		return fmt.Errorf("failed to append fallback turn: %w", err)
	}
	e.publishOutbound(msg, constants.MsgToolLoopFallback)
	return nil
}

// buildRequest assembles the provider request from session context, the
// configured system prompt, and the tool definitions.
func (e *Executor) buildRequest(key string, reg *tools.Registry) (llm.ChatRequest, error) {
	messages, err := e.cfg.Sessions.BuildContext(key, e.cfg.ContextBudget)
	if err != nil {
		return llm.ChatRequest{}, fmt.Errorf("failed to build context: %w", err)
	}

	if e.cfg.SystemPrompt != "" {
		messages = append([]llm.Message{{
			Role:    llm.RoleSystem,
			Content: e.cfg.SystemPrompt,
		}}, messages...)
	}

	req := llm.ChatRequest{
		Messages: messages,
		Model:    e.cfg.Model,
	}

	if e.cfg.Provider.SupportsToolCalling() {
		req.Tools = reg.Definitions()
	}

	return req, nil
}

// executeToolCalls runs all requested tools concurrently and returns one
// result per call, keyed by call id. A failed, unknown, or panicking tool
// yields an error-text result, never a crash.
func (e *Executor) executeToolCalls(ctx context.Context, reg *tools.Registry, calls []llm.ToolCall) map[string]string {
	results := make(map[string]string, len(calls))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, call := range calls {
		wg.Add(1)
		go func(call llm.ToolCall) {
			defer wg.Done()
			content := e.executeToolCall(ctx, reg, call)
			mu.Lock()
			results[call.ID] = content
			mu.Unlock()
		}(call)
	}

	wg.Wait()
	return results
}

func (e *Executor) executeToolCall(ctx context.Context, reg *tools.Registry, call llm.ToolCall) (content string) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("tool panicked", fmt.Errorf("%v", rec),
				logger.Field{Key: "tool_name", Value: call.Name},
				logger.Field{Key: "tool_call_id", Value: call.ID})
			e.cfg.Metrics.ToolExecuted(call.Name, false)
			content = fmt.Sprintf("Error: tool %s panicked", call.Name)
		}
	}()

	tool, ok := reg.Get(call.Name)
	if !ok {
		e.cfg.Metrics.ToolExecuted(call.Name, false)
		return fmt.Sprintf("Error: unknown tool: %s", call.Name)
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout)
	defer cancel()

	e.logger.Debug("executing tool",
		logger.Field{Key: "tool_name", Value: call.Name},
		logger.Field{Key: "tool_call_id", Value: call.ID})

	out, err := tool.Execute(toolCtx, call.Arguments)
	if err != nil {
		e.logger.Error("tool execution failed", err,
			logger.Field{Key: "tool_name", Value: call.Name},
			logger.Field{Key: "tool_call_id", Value: call.ID})
		e.cfg.Metrics.ToolExecuted(call.Name, false)
		return fmt.Sprintf("Error: %v", err)
	}

	e.cfg.Metrics.ToolExecuted(call.Name, true)
	return out
}
