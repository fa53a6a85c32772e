// Package agent implements the executor that turns inbound messages into
// model-driven replies. It subscribes to the message bus, keeps runs for
// different session keys fully concurrent while serializing runs within one
// key, and drives a bounded tool-call loop against the configured provider.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkravets/omnibot/internal/bus"
	"github.com/mkravets/omnibot/internal/constants"
	"github.com/mkravets/omnibot/internal/llm"
	"github.com/mkravets/omnibot/internal/logger"
	"github.com/mkravets/omnibot/internal/retry"
	"github.com/mkravets/omnibot/internal/session"
	"github.com/mkravets/omnibot/internal/tools"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = fmt.Errorf("executor already started")

// ToolFactory builds a tool bound to one conversation. Used for tools whose
// effect targets the conversation they run in, like reminders.
type ToolFactory func(channel, chatID string) tools.Tool

// Config holds executor configuration.
type Config struct {
	Provider llm.Provider
	Sessions *session.Manager
	Tools    *tools.Registry
	Bus      *bus.MessageBus
	Logger   *logger.Logger
	Metrics  *Metrics

	// ToolFactories contribute conversation-scoped tools on top of Tools.
	ToolFactories []ToolFactory

	Model         string
	SystemPrompt  string
	MaxIterations int
	ContextBudget int

	ProviderTimeout time.Duration
	ToolTimeout     time.Duration
	Retry           retry.Config
}

// Executor consumes inbound messages and lifecycle events from the bus and
// produces outbound replies.
type Executor struct {
	cfg    Config
	logger *logger.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	runners map[string]*runner
	wg      sync.WaitGroup

	inbound *bus.Subscription[bus.InboundMessage]
	events  *bus.Subscription[bus.Event]
}

// New creates an executor. The bus subscriptions are made in Start.
func New(cfg Config) (*Executor, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager cannot be nil")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("message bus cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	if cfg.Tools == nil {
		cfg.Tools = tools.NewRegistry()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = constants.DefaultMaxToolIterations
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = constants.DefaultContextBudget
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = constants.DefaultProviderTimeout
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = constants.DefaultToolTimeout
	}
	if cfg.Model == "" {
		cfg.Model = cfg.Provider.GetDefaultModel()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewTestMetrics()
	}

	return &Executor{
		cfg:     cfg,
		logger:  cfg.Logger,
		runners: make(map[string]*runner),
	}, nil
}

// Start subscribes to the bus and launches the dispatch loop.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.inbound = e.cfg.Bus.SubscribeInbound()
	e.events = e.cfg.Bus.SubscribeEvents()
	e.started = true

	e.wg.Add(1)
	go e.dispatch()

	e.logger.Info("agent executor started",
		logger.Field{Key: "model", Value: e.cfg.Model},
		logger.Field{Key: "max_iterations", Value: e.cfg.MaxIterations})
	return nil
}

// Stop cancels all in-flight runs and waits for the dispatch loop and
// runners to drain.
func (e *Executor) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	e.cancel()
	e.inbound.Close()
	e.events.Close()
	e.mu.Unlock()

	e.wg.Wait()

	e.logger.Info("agent executor stopped")
	return nil
}

// IsStarted reports whether the executor is running.
func (e *Executor) IsStarted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// dispatch routes bus traffic to per-key runners.
func (e *Executor) dispatch() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case msg, ok := <-e.inbound.C():
			if !ok {
				return
			}
			e.routeInbound(msg)
		case evt, ok := <-e.events.C():
			if !ok {
				return
			}
			e.handleEvent(evt)
		}
	}
}

func (e *Executor) routeInbound(msg bus.InboundMessage) {
	r := e.runnerFor(msg)
	if !r.enqueue(msg) {
		e.logger.Warn("runner queue full, dropping inbound message",
			logger.Field{Key: "session_key", Value: msg.SessionKey()})
	}
}

// runnerFor returns the runner owning msg's session key, creating and
// starting it on first use.
func (e *Executor) runnerFor(msg bus.InboundMessage) *runner {
	key := msg.SessionKey()

	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.runners[key]; ok {
		return r
	}

	r := newRunner(e, key, msg.Channel, msg.ChatID, e.toolsFor(msg.Channel, msg.ChatID))
	e.runners[key] = r

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		r.loop(e.ctx)
	}()

	return r
}

// handleEvent cancels in-flight runs bound to a channel that disconnected
// or failed fatally. An event without a chat id covers every chat on the
// channel.
func (e *Executor) handleEvent(evt bus.Event) {
	if evt.Kind != bus.EventDisconnect && !(evt.Kind == bus.EventError && evt.Fatal) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.runners {
		if r.channel != evt.Channel {
			continue
		}
		if evt.ChatID != "" && r.chatID != evt.ChatID {
			continue
		}
		if r.cancelInFlight() {
			e.logger.Info("cancelled in-flight run",
				logger.Field{Key: "session_key", Value: r.key},
				logger.Field{Key: "event", Value: string(evt.Kind)})
		}
	}
}

// toolsFor builds the registry for one conversation: the shared tools plus
// any conversation-scoped ones.
func (e *Executor) toolsFor(channel, chatID string) *tools.Registry {
	if len(e.cfg.ToolFactories) == 0 {
		return e.cfg.Tools
	}

	reg := e.cfg.Tools.Clone()
	for _, factory := range e.cfg.ToolFactories {
		if tool := factory(channel, chatID); tool != nil {
			if err := reg.Register(tool); err != nil {
				e.logger.Warn("failed to register scoped tool",
					logger.Field{Key: "error", Value: err.Error()})
			}
		}
	}
	return reg
}

func (e *Executor) publishOutbound(msg bus.InboundMessage, content string) {
	out := bus.NewOutboundMessage(msg.Channel, msg.ChatID, content)
	if err := e.cfg.Bus.PublishOutbound(out); err != nil {
		e.logger.Error("failed to publish outbound message", err,
			logger.Field{Key: "session_key", Value: msg.SessionKey()})
	}
}

func (e *Executor) publishErrorEvent(msg bus.InboundMessage, detail string) {
	evt := bus.NewEvent(bus.EventError, msg.Channel, msg.ChatID, detail)
	if err := e.cfg.Bus.PublishEvent(evt); err != nil {
		e.logger.Error("failed to publish error event", err,
			logger.Field{Key: "session_key", Value: msg.SessionKey()})
	}
}

// callProvider performs one provider call with timeout and retry on
// transient failures.
func (e *Executor) callProvider(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return retry.Do(ctx, e.cfg.Retry, llm.IsTransient, func() (*llm.ChatResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
		defer cancel()
		return e.cfg.Provider.Chat(callCtx, req)
	})
}
