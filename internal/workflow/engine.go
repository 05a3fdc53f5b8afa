package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// StepStatus is the outcome of one executed node.
type StepStatus string

const (
	StepStatusOK      StepStatus = "ok"
	StepStatusError   StepStatus = "error"
	StepStatusStopped StepStatus = "stopped"
)

const StopReasonEmptyTrigger = "empty-trigger"

// Handler executes the nodes of one provider.
type Handler interface {
	Execute(ctx context.Context, node Node, run *ExecutionContext) (Delta, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, node Node, run *ExecutionContext) (Delta, error)

func (f HandlerFunc) Execute(ctx context.Context, node Node, run *ExecutionContext) (Delta, error) {
	return f(ctx, node, run)
}

// Inspection is the side channel value recorded with every step result.
type Inspection struct {
	NodeID     string `json:"nodeId"`
	StepNumber int    `json:"stepNumber"`
	Config     Config `json:"config"`
}

// StepResult is one entry of the run log.
type StepResult struct {
	NodeID     string     `json:"nodeId"`
	Label      string     `json:"label"`
	StepNumber int        `json:"stepNumber"`
	Provider   Provider   `json:"provider"`
	Status     StepStatus `json:"status"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	DurationMs int64      `json:"durationMs"`
}

// RunSummary is what Execute returns: the last known values of the run
// context plus the step log.
type RunSummary struct {
	OK              bool         `json:"ok"`
	TriggerProvider *string      `json:"triggerProvider"`
	TriggerCount    int          `json:"triggerCount"`
	TriggerData     []Record     `json:"triggerData"`
	AIProvider      *string      `json:"aiProvider"`
	AIOutput        string       `json:"aiOutput"`
	SinkResult      any          `json:"sinkResult"`
	Steps           []StepResult `json:"steps"`
}

// Failed returns the first step that ended in error, if any.
func (s RunSummary) Failed() (StepResult, bool) {
	for _, step := range s.Steps {
		if step.Status == StepStatusError {
			return step, true
		}
	}
	return StepResult{}, false
}

// Stopped reports whether the run ended on an empty trigger.
func (s RunSummary) Stopped() bool {
	n := len(s.Steps)
	return n > 0 && s.Steps[n-1].Status == StepStatusStopped
}

// RunOptions tunes one execution.
type RunOptions struct {
	// StopIfEmptyTriggerProviders lists providers that end the run cleanly
	// when, as first step, they produce no trigger data.
	StopIfEmptyTriggerProviders []string `json:"stopIfEmptyTriggerProviders"`
	// Input is handed to handlers as ExecutionContext.Input.
	Input json.RawMessage `json:"input,omitempty"`
}

// StepEvent describes a step about to run.
type StepEvent struct {
	NodeID     string
	Label      string
	StepNumber int
	Provider   Provider
	Index      int
	Total      int
}

// Observer is notified around every step, synchronously and in order.
type Observer interface {
	StepStarted(ctx context.Context, event StepEvent)
	StepFinished(ctx context.Context, event StepEvent, result StepResult)
}

// Engine runs workflow graphs one node at a time.
type Engine struct {
	handlers  map[Provider]Handler
	observers []Observer
	logger    zerolog.Logger
}

// NewEngine creates an engine without handlers.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		handlers: make(map[Provider]Handler),
		logger:   logger,
	}
}

// Register binds a handler to a provider, replacing any previous one.
func (e *Engine) Register(provider Provider, handler Handler) {
	e.handlers[provider] = handler
}

// Observe adds an observer to every future run.
func (e *Engine) Observe(observer Observer) {
	e.observers = append(e.observers, observer)
}

// Handles reports whether a handler is registered for provider.
func (e *Engine) Handles(provider Provider) bool {
	_, ok := e.handlers[provider]
	return ok
}

// Execute sorts the graph and runs its nodes sequentially. A failing handler
// ends the run with an error step; an empty trigger on the first step of a
// provider listed in opts ends it with a stopped step. Execute itself never
// fails, callers inspect the step statuses.
func (e *Engine) Execute(ctx context.Context, nodes []Node, edges []Edge, opts RunOptions) RunSummary {
	ordering := TopologicalOrder(nodes, edges)
	if ordering.HasCycle() {
		e.logger.Warn().Strs("nodeIds", ordering.Fallback).Msg("Graph has a cycle, appending remaining nodes in declared order")
	}

	run := &ExecutionContext{Input: opts.Input}
	steps := make([]StepResult, 0, len(ordering.Nodes))

	for i, node := range ordering.Nodes {
		stepNumber := i + 1
		if node.HasStep() {
			stepNumber = *node.StepNumber
		}
		provider := ProviderOf(node)
		event := StepEvent{
			NodeID:     node.ID,
			Label:      node.Label,
			StepNumber: stepNumber,
			Provider:   provider,
			Index:      i,
			Total:      len(ordering.Nodes),
		}
		e.notifyStart(ctx, event)

		started := time.Now()
		result := StepResult{
			NodeID:     node.ID,
			Label:      node.Label,
			StepNumber: stepNumber,
			Provider:   provider,
			Result:     Inspection{NodeID: node.ID, StepNumber: stepNumber, Config: node.Config},
		}

		if handler, ok := e.handlers[provider]; ok {
			delta, err := handler.Execute(ctx, node, run)
			if err != nil {
				e.logger.Error().Err(err).Str("nodeId", node.ID).Str("provider", string(provider)).Int("step", stepNumber).Msg("Step failed")
				result.Status = StepStatusError
				result.Error = err.Error()
				result.DurationMs = time.Since(started).Milliseconds()
				steps = append(steps, result)
				e.notifyFinish(ctx, event, result)
				break
			}
			run.Apply(delta)
		} else {
			e.logger.Debug().Str("nodeId", node.ID).Str("provider", string(provider)).Msg("No handler registered, skipping")
		}

		result.DurationMs = time.Since(started).Milliseconds()
		if stepNumber == 1 && stopsOnEmptyTrigger(provider, opts.StopIfEmptyTriggerProviders) &&
			run.HasTrigger() && len(run.TriggerData) == 0 {
			e.logger.Info().Str("nodeId", node.ID).Str("provider", string(provider)).Msg("Trigger produced no data, stopping run")
			result.Status = StepStatusStopped
			result.Reason = StopReasonEmptyTrigger
			steps = append(steps, result)
			e.notifyFinish(ctx, event, result)
			break
		}

		result.Status = StepStatusOK
		steps = append(steps, result)
		e.notifyFinish(ctx, event, result)
	}

	return summarize(run, steps)
}

func (e *Engine) notifyStart(ctx context.Context, event StepEvent) {
	for _, o := range e.observers {
		o.StepStarted(ctx, event)
	}
}

func (e *Engine) notifyFinish(ctx context.Context, event StepEvent, result StepResult) {
	for _, o := range e.observers {
		o.StepFinished(ctx, event, result)
	}
}

func stopsOnEmptyTrigger(provider Provider, providers []string) bool {
	for _, p := range providers {
		if strings.EqualFold(p, string(provider)) {
			return true
		}
	}
	return false
}

func summarize(run *ExecutionContext, steps []StepResult) RunSummary {
	summary := RunSummary{
		OK:          true,
		TriggerData: run.TriggerData,
		AIOutput:    run.AIOutput,
		SinkResult:  run.SinkResult,
		Steps:       steps,
	}
	if summary.TriggerData == nil {
		summary.TriggerData = []Record{}
	}
	summary.TriggerCount = len(summary.TriggerData)
	if run.TriggerProvider != "" {
		provider := run.TriggerProvider
		summary.TriggerProvider = &provider
	}
	if run.AIProvider != "" {
		provider := run.AIProvider
		summary.AIProvider = &provider
	}
	return summary
}
