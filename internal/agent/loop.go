package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/vidcoach/internal/providers"
	"github.com/nextlevelbuilder/vidcoach/internal/store"
	"github.com/nextlevelbuilder/vidcoach/internal/tools"
	"github.com/nextlevelbuilder/vidcoach/internal/transcript"
	"github.com/nextlevelbuilder/vidcoach/internal/usage"
	"github.com/nextlevelbuilder/vidcoach/pkg/protocol"
)

const (
	DefaultMaxTurns        = 10
	defaultMaxTokens       = 4096
	defaultMaxObservations = 5

	// KindCancelled marks requests resolved without dispatch because the run
	// was cancelled.
	KindCancelled = "cancelled"
)

// LoopConfig configures a Loop.
type LoopConfig struct {
	ID              string
	Provider        providers.Provider
	Model           string
	MaxTokens       int
	MaxTurns        int // hard ceiling on model round-trips
	SystemPrompt    string
	Tools           *tools.Registry
	Pricing         usage.Pricing
	Estimator       *usage.Estimator // used when the provider omits usage
	Tracer          SpanEmitter
	InputGuard      *InputGuard
	InjectionAction string // "log", "warn" (default), "block", "off"
	MaxObservations int
	OnEvent         func(AgentEvent)
}

// Loop is the orchestrator. It owns the transcript and usage accountant of
// the current run and is the only writer to either.
type Loop struct {
	id              string
	provider        providers.Provider
	model           string
	maxTokens       int
	maxTurns        int
	systemPrompt    string
	tools           *tools.Registry
	pricing         usage.Pricing
	estimator       *usage.Estimator
	tracer          SpanEmitter
	inputGuard      *InputGuard
	injectionAction string
	maxObservations int
	onEvent         func(AgentEvent)

	running atomic.Bool

	mu         sync.RWMutex
	runID      uuid.UUID
	transcript *transcript.Transcript
	accountant *usage.Accountant
}

func NewLoop(cfg LoopConfig) *Loop {
	l := &Loop{
		id:              cfg.ID,
		provider:        cfg.Provider,
		model:           cfg.Model,
		maxTokens:       cfg.MaxTokens,
		maxTurns:        cfg.MaxTurns,
		systemPrompt:    cfg.SystemPrompt,
		tools:           cfg.Tools,
		pricing:         cfg.Pricing,
		estimator:       cfg.Estimator,
		tracer:          cfg.Tracer,
		inputGuard:      cfg.InputGuard,
		injectionAction: cfg.InjectionAction,
		maxObservations: cfg.MaxObservations,
		onEvent:         cfg.OnEvent,
		transcript:      transcript.New(),
		accountant:      usage.NewAccountant(),
	}
	if l.id == "" {
		l.id = "default"
	}
	if l.model == "" && l.provider != nil {
		l.model = l.provider.DefaultModel()
	}
	if l.maxTokens <= 0 {
		l.maxTokens = defaultMaxTokens
	}
	if l.maxTurns <= 0 {
		l.maxTurns = DefaultMaxTurns
	}
	if l.maxObservations <= 0 {
		l.maxObservations = defaultMaxObservations
	}
	if l.systemPrompt == "" {
		l.systemPrompt = BuildSystemPrompt(PromptConfig{MaxObservations: l.maxObservations})
	}
	if l.pricing == nil {
		l.pricing = usage.DefaultPricing()
	}
	if l.estimator == nil {
		l.estimator = usage.NewEstimator()
	}
	switch l.injectionAction {
	case "log", "warn", "block", "off":
	default:
		l.injectionAction = "warn"
	}
	if l.inputGuard == nil && l.injectionAction != "off" {
		l.inputGuard = NewInputGuard()
	}
	return l
}

func (l *Loop) ID() string      { return l.id }
func (l *Loop) Model() string   { return l.model }
func (l *Loop) IsRunning() bool { return l.running.Load() }

// RunID returns the id of the current or most recent run.
func (l *Loop) RunID() uuid.UUID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.runID
}

// Transcript returns a copy of the current or most recent run's turns.
func (l *Loop) Transcript() []transcript.Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.transcript.Render()
}

// Usage returns the usage totals of the current or most recent run.
func (l *Loop) Usage() usage.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accountant.Totals()
}

// stepKind is the classification of one model response.
type stepKind int

const (
	stepContinue stepKind = iota // the model requested capabilities
	stepFinal                    // terminal answer
)

func classify(resp *providers.ChatResponse) stepKind {
	if len(resp.ToolCalls) > 0 {
		return stepContinue
	}
	return stepFinal
}

// run holds the per-run state threaded through the loop.
type run struct {
	id    uuid.UUID
	span  uuid.UUID
	start time.Time
	goal  string
	tr    *transcript.Transcript
	acct  *usage.Accountant
	defs  []providers.ToolDefinition
}

// Run drives the conversation for goal until the model gives a terminal
// answer, a structural error occurs, or the turn ceiling is reached.
func (l *Loop) Run(ctx context.Context, goal string) (*FinalAnswer, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, ErrEmptyGoal
	}
	if l.tools == nil || l.tools.Count() == 0 {
		return nil, ErrNoCapabilities
	}
	if l.provider == nil {
		return nil, ErrNoProvider
	}
	if err := l.screen(goal); err != nil {
		return nil, err
	}
	if !l.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer l.running.Store(false)

	r := &run{
		id:    store.GenNewID(),
		span:  store.GenNewID(),
		start: time.Now().UTC(),
		goal:  goal,
		tr:    transcript.New(),
		acct:  usage.NewAccountant(),
		defs:  providers.CleanToolSchemas(l.provider.Name(), l.tools.ProviderDefs()),
	}
	l.mu.Lock()
	l.runID, l.transcript, l.accountant = r.id, r.tr, r.acct
	l.mu.Unlock()

	if _, err := r.tr.Append(transcript.Turn{Role: transcript.RoleGoal, Text: goal}); err != nil {
		return nil, l.fail(r, err)
	}

	slog.Info("agent run started", "agent", l.id, "run_id", r.id, "model", l.model,
		"capabilities", l.tools.Count(), "max_turns", l.maxTurns)
	l.emit(r, protocol.AgentEventRunStarted, map[string]any{"goal": goal, "model": l.model})

	for iteration := 1; iteration <= l.maxTurns; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, l.fail(r, err)
		}

		resp, err := l.roundTrip(ctx, r, iteration)
		if errors.Is(err, usage.ErrInvalidUsage) {
			return nil, l.fail(r, err)
		}
		if err != nil {
			return nil, l.fail(r, &ModelError{Iteration: iteration, Err: err})
		}

		if classify(resp) == stepFinal {
			return l.finish(r, resp.Content)
		}

		requests := l.toRequests(resp.ToolCalls)
		if _, err := r.tr.Append(transcript.Turn{
			Role:     transcript.RoleRequest,
			Text:     resp.Content,
			Requests: requests,
		}); err != nil {
			return nil, l.fail(r, err)
		}

		results, abortErr := l.dispatchBatch(ctx, r, requests)
		if _, err := r.tr.Append(transcript.Turn{Role: transcript.RoleResult, Results: results}); err != nil {
			return nil, l.fail(r, err)
		}
		if abortErr != nil {
			return nil, l.fail(r, abortErr)
		}
	}

	return nil, l.fail(r, &CeilingError{Limit: l.maxTurns})
}

// screen runs the input guard over the goal.
func (l *Loop) screen(goal string) error {
	if l.inputGuard == nil || l.injectionAction == "off" {
		return nil
	}
	matches := l.inputGuard.Scan(goal)
	if len(matches) == 0 {
		return nil
	}
	switch l.injectionAction {
	case "block":
		slog.Warn("security.injection_blocked", "agent", l.id, "patterns", strings.Join(matches, ","))
		return fmt.Errorf("%w: %s", ErrInjectionBlocked, strings.Join(matches, ", "))
	case "log":
		slog.Info("security.injection_detected", "agent", l.id, "patterns", strings.Join(matches, ","))
	default:
		slog.Warn("security.injection_detected", "agent", l.id, "patterns", strings.Join(matches, ","))
	}
	return nil
}

// roundTrip sends the transcript to the model and records the usage of the
// response. A usage that cannot be recorded aborts the run.
func (l *Loop) roundTrip(ctx context.Context, r *run, iteration int) (*providers.ChatResponse, error) {
	req := providers.ChatRequest{
		Model:     l.model,
		System:    l.systemPrompt,
		Messages:  BuildMessages(r.tr.Render()),
		Tools:     r.defs,
		MaxTokens: l.maxTokens,
	}

	start := time.Now().UTC()
	resp, err := l.provider.Chat(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("provider returned no response")
	}

	span := store.SpanData{
		TraceID:      r.id,
		ParentSpanID: &r.span,
		SpanType:     store.SpanTypeLLMCall,
		Name:         fmt.Sprintf("round-trip %d", iteration),
		StartTime:    start,
		Provider:     l.provider.Name(),
		Model:        l.model,
		Status:       store.SpanStatusOK,
	}
	end := time.Now().UTC()
	span.EndTime = &end
	span.DurationMS = int(end.Sub(start).Milliseconds())
	if err != nil {
		span.Status, span.Error = store.SpanStatusError, err.Error()
		l.emitSpan(span)
		slog.Warn("model round-trip failed", "run_id", r.id, "iteration", iteration, "error", err)
		return nil, err
	}

	in, out := l.measure(req, resp)
	cost := l.pricing.Estimate(l.model, in, out)
	if err := r.acct.Record(in, out, cost); err != nil {
		return nil, err
	}

	span.InputTokens, span.OutputTokens = int(in), int(out)
	span.FinishReason = resp.FinishReason
	span.OutputPreview = resp.Content
	l.emitSpan(span)

	slog.Debug("model round-trip",
		"run_id", r.id,
		"iteration", iteration,
		"finish_reason", resp.FinishReason,
		"tool_calls", len(resp.ToolCalls),
		"input_units", in,
		"output_units", out,
	)
	return resp, nil
}

// measure returns the provider-reported usage, or an estimate when the
// provider did not report any.
func (l *Loop) measure(req providers.ChatRequest, resp *providers.ChatResponse) (int64, int64) {
	if resp.Usage != nil {
		return int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens)
	}
	var in strings.Builder
	in.WriteString(req.System)
	for _, m := range req.Messages {
		in.WriteString(m.Content)
		for _, tc := range m.ToolCalls {
			b, _ := json.Marshal(tc.Arguments)
			in.WriteString(tc.Name)
			in.Write(b)
		}
		for _, tr := range m.ToolResults {
			in.WriteString(tr.Content)
		}
	}
	out := l.estimator.Count(resp.Content)
	for _, tc := range resp.ToolCalls {
		b, _ := json.Marshal(tc.Arguments)
		out += l.estimator.Count(tc.Name + string(b))
	}
	return l.estimator.Count(in.String()), out
}

// toRequests converts tool calls into transcript requests. Missing or
// repeated ids are replaced so every request in the batch is addressable.
func (l *Loop) toRequests(calls []providers.ToolCall) []transcript.Request {
	seen := make(map[string]bool, len(calls))
	requests := make([]transcript.Request, 0, len(calls))
	for _, tc := range calls {
		id := strings.TrimSpace(tc.ID)
		if id == "" || seen[id] {
			id = "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		}
		seen[id] = true
		requests = append(requests, transcript.Request{ID: id, Capability: tc.Name, Arguments: tc.Arguments})
	}
	return requests
}

// dispatchBatch resolves every request of one turn, sequentially and in order.
// It always returns one result per request. A non-nil error means the run
// must abort after the results are appended.
func (l *Loop) dispatchBatch(ctx context.Context, r *run, requests []transcript.Request) ([]transcript.Result, error) {
	results := make([]transcript.Result, 0, len(requests))
	var earlier []string
	var abortErr error

	for _, req := range requests {
		if abortErr == nil {
			abortErr = ctx.Err()
		}
		if abortErr != nil {
			results = append(results, transcript.Result{
				RequestID: req.ID,
				Status:    transcript.StatusError,
				Error:     fmt.Sprintf("not dispatched: %v", abortErr),
				Kind:      KindCancelled,
			})
			continue
		}

		if dep := l.batchDependency(req.Capability, earlier); dep != "" {
			earlier = append(earlier, req.Capability)
			msg := fmt.Sprintf("%s: %s needs the output of %s, which was requested in the same turn; request it again after that result arrives",
				tools.ErrInvalidArguments, req.Capability, dep)
			slog.Debug("same-turn dependency rejected", "run_id", r.id, "capability", req.Capability, "depends_on", dep)
			results = append(results, transcript.Result{
				RequestID: req.ID,
				Status:    transcript.StatusError,
				Error:     msg,
				Kind:      tools.KindInvalidArguments,
			})
			continue
		}
		earlier = append(earlier, req.Capability)

		results = append(results, l.dispatch(ctx, r, req))
	}

	if abortErr == nil {
		abortErr = ctx.Err()
	}
	return results, abortErr
}

// batchDependency returns the first earlier capability in the batch that
// capability depends on, or "".
func (l *Loop) batchDependency(capability string, earlier []string) string {
	spec, ok := l.tools.Spec(capability)
	if !ok || len(spec.DependsOn) == 0 {
		return ""
	}
	for _, name := range earlier {
		if spec.Needs(name) {
			return name
		}
	}
	return ""
}

func (l *Loop) dispatch(ctx context.Context, r *run, req transcript.Request) transcript.Result {
	l.emit(r, protocol.AgentEventToolCall, ToolCallPayload{
		RequestID:  req.ID,
		Capability: req.Capability,
		Arguments:  req.Arguments,
	})

	start := time.Now().UTC()
	res := l.tools.Dispatch(store.WithRunID(ctx, r.id), req.Capability, req.Arguments)
	elapsed := time.Since(start)

	out := transcript.Result{RequestID: req.ID, Status: transcript.StatusOK, Data: res.Data}
	if res.IsError {
		out = transcript.Result{
			RequestID: req.ID,
			Status:    transcript.StatusError,
			Error:     res.ForLLM,
			Kind:      res.Kind,
		}
		if res.Class != "" {
			out.Data = map[string]any{"class": res.Class}
		}
	}

	args, _ := json.Marshal(req.Arguments)
	span := store.SpanData{
		TraceID:      r.id,
		ParentSpanID: &r.span,
		SpanType:     store.SpanTypeToolCall,
		Name:         req.Capability,
		StartTime:    start,
		DurationMS:   int(elapsed.Milliseconds()),
		Status:       store.SpanStatusOK,
		ToolName:     req.Capability,
		ToolCallID:   req.ID,
		InputPreview: string(args),
	}
	if res.IsError {
		span.Status, span.Error = store.SpanStatusError, res.ForLLM
	} else {
		span.OutputPreview = resultContent(out)
	}
	end := start.Add(elapsed)
	span.EndTime = &end
	l.emitSpan(span)

	l.emit(r, protocol.AgentEventToolResult, ToolResultPayload{
		RequestID:  req.ID,
		Capability: req.Capability,
		Status:     string(out.Status),
		Kind:       out.Kind,
		Error:      out.Error,
		DurationMS: elapsed.Milliseconds(),
	})
	return out
}

func (l *Loop) finish(r *run, text string) (*FinalAnswer, error) {
	if _, err := r.tr.Append(transcript.Turn{Role: transcript.RoleFinal, Text: text}); err != nil {
		return nil, l.fail(r, err)
	}

	turns := r.tr.Render()
	obs := tools.ListItems(text, l.maxObservations)
	if len(obs) == 0 {
		obs = lastObservations(turns, l.maxObservations)
	}
	answer := &FinalAnswer{
		RunID:        r.id.String(),
		Text:         text,
		Observations: obs,
		Usage:        r.acct.Totals(),
		Turns:        len(turns),
	}

	l.endRunSpan(r, store.SpanStatusOK, "", text)
	slog.Info("agent run completed",
		"run_id", r.id,
		"turns", answer.Turns,
		"round_trips", answer.Usage.RoundTrips,
		"input_units", answer.Usage.InputUnits,
		"output_units", answer.Usage.OutputUnits,
		"estimated_cost", answer.Usage.EstimatedCost,
		"duration_ms", time.Since(r.start).Milliseconds(),
	)
	l.emit(r, protocol.AgentEventRunCompleted, answer)
	return answer, nil
}

func (l *Loop) fail(r *run, err error) error {
	l.endRunSpan(r, store.SpanStatusError, err.Error(), "")
	slog.Error("agent run failed", "run_id", r.id, "turns", r.tr.Len(), "error", err)
	l.emit(r, protocol.AgentEventRunFailed, map[string]any{"error": err.Error()})
	return err
}

func (l *Loop) endRunSpan(r *run, status, errMsg, output string) {
	end := time.Now().UTC()
	totals := r.acct.Totals()
	l.emitSpan(store.SpanData{
		ID:            r.span,
		TraceID:       r.id,
		SpanType:      store.SpanTypeRun,
		Name:          "analyze",
		StartTime:     r.start,
		EndTime:       &end,
		DurationMS:    int(end.Sub(r.start).Milliseconds()),
		Status:        status,
		Error:         errMsg,
		Provider:      l.provider.Name(),
		Model:         l.model,
		InputTokens:   int(totals.InputUnits),
		OutputTokens:  int(totals.OutputUnits),
		InputPreview:  r.goal,
		OutputPreview: output,
	})
}

func (l *Loop) emit(r *run, eventType string, payload any) {
	if l.onEvent == nil {
		return
	}
	l.onEvent(AgentEvent{Type: eventType, RunID: r.id.String(), Payload: payload})
}

func (l *Loop) emitSpan(span store.SpanData) {
	if l.tracer != nil {
		l.tracer.EmitSpan(span)
	}
}

// lastObservations returns the observations of the most recent successful
// analysis result in turns.
func lastObservations(turns []transcript.Turn, limit int) []string {
	for i := len(turns) - 1; i >= 0; i-- {
		for j := len(turns[i].Results) - 1; j >= 0; j-- {
			res := turns[i].Results[j]
			if res.Status != transcript.StatusOK {
				continue
			}
			var obs []string
			switch d := res.Data.(type) {
			case tools.Analysis:
				obs = d.Observations
			case map[string]any:
				switch v := d["observations"].(type) {
				case []string:
					obs = v
				case []any:
					for _, item := range v {
						if s, ok := item.(string); ok {
							obs = append(obs, s)
						}
					}
				}
			}
			if len(obs) > 0 {
				if limit > 0 && len(obs) > limit {
					obs = obs[:limit]
				}
				return obs
			}
		}
	}
	return nil
}
