package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/graph"
	"github.com/hupe1980/paymesh/internal/util"
	"github.com/hupe1980/paymesh/logging"
	"github.com/hupe1980/paymesh/metrics"
	"github.com/hupe1980/paymesh/model"
	"github.com/hupe1980/paymesh/tool"
)

// Compile-time check that Runner satisfies the core contract.
var _ core.Runner = (*Runner)(nil)

// Options holds configuration overrides passed to New().
type Options struct {
	// MaxHops bounds the number of model invocations per turn. A
	// non-positive value disables the bound.
	MaxHops int
	// ToolTimeout bounds each tool invocation.
	ToolTimeout time.Duration
	// MaxHistoryMessages limits how much session history travels to the
	// model per hop. The opening user request survives truncation so
	// downstream roles keep the original intent.
	MaxHistoryMessages int
	// EnableStreaming toggles per-token events alongside full messages.
	EnableStreaming bool
	// EventBufferSize sets channel buffering for emitted events.
	EventBufferSize int
	// Logger receives orchestration diagnostics.
	Logger logging.Logger
	// Metrics receives turn/tool/handoff observations. Nil disables
	// recording.
	Metrics *metrics.Metrics
}

// Runner drives user turns through the agent graph: one model call per
// hop, tool execution in request order, handoffs along declared edges,
// and exactly one terminal event per turn. Public methods are safe for
// concurrent use.
type Runner struct {
	graph    *graph.Graph
	tools    *tool.Registry
	model    model.Model
	sessions core.SessionRegistry

	maxHops            int
	toolTimeout        time.Duration
	maxHistoryMessages int
	enableStreaming    bool
	eventBufferSize    int

	logger  logging.Logger
	metrics *metrics.Metrics

	activeTurns map[string]context.CancelFunc
	mu          sync.Mutex
}

// New constructs a Runner and binds the graph's capabilities against the
// tool registry, so a role referencing an unregistered tool fails here
// rather than mid-turn.
func New(
	g *graph.Graph,
	tools *tool.Registry,
	mdl model.Model,
	sessions core.SessionRegistry,
	optFns ...func(o *Options),
) (*Runner, error) {
	opts := Options{
		MaxHops:            10,
		ToolTimeout:        30 * time.Second,
		MaxHistoryMessages: 20,
		EnableStreaming:    true,
		EventBufferSize:    64,
		Logger:             logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if g == nil {
		return nil, core.Errorf(core.KindConfiguration, "runner requires an agent graph")
	}
	if mdl == nil {
		return nil, core.Errorf(core.KindConfiguration, "runner requires a model")
	}
	if sessions == nil {
		return nil, core.Errorf(core.KindConfiguration, "runner requires a session registry")
	}
	if tools == nil {
		tools = tool.NewRegistry()
	}

	if err := g.Bind(tools); err != nil {
		return nil, err
	}

	return &Runner{
		graph:              g,
		tools:              tools,
		model:              mdl,
		sessions:           sessions,
		maxHops:            opts.MaxHops,
		toolTimeout:        opts.ToolTimeout,
		maxHistoryMessages: opts.MaxHistoryMessages,
		enableStreaming:    opts.EnableStreaming,
		eventBufferSize:    opts.EventBufferSize,
		logger:             opts.Logger,
		metrics:            opts.Metrics,
		activeTurns:        make(map[string]context.CancelFunc),
	}, nil
}

// Run starts one asynchronous turn. It admits the turn through the
// session registry before any channel exists, so a busy or missing
// session is reported synchronously. On success the returned event
// channel carries ordered events ending in exactly one terminal event,
// after which both channels close and the session is idle again.
func (r *Runner) Run(
	ctx context.Context,
	sessionID string,
	message string,
) (string, <-chan core.Event, <-chan error, error) {
	if message == "" {
		return "", nil, nil, core.Errorf(core.KindValidation, "message must not be empty")
	}

	sess, err := r.sessions.BeginTurn(sessionID)
	if err != nil {
		return "", nil, nil, err
	}

	turnID := core.NewID()

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeTurns[turnID] = cancel
	r.mu.Unlock()

	runCtx := core.NewRunContext(ctx, sessionID, turnID, sess, eventsCh, r.maxHops, r.logger)

	go func() {
		// Channel close is the externally visible end of the turn, so
		// everything else settles first.
		defer func() {
			r.mu.Lock()
			delete(r.activeTurns, turnID)
			r.mu.Unlock()
			cancel()
			r.sessions.EndTurn(sessionID)
			close(eventsCh)
			close(errorsCh)
		}()
		defer func() {
			if rec := recover(); rec != nil {
				err := core.Errorf(core.KindInternal, "turn panicked: %v", rec)
				r.logger.Error("runner.turn.panic", "turn_id", turnID, "session_id", sessionID, "panic", fmt.Sprintf("%v", rec))
				_ = runCtx.EmitEvent(core.NewErrorEvent(turnID, err))
				select {
				case errorsCh <- err:
				default:
				}
			}
		}()

		r.executeTurn(runCtx, message, errorsCh)
	}()

	return turnID, eventsCh, errorsCh, nil
}

// Cancel aborts a running turn by ID. The in-flight tool call (if any)
// still runs to completion; the loop stops at the next checkpoint.
func (r *Runner) Cancel(turnID string) error {
	r.mu.Lock()
	cancel, ok := r.activeTurns[turnID]
	r.mu.Unlock()

	if !ok {
		return core.Errorf(core.KindValidation, "turn %s is not active", turnID)
	}

	cancel()

	return nil
}

func (r *Runner) executeTurn(runCtx *core.RunContext, message string, errorsCh chan<- error) {
	start := time.Now()
	sess := runCtx.Session

	sess.Append(core.NewUserMessage(message))
	_ = runCtx.EmitEvent(core.NewMessageEvent(runCtx.TurnID, "user", message))

	agent := sess.CurrentAgent()
	if _, ok := r.graph.Role(agent); agent == "" || !ok {
		agent = r.graph.EntryRole().Name
	}

	turnErr := r.loop(runCtx, &agent)

	sess.SetCurrentAgent(agent)

	status := "done"
	switch {
	case turnErr == nil:
		if err := runCtx.EmitEvent(core.NewDoneEvent(runCtx.TurnID)); err == nil {
			r.logger.Debug("runner.turn.done",
				"turn_id", runCtx.TurnID,
				"session_id", runCtx.SessionID,
				"agent", agent,
				"hops", runCtx.Hops.Count(),
				"duration_ms", time.Since(start).Milliseconds())
		}
	case errors.Is(turnErr, context.Canceled) || errors.Is(turnErr, context.DeadlineExceeded):
		status = "canceled"
		r.logger.Debug("runner.turn.canceled", "turn_id", runCtx.TurnID, "session_id", runCtx.SessionID, "agent", agent)
	default:
		status = string(core.KindOf(turnErr))
		_ = runCtx.EmitEvent(core.NewErrorEvent(runCtx.TurnID, turnErr))
		select {
		case errorsCh <- turnErr:
		default:
		}
		r.logger.Warn("runner.turn.failed",
			"turn_id", runCtx.TurnID,
			"session_id", runCtx.SessionID,
			"agent", agent,
			"kind", status,
			"error", turnErr.Error())
	}

	r.metrics.TurnCompleted(status, time.Since(start).Seconds(), runCtx.Hops.Count())
}

// loop walks the graph hop by hop until a role finishes without
// requesting tools or a terminal error occurs. agent tracks the active
// role across hops so the caller can persist the final position.
func (r *Runner) loop(runCtx *core.RunContext, agent *string) error {
	sess := runCtx.Session
	fallbackUsed := false

	for {
		if err := runCtx.Hops.Take(); err != nil {
			return err
		}

		role, ok := r.graph.Role(*agent)
		if !ok {
			return core.Errorf(core.KindConfiguration, "session resumed on unknown role %q", *agent)
		}

		req, err := r.buildRequest(runCtx, role)
		if err != nil {
			return err
		}

		resp, err := r.generate(runCtx, role.Name, req)
		if err != nil {
			return err
		}

		if resp.Text != "" {
			sess.Append(core.NewAssistantMessage(role.Name, resp.Text))
			if err := runCtx.EmitEvent(core.NewMessageEvent(runCtx.TurnID, role.Name, resp.Text)); err != nil {
				return err
			}
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Text == "" {
				r.logger.Debug("runner.turn.empty_response", "turn_id", runCtx.TurnID, "agent", role.Name)
			}
			return nil
		}

		handoff := ""
		for _, call := range resp.ToolCalls {
			if tool.IsHandoff(call.Function.Name) {
				target, herr := r.resolveHandoff(role, call)
				if herr != nil {
					return herr
				}
				handoff = target
				break // nothing legitimate follows a transfer
			}

			if err := r.executeTool(runCtx, role, call, &fallbackUsed); err != nil {
				return err
			}
		}

		if handoff != "" {
			if err := runCtx.EmitEvent(core.NewHandoffEvent(runCtx.TurnID, role.Name, handoff)); err != nil {
				return err
			}
			r.metrics.HandoffObserved(role.Name, handoff)
			sess.SetCurrentAgent(handoff)
			r.logger.Debug("runner.handoff",
				"session_id", runCtx.SessionID,
				"turn_id", runCtx.TurnID,
				"from", role.Name,
				"to", handoff)
			*agent = handoff
		}
	}
}

// buildRequest assembles the model input for one hop: rendered role
// instruction, truncated history, and the function declarations this
// role may use (its capabilities plus the handoff function when the
// role has outgoing edges).
func (r *Runner) buildRequest(runCtx *core.RunContext, role graph.Role) (model.Request, error) {
	state := map[string]any{
		"SessionID": runCtx.SessionID,
		"TurnID":    runCtx.TurnID,
		"Agent":     role.Name,
		"Now":       time.Now().UTC().Format(time.RFC3339),
	}

	instructions, err := util.RenderTemplate(role.Instruction, state)
	if err != nil {
		return model.Request{}, core.WrapError(core.KindConfiguration, err, "failed to render instruction for %s", role.Name)
	}

	defs := r.tools.DefinitionsFor(role.Capabilities)
	tools := make([]model.ToolDefinition, 0, len(defs)+1)
	for _, d := range defs {
		tools = append(tools, model.NewToolDefinition(d.Name, d.Description, d.Parameters))
	}
	if len(role.Handoffs) > 0 {
		h := tool.HandoffDefinition(role.Handoffs)
		tools = append(tools, model.NewToolDefinition(h.Name, h.Description, h.Parameters))
	}

	return model.Request{
		Instructions: instructions,
		Messages:     truncateHistory(runCtx.Session.History(), r.maxHistoryMessages),
		Tools:        tools,
		Stream:       r.enableStreaming,
	}, nil
}

// generate drains the model's response and error channels, forwarding
// partial chunks as token events, and returns the final response.
func (r *Runner) generate(runCtx *core.RunContext, agent string, req model.Request) (*model.Response, error) {
	respCh, errCh := r.model.Generate(runCtx.Context, req)

	var final *model.Response
	var genErr error

	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				if r.enableStreaming && resp.Text != "" {
					if err := runCtx.EmitEvent(core.NewTokenEvent(runCtx.TurnID, agent, resp.Text)); err != nil {
						return nil, err
					}
					r.metrics.TokenStreamed()
				}
				continue
			}
			f := resp
			final = &f
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil && genErr == nil {
				genErr = err
			}
		case <-runCtx.Done():
			return nil, runCtx.Err()
		}
	}

	if genErr != nil {
		return nil, core.WrapError(core.KindInternal, genErr, "model generation failed for %s", agent)
	}
	if final == nil {
		return nil, core.Errorf(core.KindInternal, "model closed the stream without a final response for %s", agent)
	}

	return final, nil
}

// resolveHandoff validates a transfer request against the graph. A
// malformed or undeclared transfer ends the turn: unlike a tool failure
// there is no useful way to fold it back to the model.
func (r *Runner) resolveHandoff(role graph.Role, call model.ToolCall) (string, error) {
	args, err := call.Function.ParseArguments()
	if err != nil {
		return "", core.WrapError(core.KindValidation, err, "malformed handoff arguments from %s", role.Name)
	}

	target, err := tool.HandoffTarget(args)
	if err != nil {
		return "", core.WrapError(core.KindValidation, err, "malformed handoff arguments from %s", role.Name)
	}

	if !r.graph.IsLegalHandoff(role.Name, target) {
		return "", core.Errorf(core.KindHandoffViolation, "role %s attempted an undeclared handoff to %s", role.Name, target)
	}

	return target, nil
}

// executeTool runs one requested tool call through its full lifecycle:
// capability check, calling event, invocation, completed/failed event,
// and the history fold the model sees next hop. The first failure per
// turn is folded back so the role can react; the second ends the turn.
func (r *Runner) executeTool(runCtx *core.RunContext, role graph.Role, call model.ToolCall, fallbackUsed *bool) error {
	name := call.Function.Name
	sess := runCtx.Session

	if !slices.Contains(role.Capabilities, name) {
		return core.Errorf(core.KindCapabilityViolation, "role %s requested tool %q outside its capabilities", role.Name, name)
	}

	callID := call.ID
	if callID == "" {
		callID = core.NewID()
	}

	args, argsErr := call.Function.ParseArguments()

	tc := core.ToolCall{
		CallID:      callID,
		Name:        name,
		DisplayName: r.tools.DisplayName(name),
		Args:        args,
		Status:      core.ToolCalling,
	}
	if err := runCtx.EmitEvent(core.NewToolCallEvent(runCtx.TurnID, role.Name, tc)); err != nil {
		return err
	}

	start := time.Now()

	var result any
	callErr := argsErr
	if callErr == nil {
		result, callErr = r.invoke(runCtx, role.Name, callID, name, args)
	}
	elapsed := time.Since(start)

	if callErr != nil {
		tc.Status = core.ToolFailed
		tc.Error = callErr.Error()
		if err := runCtx.EmitEvent(core.NewToolCallEvent(runCtx.TurnID, role.Name, tc)); err != nil {
			return err
		}
		r.metrics.ToolCallObserved(name, "failed", elapsed.Seconds())
		r.logger.Warn("runner.tool.failed",
			"tool", name,
			"session_id", runCtx.SessionID,
			"turn_id", runCtx.TurnID,
			"agent", role.Name,
			"duration_ms", elapsed.Milliseconds(),
			"error", callErr.Error())

		if *fallbackUsed {
			return core.WrapError(core.KindToolInvocation, callErr, "tool %q failed after an earlier failure this turn", name)
		}
		*fallbackUsed = true
		sess.Append(core.NewToolMessage(role.Name, fmt.Sprintf("Tool '%s' failed: %v. Adjust the call or report the problem to the user.", name, callErr)))

		return runCtx.Err()
	}

	tc.Status = core.ToolCompleted
	tc.Result = result
	if err := runCtx.EmitEvent(core.NewToolCallEvent(runCtx.TurnID, role.Name, tc)); err != nil {
		return err
	}
	r.metrics.ToolCallObserved(name, "completed", elapsed.Seconds())
	r.logger.Debug("runner.tool.completed",
		"tool", name,
		"session_id", runCtx.SessionID,
		"turn_id", runCtx.TurnID,
		"agent", role.Name,
		"duration_ms", elapsed.Milliseconds())

	sess.Append(core.NewToolMessage(role.Name, foldToolResult(name, result)))

	return runCtx.Err()
}

// invoke executes the tool on a context detached from turn cancellation
// so an in-flight call always runs to completion (the per-call timeout
// still applies). Panics inside tools surface as tool errors, not
// crashed turns.
func (r *Runner) invoke(runCtx *core.RunContext, agent, callID, name string, args map[string]any) (result any, err error) {
	ctx := tool.WithCallInfo(context.WithoutCancel(runCtx.Context), tool.CallInfo{
		SessionID: runCtx.SessionID,
		TurnID:    runCtx.TurnID,
		Agent:     agent,
		CallID:    callID,
		Logger:    runCtx.Logger,
	})

	defer func() {
		if rec := recover(); rec != nil {
			err = tool.NewToolError(name, fmt.Sprintf("panic during execution: %v", rec), tool.CodeExecutionFailed)
		}
	}()

	return r.tools.Invoke(ctx, name, args, r.toolTimeout)
}

// truncateHistory keeps the most recent max messages. When truncation
// drops the opening user request, it is re-prepended so every role can
// still see what the user originally asked for.
func truncateHistory(msgs []core.Message, max int) []core.Message {
	if max <= 0 || len(msgs) <= max {
		return msgs
	}
	if msgs[0].Role == core.RoleUser {
		out := make([]core.Message, 0, max)
		out = append(out, msgs[0])
		return append(out, msgs[len(msgs)-(max-1):]...)
	}
	return msgs[len(msgs)-max:]
}

// foldToolResult renders a tool result as the text the model sees on
// the next hop.
func foldToolResult(name string, result any) string {
	switch v := result.(type) {
	case nil:
		return fmt.Sprintf("Tool '%s' returned no output", name)
	case string:
		return fmt.Sprintf("Tool '%s' returned: %s", name, v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("Tool '%s' returned: %+v", name, v)
		}
		return fmt.Sprintf("Tool '%s' returned: %s", name, b)
	}
}
