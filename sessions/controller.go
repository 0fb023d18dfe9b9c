package sessions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Desarso/opsagent/models"
	"github.com/google/uuid"
)

const (
	// DefaultMaxIterations caps the tool calls of one run.
	DefaultMaxIterations = 10
	// StepOutputLimit bounds tool output in results and stream events.
	StepOutputLimit = 500

	streamBuffer = 64
)

// RunState is a phase of the turn controller.
type RunState int

const (
	StateDispatching RunState = iota
	StateInvoking
	StateError
	StateDone
)

func (s RunState) String() string {
	switch s {
	case StateDispatching:
		return "dispatching"
	case StateInvoking:
		return "invoking"
	case StateError:
		return "error"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

// phaseOutcome is what a phase reports to transition.
type phaseOutcome struct {
	err          error
	pendingCalls int
	capReached   bool
}

func transition(from RunState, out phaseOutcome) RunState {
	switch from {
	case StateDispatching:
		if out.err != nil {
			return StateError
		}
		if out.pendingCalls > 0 && !out.capReached {
			return StateInvoking
		}
		return StateDone
	case StateInvoking:
		if out.err != nil {
			return StateError
		}
		return StateDispatching
	}
	return StateDone
}

// Controller drives one conversational turn: it asks the model for a
// completion, runs the requested tools and loops until a plain answer, the
// iteration cap, or a failure.
type Controller struct {
	Model         models.Model
	ModelName     string
	SystemPrompt  string
	MaxIterations int
	Invoker       *Invoker
	Logger        *log.Logger
}

// NewController creates a controller with default limits.
func NewController(model models.Model, modelName string, invoker *Invoker) *Controller {
	return &Controller{
		Model:         model,
		ModelName:     modelName,
		MaxIterations: DefaultMaxIterations,
		Invoker:       invoker,
		Logger:        log.New(os.Stdout, "[CONTROLLER] ", log.LstdFlags),
	}
}

// Run executes a turn without streaming.
func (c *Controller) Run(ctx context.Context, in RunInput) RunResult {
	return c.execute(ctx, in, nil)
}

// RunStream executes a turn, reporting every event to emit. Exactly one
// terminal event is emitted. A non-nil error from emit for a non-terminal
// event aborts the run as cancelled.
func (c *Controller) RunStream(ctx context.Context, in RunInput, emit func(models.Stream_Event) error) RunResult {
	if emit == nil {
		emit = func(models.Stream_Event) error { return nil }
	}
	return c.execute(ctx, in, emit)
}

// Stream executes a turn and returns its events. The channel is closed after
// the terminal event.
func (c *Controller) Stream(ctx context.Context, in RunInput) <-chan models.Stream_Event {
	out := make(chan models.Stream_Event, streamBuffer)
	go func() {
		defer close(out)
		c.RunStream(ctx, in, channelEmitter(ctx, out))
	}()
	return out
}

// channelEmitter blocks on non-terminal events until the reader takes them or
// ctx ends. Terminal events are delivered best-effort.
func channelEmitter(ctx context.Context, out chan<- models.Stream_Event) func(models.Stream_Event) error {
	return func(ev models.Stream_Event) error {
		if ev.Terminal() {
			select {
			case out <- ev:
			case <-ctx.Done():
				select {
				case out <- ev:
				default:
				}
			}
			return nil
		}
		select {
		case out <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type run struct {
	state     *ConversationState
	scope     CallScope
	steps     []models.Tool_Step
	turnStart int
	tokens    strings.Builder
	emit      func(models.Stream_Event) error
}

func (c *Controller) execute(ctx context.Context, in RunInput, emit func(models.Stream_Event) error) RunResult {
	r := c.newRun(in, emit)
	decls := c.invoker().Declarations()
	var pending []models.FunctionCall

	s := StateDispatching
	for s != StateDone {
		switch s {
		case StateDispatching:
			calls, err := c.dispatch(ctx, r, decls)
			if err != nil {
				r.state.LastError = err
				s = transition(s, phaseOutcome{err: err})
				continue
			}
			pending = calls
			s = transition(s, phaseOutcome{
				pendingCalls: len(calls),
				capReached:   r.state.ToolCallCount >= c.maxIterations(),
			})
			if len(calls) > 0 && s == StateDone {
				c.logf("Run %s reached the tool call cap (%d), ending turn", r.scope.RunID, c.maxIterations())
			}
		case StateInvoking:
			err := c.invoke(ctx, r, pending)
			pending = nil
			if err != nil {
				r.state.LastError = err
			}
			s = transition(s, phaseOutcome{err: err})
		case StateError:
			c.handleError(r)
			s = transition(s, phaseOutcome{})
		}
	}

	c.finish(r)
	return c.result(r)
}

func (c *Controller) newRun(in RunInput, emit func(models.Stream_Event) error) *run {
	runID := uuid.New().String()
	st := &ConversationState{
		Metadata: map[string]interface{}{
			"start_time": timestamp(),
			"model":      c.ModelName,
			"thread_id":  in.ThreadID,
			"run_id":     runID,
		},
	}

	body := make([]models.Message, 0, len(in.Prior)+len(in.History))
	body = append(body, in.Prior...)
	for _, turn := range in.History {
		switch turn.Role {
		case models.RoleUser, models.RoleAssistant, models.RoleSystem:
			body = append(body, models.Message{Role: turn.Role, Content: turn.Content})
		}
	}
	if c.SystemPrompt != "" && (len(body) == 0 || body[0].Role != models.RoleSystem) {
		st.append(models.NewSystemMessage(c.SystemPrompt))
	}
	st.append(body...)

	r := &run{
		state:     st,
		scope:     CallScope{ThreadID: in.ThreadID, RunID: runID, Context: in.Context},
		turnStart: len(st.Messages),
		emit:      emit,
	}
	st.append(models.NewUserMessage(in.Message))
	return r
}

// dispatch asks the model for a completion and appends it to the transcript.
func (c *Controller) dispatch(ctx context.Context, r *run, decls []models.FunctionDeclaration) ([]models.FunctionCall, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	var text string
	var calls []models.FunctionCall
	var err error
	if r.emit != nil {
		text, calls, err = c.dispatchStream(ctx, r, decls)
	} else {
		var resp models.Model_Response
		resp, err = c.Model.Model_Request(ctx, r.state.Messages, decls)
		text, calls = resp.Text(), resp.FunctionCalls()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelled(ctxErr)
		}
		return nil, err
	}

	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = uuid.New().String()
		}
	}
	r.state.append(models.NewAssistantMessage(text, calls))
	r.state.Metadata["last_response_time"] = timestamp()
	return calls, nil
}

func (c *Controller) dispatchStream(ctx context.Context, r *run, decls []models.FunctionDeclaration) (string, []models.FunctionCall, error) {
	respCh, errCh := c.Model.Stream_Model_Request(ctx, r.state.Messages, decls)
	var text strings.Builder
	var calls []models.FunctionCall
	var streamErr error

	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			for _, part := range resp.Parts {
				if part.Text != nil && *part.Text != "" {
					text.WriteString(*part.Text)
					r.tokens.WriteString(*part.Text)
					if err := r.emit(models.Stream_Event{Type: models.EventToken, Content: *part.Text}); err != nil {
						go drain(respCh, errCh)
						return "", nil, cancelled(err)
					}
				}
				if part.FunctionCall != nil {
					calls = append(calls, *part.FunctionCall)
				}
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil && streamErr == nil {
				streamErr = err
			}
		}
	}
	if streamErr != nil {
		return "", nil, streamErr
	}
	return text.String(), calls, nil
}

// drain releases an abandoned adapter stream.
func drain(respCh <-chan models.Model_Response, errCh <-chan error) {
	for range respCh {
	}
	if errCh != nil {
		for range errCh {
		}
	}
}

// invoke resolves every pending call and folds the results into the
// transcript in request order. tool_start is emitted when a call is
// scheduled and tool_end as soon as it resolves. It only fails when the run
// was cancelled meanwhile.
func (c *Controller) invoke(ctx context.Context, r *run, calls []models.FunctionCall) error {
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var hooks CallHooks
	var emitErr error
	if r.emit != nil {
		hooks.OnStart = func(i int, call models.FunctionCall) {
			if emitErr != nil {
				return
			}
			if emitErr = r.emit(models.Stream_Event{Type: models.EventToolStart, Tool: call.Name, Input: call.Args}); emitErr != nil {
				cancel()
			}
		}
		hooks.OnDone = func(i int, res models.Tool_Result) {
			if emitErr != nil {
				return
			}
			output := truncateRunes(res.Tool_Output, StepOutputLimit)
			if emitErr = r.emit(models.Stream_Event{Type: models.EventToolEnd, Tool: res.Tool_Name, Output: output}); emitErr != nil {
				cancel()
			}
		}
	}

	results := c.invoker().InvokeEach(roundCtx, r.scope, calls, hooks)
	for _, res := range results {
		r.state.append(models.NewToolMessage(res))
		r.state.ToolCallCount++
		r.steps = append(r.steps, models.Tool_Step{
			Tool:      res.Tool_Name,
			CallID:    res.Tool_ID,
			Output:    truncateRunes(res.Tool_Output, StepOutputLimit),
			Succeeded: res.Succeeded,
		})
	}
	r.state.Metadata["last_tool_execution"] = timestamp()

	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	if emitErr != nil {
		return cancelled(emitErr)
	}
	return nil
}

// handleError turns a failure into a user-visible assistant message.
func (c *Controller) handleError(r *run) {
	err := r.state.LastError
	c.logf("Run %s failed: %v", r.scope.RunID, err)
	r.state.Metadata["error_time"] = timestamp()
	r.state.append(models.NewAssistantMessage(
		fmt.Sprintf("Sorry, an error occurred while processing your request: %v\nPlease try again.", err), nil))
	r.state.Metadata["error_handled"] = true
	r.state.Metadata["error_handled_time"] = timestamp()
}

func (c *Controller) finish(r *run) {
	if r.emit == nil {
		return
	}
	if err := r.state.LastError; err != nil {
		r.emit(models.Stream_Event{Type: models.EventError, Message: err.Error()})
		return
	}
	r.emit(models.Stream_Event{Type: models.EventDone, Output: r.tokens.String()})
}

func (c *Controller) result(r *run) RunResult {
	res := RunResult{
		Output:        r.state.lastAssistant(),
		ToolResults:   r.steps,
		ToolCallCount: r.state.ToolCallCount,
		Metadata:      r.state.Metadata,
		Messages:      r.state.Messages,
		TurnStart:     r.turnStart,
	}
	if r.state.LastError != nil {
		res.Error = r.state.LastError.Error()
	}
	return res
}

func (c *Controller) invoker() *Invoker {
	if c.Invoker == nil {
		return &Invoker{}
	}
	return c.Invoker
}

func (c *Controller) maxIterations() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}

func (c *Controller) logf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}

// ErrCancelled marks runs aborted by their context.
var ErrCancelled = errors.New("run cancelled")

func cancelled(err error) error {
	return fmt.Errorf("%w: %v", ErrCancelled, err)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
