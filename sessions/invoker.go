package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/Desarso/opsagent/common_tools"
	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/stores"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

const (
	// DefaultParallelism bounds concurrent tool calls of one completion.
	DefaultParallelism = 4
	traceOutputLimit   = 2000
)

// CallScope carries what a tool call needs besides its arguments.
type CallScope struct {
	ThreadID string
	RunID    string
	Context  map[string]interface{}
}

// Invoker resolves tool calls against a fixed, run-scoped tool set. It never
// fails: every call yields exactly one Tool_Result.
type Invoker struct {
	Tools       *common_tools.Registry
	Parallelism int
	Approver    ToolApprover
	Traces      TraceRecorder
	Logger      *log.Logger
}

// NewInvoker creates an invoker over tools with default parallelism.
func NewInvoker(tools *common_tools.Registry) *Invoker {
	return &Invoker{
		Tools:       tools,
		Parallelism: DefaultParallelism,
		Logger:      log.New(os.Stdout, "[INVOKER] ", log.LstdFlags),
	}
}

// Declarations lists the tools exposed to the model.
func (iv *Invoker) Declarations() []models.FunctionDeclaration {
	if iv == nil || iv.Tools == nil {
		return nil
	}
	return iv.Tools.Declarations()
}

// Invoke executes a single call.
func (iv *Invoker) Invoke(ctx context.Context, scope CallScope, call models.FunctionCall) models.Tool_Result {
	res := iv.resolve(ctx, scope, call)
	iv.record(scope, call, res)
	return res.Tool_Result
}

// InvokeAll executes calls concurrently and returns results in call order.
// Traces are written after the round, in call order.
func (iv *Invoker) InvokeAll(ctx context.Context, scope CallScope, calls []models.FunctionCall) []models.Tool_Result {
	return iv.InvokeEach(ctx, scope, calls, CallHooks{})
}

// CallHooks observe calls of one round as they are scheduled and resolved.
// Hook invocations are serialized.
type CallHooks struct {
	OnStart func(i int, call models.FunctionCall)
	OnDone  func(i int, res models.Tool_Result)
}

// InvokeEach is InvokeAll with hooks fired from the worker running each call.
func (iv *Invoker) InvokeEach(ctx context.Context, scope CallScope, calls []models.FunctionCall, hooks CallHooks) []models.Tool_Result {
	resolved := make([]resolvedCall, len(calls))
	limit := iv.Parallelism
	if limit <= 0 {
		limit = DefaultParallelism
	}

	var hookMu sync.Mutex
	var g errgroup.Group
	g.SetLimit(limit)
	for i, call := range calls {
		g.Go(func() error {
			if hooks.OnStart != nil {
				hookMu.Lock()
				hooks.OnStart(i, call)
				hookMu.Unlock()
			}
			resolved[i] = iv.resolve(ctx, scope, call)
			if hooks.OnDone != nil {
				hookMu.Lock()
				hooks.OnDone(i, resolved[i].Tool_Result)
				hookMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]models.Tool_Result, len(calls))
	for i, call := range calls {
		iv.record(scope, call, resolved[i])
		results[i] = resolved[i].Tool_Result
	}
	return results
}

type resolvedCall struct {
	models.Tool_Result
	start    time.Time
	duration time.Duration
}

func (iv *Invoker) resolve(ctx context.Context, scope CallScope, call models.FunctionCall) resolvedCall {
	start := time.Now()
	output, err := iv.execute(ctx, scope, call)
	res := resolvedCall{
		Tool_Result: models.Tool_Result{Tool_ID: call.ID, Tool_Name: call.Name},
		start:       start,
		duration:    time.Since(start),
	}
	if err != nil {
		res.Tool_Output = err.Error()
		iv.logf("Tool %s (%s) failed: %v", call.Name, call.ID, err)
	} else {
		res.Tool_Output = output
		res.Succeeded = true
	}
	return res
}

func (iv *Invoker) execute(ctx context.Context, scope CallScope, call models.FunctionCall) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()

	var tool models.Tool
	found := false
	if iv.Tools != nil {
		tool, found = iv.Tools.Lookup(call.Name)
	}
	if !found {
		return "", fmt.Errorf("unknown tool: %s", call.Name)
	}

	if call.ArgsError != "" {
		return "", fmt.Errorf("invalid arguments for tool %s: %s", call.Name, call.ArgsError)
	}

	if iv.Approver != nil {
		approved, aerr := iv.Approver.Approve(ctx, call)
		if aerr != nil {
			return "", fmt.Errorf("approval failed for %s: %w", call.Name, aerr)
		}
		if !approved {
			return "", fmt.Errorf("tool %s was not approved", call.Name)
		}
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("tool %s not run: %w", call.Name, err)
	}

	args := call.Args
	if args == nil {
		args = map[string]interface{}{}
	}
	res, err := tool.Invoke(ctx, args, scope.Context)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

func (iv *Invoker) record(scope CallScope, call models.FunctionCall, result resolvedCall) {
	if iv.Traces == nil {
		return
	}
	status := stores.TraceStatusEnd
	if !result.Succeeded {
		status = stores.TraceStatusError
	}
	trace := &stores.ExecutionTrace{
		ConversationID: scope.ThreadID,
		RunID:          scope.RunID,
		ToolCallID:     call.ID,
		Tool:           call.Name,
		Status:         status,
		Output:         truncateRunes(result.Tool_Output, traceOutputLimit),
		Timestamp:      result.start.UnixMilli(),
		DurationMS:     result.duration.Milliseconds(),
	}
	if raw, err := json.Marshal(call.Args); err == nil {
		trace.Arguments = datatypes.JSON(raw)
	}
	if err := iv.Traces.SaveTrace(trace); err != nil {
		iv.logf("Failed to save trace for %s: %v", call.ID, err)
	}
}

func (iv *Invoker) logf(format string, args ...interface{}) {
	if iv.Logger != nil {
		iv.Logger.Printf(format, args...)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
