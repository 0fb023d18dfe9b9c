package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Desarso/opsagent/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from RunState
		out  phaseOutcome
		want RunState
	}{
		{StateDispatching, phaseOutcome{}, StateDone},
		{StateDispatching, phaseOutcome{pendingCalls: 2}, StateInvoking},
		{StateDispatching, phaseOutcome{pendingCalls: 2, capReached: true}, StateDone},
		{StateDispatching, phaseOutcome{err: errors.New("x")}, StateError},
		{StateInvoking, phaseOutcome{}, StateDispatching},
		{StateInvoking, phaseOutcome{err: errors.New("x")}, StateError},
		{StateError, phaseOutcome{}, StateDone},
		{StateDone, phaseOutcome{}, StateDone},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, transition(tt.from, tt.out))
		})
	}
}

func TestRunPlainAnswer(t *testing.T) {
	model := &scriptedModel{responses: []models.Model_Response{textResponse("Hello there")}}
	c := newTestController(t, model)
	c.SystemPrompt = "You are helpful."

	res := c.Run(context.Background(), RunInput{
		Message:  "hi",
		ThreadID: "thread-1",
		History: []models.Chat_Turn{
			{Role: "user", Content: "earlier"},
			{Role: "tool", Content: "dropped"},
			{Role: "assistant", Content: "reply"},
		},
	})

	assert.Equal(t, "Hello there", res.Output)
	assert.Empty(t, res.Error)
	assert.Equal(t, 0, res.ToolCallCount)
	assert.Equal(t, "test-model", res.Metadata["model"])
	assert.Equal(t, "thread-1", res.Metadata["thread_id"])
	assert.NotEmpty(t, res.Metadata["run_id"])

	sent := model.requests[0]
	require.Len(t, sent, 4)
	assert.Equal(t, models.RoleSystem, sent[0].Role)
	assert.Equal(t, "earlier", sent[1].Content)
	assert.Equal(t, "reply", sent[2].Content)
	assert.Equal(t, models.NewUserMessage("hi"), sent[3])

	assert.Equal(t, 3, res.TurnStart)
	assert.Len(t, res.NewMessages(), 2)
}

func TestRunKeepsCallerSystemPrompt(t *testing.T) {
	model := &scriptedModel{}
	c := newTestController(t, model)
	c.SystemPrompt = "default"

	c.Run(context.Background(), RunInput{Message: "", History: []models.Chat_Turn{{Role: "system", Content: "custom"}}})

	sent := model.requests[0]
	require.Len(t, sent, 2)
	assert.Equal(t, "custom", sent[0].Content)
	assert.Equal(t, models.NewUserMessage(""), sent[1], "an empty message is still sent")
}

func TestRunInvokesToolsInRequestOrder(t *testing.T) {
	model := &scriptedModel{responses: []models.Model_Response{
		callResponse("", call("c1", "echo", map[string]interface{}{"value": 1}),
			call("c2", "fail", nil), call("c3", "echo", map[string]interface{}{"value": 3})),
		textResponse("all done"),
	}}
	c := newTestController(t, model, echoTool("echo"), failingTool("fail"))

	res := c.Run(context.Background(), RunInput{Message: "go"})

	assert.Equal(t, "all done", res.Output)
	assert.Equal(t, 3, res.ToolCallCount)
	require.Len(t, res.ToolResults, res.ToolCallCount)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{res.ToolResults[0].CallID, res.ToolResults[1].CallID, res.ToolResults[2].CallID})
	assert.True(t, res.ToolResults[0].Succeeded)
	assert.Equal(t, `{"echo":1}`, res.ToolResults[0].Output)
	assert.False(t, res.ToolResults[1].Succeeded)
	assert.Equal(t, "backend unavailable", res.ToolResults[1].Output)

	second := model.requests[1]
	tail := second[len(second)-3:]
	for i, id := range []string{"c1", "c2", "c3"} {
		assert.Equal(t, models.RoleTool, tail[i].Role)
		assert.Equal(t, id, tail[i].ToolCallID)
	}
	assert.NotEmpty(t, res.Metadata["last_tool_execution"])
}

func TestRunFillsMissingCallIDs(t *testing.T) {
	model := &scriptedModel{responses: []models.Model_Response{
		callResponse("", models.FunctionCall{Name: "echo"}),
	}}
	c := newTestController(t, model, echoTool("echo"))

	res := c.Run(context.Background(), RunInput{Message: "go"})

	require.Len(t, res.ToolResults, 1)
	id := res.ToolResults[0].CallID
	assert.NotEmpty(t, id)
	assistant := res.Messages[res.TurnStart+1]
	assert.Equal(t, id, assistant.ToolCalls[0].ID)
}

func TestRunCapStopsNewRound(t *testing.T) {
	round := callResponse("", call("", "echo", nil))
	model := &scriptedModel{responses: []models.Model_Response{round, round, round, round}}
	c := newTestController(t, model, echoTool("echo"))
	c.MaxIterations = 2

	res := c.Run(context.Background(), RunInput{Message: "loop"})

	assert.Equal(t, 2, res.ToolCallCount)
	assert.Equal(t, 3, model.callCount())
	assert.Empty(t, res.Error)
	last := res.Messages[len(res.Messages)-1]
	assert.True(t, last.HasToolCalls(), "the run ends with the last assistant message as-is")
}

func TestRunCapAllowsOvershootWithinRound(t *testing.T) {
	model := &scriptedModel{responses: []models.Model_Response{
		callResponse("", call("a", "echo", nil), call("b", "echo", nil)),
		callResponse("", call("c", "echo", nil)),
	}}
	c := newTestController(t, model, echoTool("echo"))
	c.MaxIterations = 1

	res := c.Run(context.Background(), RunInput{Message: "two"})

	assert.Equal(t, 2, res.ToolCallCount)
	assert.Len(t, res.ToolResults, 2)
	assert.Equal(t, 2, model.callCount())
}

func TestRunPanickingToolDoesNotAbort(t *testing.T) {
	model := &scriptedModel{responses: []models.Model_Response{
		callResponse("", call("p", "explode", nil)),
		textResponse("recovered"),
	}}
	c := newTestController(t, model, panickingTool("explode"))

	res := c.Run(context.Background(), RunInput{Message: "go"})

	assert.Equal(t, "recovered", res.Output)
	assert.Empty(t, res.Error)
	require.Len(t, res.ToolResults, 1)
	assert.False(t, res.ToolResults[0].Succeeded)
	assert.Contains(t, res.ToolResults[0].Output, "panicked")
}

func TestRunUnknownToolContinues(t *testing.T) {
	model := &scriptedModel{responses: []models.Model_Response{
		callResponse("", call("x", "nonexistent_tool", nil)),
		textResponse("sorry, no such tool"),
	}}
	c := newTestController(t, model, echoTool("echo"))

	res := c.Run(context.Background(), RunInput{Message: "go"})

	require.Len(t, res.ToolResults, 1)
	assert.False(t, res.ToolResults[0].Succeeded)
	assert.Contains(t, res.ToolResults[0].Output, "unknown tool")
	assert.Equal(t, 2, model.callCount(), "another dispatch follows the failed call")
	assert.Equal(t, "sorry, no such tool", res.Output)
}

func TestRunModelFailure(t *testing.T) {
	model := &scriptedModel{err: errors.New("rate limited")}
	tool := stubTool{name: "echo", fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		t.Fatal("no tool may run after a model failure")
		return nil, nil
	}}
	c := newTestController(t, model, tool)

	res := c.Run(context.Background(), RunInput{Message: "go"})

	assert.Equal(t, "rate limited", res.Error)
	assert.Equal(t, 1, model.callCount(), "model failures are not retried")
	assert.Equal(t, 0, res.ToolCallCount)
	assert.Contains(t, res.Output, "Sorry, an error occurred while processing your request: rate limited")
	assert.Equal(t, true, res.Metadata["error_handled"])
	assert.NotEmpty(t, res.Metadata["error_time"])
}

func TestRunModelFailureKeepsEarlierResults(t *testing.T) {
	model := &scriptedModel{responses: []models.Model_Response{callResponse("", call("c1", "echo", nil))}}
	c := newTestController(t, model, echoTool("echo"))
	c.Model = &failAfter{scriptedModel: model, after: 1}

	res := c.Run(context.Background(), RunInput{Message: "go"})

	assert.NotEmpty(t, res.Error)
	assert.Equal(t, 1, res.ToolCallCount)
	var roles []string
	for _, m := range res.NewMessages() {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"user", "assistant", "tool", "assistant"}, roles)
}

// failAfter fails every request after the first n.
type failAfter struct {
	*scriptedModel
	after int
}

func (f *failAfter) Model_Request(ctx context.Context, msgs []models.Message, tools []models.FunctionDeclaration) (models.Model_Response, error) {
	if f.callCount() >= f.after {
		return models.Model_Response{}, errors.New("upstream closed")
	}
	return f.scriptedModel.Model_Request(ctx, msgs, tools)
}

func TestRunCancelledContext(t *testing.T) {
	model := &scriptedModel{}
	c := newTestController(t, model)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Run(ctx, RunInput{Message: "go"})

	assert.True(t, strings.HasPrefix(res.Error, "run cancelled"))
	assert.Equal(t, 0, model.callCount())
}

func TestRunCancelledWhileInvoking(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	model := &scriptedModel{responses: []models.Model_Response{callResponse("", call("c1", "stop", nil))}}
	stop := stubTool{name: "stop", fn: func(context.Context, map[string]interface{}) (interface{}, error) {
		cancel()
		return "stopped", nil
	}}
	c := newTestController(t, model, stop)

	res := c.Run(ctx, RunInput{Message: "go"})

	assert.Contains(t, res.Error, "run cancelled")
	assert.Equal(t, 1, res.ToolCallCount, "results are still folded in")
	assert.Equal(t, 1, model.callCount())
}

func TestRunDeterministicReplay(t *testing.T) {
	script := func() *scriptedModel {
		return &scriptedModel{responses: []models.Model_Response{
			callResponse("thinking", call("c1", "echo", map[string]interface{}{"value": "x"})),
			textResponse("final"),
		}}
	}
	first := newTestController(t, script(), echoTool("echo")).Run(context.Background(), RunInput{Message: "same"})
	second := newTestController(t, script(), echoTool("echo")).Run(context.Background(), RunInput{Message: "same"})

	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, first.ToolResults, second.ToolResults)
}

func TestRunTruncatesStepOutput(t *testing.T) {
	long := strings.Repeat("é", 800)
	model := &scriptedModel{responses: []models.Model_Response{callResponse("", call("c1", "big", nil))}}
	big := stubTool{name: "big", fn: func(context.Context, map[string]interface{}) (interface{}, error) { return long, nil }}
	c := newTestController(t, model, big)

	res := c.Run(context.Background(), RunInput{Message: "go"})

	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, StepOutputLimit, len([]rune(res.ToolResults[0].Output)))
	assert.Equal(t, long, res.Messages[res.TurnStart+2].Content, "the transcript keeps the full output")
}

func TestStreamEvents(t *testing.T) {
	model := &scriptedModel{responses: []models.Model_Response{
		callResponse("Let me check. ", call("c1", "echo", map[string]interface{}{"value": "a"}), call("c2", "echo", nil)),
		textResponse("Done"),
	}}
	c := newTestController(t, model, echoTool("echo"))
	c.Invoker.Parallelism = 1

	events := collect(c.Stream(context.Background(), RunInput{Message: "go"}))

	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"token", "tool_start", "tool_end", "tool_start", "tool_end", "token", "done"}, types)
	assert.Equal(t, "echo", events[1].Tool)
	assert.Equal(t, map[string]interface{}{"value": "a"}, events[1].Input)
	assert.Equal(t, `{"echo":"a"}`, events[2].Output)
	assert.Equal(t, "Let me check. Done", events[len(events)-1].Output)
	assert.Empty(t, events[len(events)-1].Content)
}

func TestStreamToolEndIsNotHeldBySlowerCalls(t *testing.T) {
	release := make(chan struct{})
	slow := stubTool{name: "slow", fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "slow result", nil
	}}
	model := &scriptedModel{responses: []models.Model_Response{
		callResponse("", call("s", "slow", nil), call("f", "fast", map[string]interface{}{"value": 1})),
		textResponse("both finished"),
	}}
	c := newTestController(t, model, slow, echoTool("fast"))

	events := make(chan models.Stream_Event, 16)
	done := make(chan RunResult, 1)
	go func() {
		done <- c.RunStream(context.Background(), RunInput{Message: "go"}, func(ev models.Stream_Event) error {
			events <- ev
			return nil
		})
	}()

	var before []string
	timeout := time.After(5 * time.Second)
wait:
	for {
		select {
		case ev := <-events:
			before = append(before, ev.Type+" "+ev.Tool)
			if ev.Type == models.EventToolEnd {
				break wait
			}
		case <-timeout:
			close(release)
			t.Fatalf("no tool_end while the slow call was blocked, got %v", before)
		}
	}
	close(release)
	res := <-done

	require.Len(t, before, 3)
	assert.ElementsMatch(t, []string{"tool_start slow", "tool_start fast"}, before[:2])
	assert.Equal(t, "tool_end fast", before[2])

	assert.Equal(t, "both finished", res.Output)
	require.Len(t, res.ToolResults, 2)
	assert.Equal(t, "s", res.ToolResults[0].CallID, "results keep request order")
	assert.Equal(t, "f", res.ToolResults[1].CallID)
}

func TestStreamModelFailureEmitsSingleError(t *testing.T) {
	model := &scriptedModel{err: errors.New("stream broke")}
	c := newTestController(t, model)

	events := collect(c.Stream(context.Background(), RunInput{Message: "go"}))

	require.Len(t, events, 1)
	assert.Equal(t, models.EventError, events[0].Type)
	assert.Equal(t, "stream broke", events[0].Message)
}

// brokenStream sends one text fragment and then fails.
type brokenStream struct {
	scriptedModel
	fragment string
	err      error
}

func (b *brokenStream) Stream_Model_Request(ctx context.Context, msgs []models.Message, tools []models.FunctionDeclaration) (<-chan models.Model_Response, <-chan error) {
	respCh := make(chan models.Model_Response, 1)
	errCh := make(chan error, 1)
	respCh <- textResponse(b.fragment)
	errCh <- b.err
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func TestStreamModelFailureAfterTokens(t *testing.T) {
	model := &brokenStream{fragment: "partial ", err: errors.New("connection reset")}
	c := newTestController(t, model)

	var events []models.Stream_Event
	res := c.RunStream(context.Background(), RunInput{Message: "go"}, func(ev models.Stream_Event) error {
		events = append(events, ev)
		return nil
	})

	require.Len(t, events, 2)
	assert.Equal(t, models.Stream_Event{Type: models.EventToken, Content: "partial "}, events[0])
	assert.Equal(t, models.Stream_Event{Type: models.EventError, Message: "connection reset"}, events[1])

	assert.Equal(t, "connection reset", res.Error)
	assert.Contains(t, res.Output, "Sorry, an error occurred while processing your request: connection reset")
	assert.Equal(t, 0, res.ToolCallCount)
}

func TestStreamExactlyOneTerminalEvent(t *testing.T) {
	model := &scriptedModel{responses: []models.Model_Response{
		callResponse("", call("c1", "fail", nil)),
		textResponse("ok"),
	}}
	c := newTestController(t, model, failingTool("fail"))

	terminal := 0
	for _, ev := range collect(c.Stream(context.Background(), RunInput{Message: "go"})) {
		if ev.Terminal() {
			terminal++
			assert.Equal(t, models.EventDone, ev.Type)
		}
	}
	assert.Equal(t, 1, terminal)
}

func TestRunStreamEmitFailureCancels(t *testing.T) {
	model := &scriptedModel{responses: []models.Model_Response{
		callResponse("a", call("c1", "echo", nil)),
	}}
	c := newTestController(t, model, echoTool("echo"))

	var seen []string
	res := c.RunStream(context.Background(), RunInput{Message: "go"}, func(ev models.Stream_Event) error {
		seen = append(seen, ev.Type)
		if ev.Type == models.EventToken {
			return errors.New("client gone")
		}
		return nil
	})

	assert.Contains(t, res.Error, "run cancelled")
	assert.Equal(t, 0, res.ToolCallCount)
	assert.Equal(t, []string{"token", "error"}, seen)
}
