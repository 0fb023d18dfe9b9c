package common_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Desarso/opsagent/models"
)

// Completer answers a single prompt. The LLM-backed tools (analyze,
// translate, draft, query, summarize) depend on it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelCompleter runs a one-shot, tool-less request against a model.
type ModelCompleter struct {
	Model models.Model
	Name  string
}

func (c *ModelCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Model.Model_Request(ctx, []models.Message{models.NewUserMessage(prompt)}, nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("model returned an empty completion")
	}
	return text, nil
}

func (c *ModelCompleter) ModelName() string { return c.Name }

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func complete(ctx context.Context, c Completer, prompt string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("no analysis model configured")
	}
	return c.Complete(ctx, prompt)
}

func completerName(c Completer) string {
	if named, ok := c.(interface{ ModelName() string }); ok {
		return named.ModelName()
	}
	return ""
}
