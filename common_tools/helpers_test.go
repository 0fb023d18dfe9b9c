package common_tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/stores"
	"github.com/stretchr/testify/require"
)

func newWorkspace(t *testing.T) *stores.WorkspaceStore {
	t.Helper()
	db, err := stores.NewSQLiteStoreSimple(filepath.Join(t.TempDir(), "workspace.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ws, err := stores.NewWorkspaceStore(db.DB())
	require.NoError(t, err)
	return ws
}

// fakeCompleter returns a canned answer and records every prompt.
type fakeCompleter struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func (f *fakeCompleter) ModelName() string { return "fake-model" }

func (f *fakeCompleter) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func findTool(t *testing.T, tools []models.Tool, name string) models.Tool {
	t.Helper()
	for _, tool := range tools {
		if tool.Declaration().Name == name {
			return tool
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

// invoke calls a tool and decodes its payload as generic JSON.
func invoke(t *testing.T, tool models.Tool, args, runContext map[string]interface{}) map[string]interface{} {
	t.Helper()
	out, err := tool.Invoke(context.Background(), args, runContext)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out.String()), &decoded))
	require.Equal(t, true, decoded["success"])
	return decoded
}
