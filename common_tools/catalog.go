package common_tools

import (
	"fmt"

	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/stores"
)

// CatalogDeps are the backends the catalog tools run against.
type CatalogDeps struct {
	Workspace *stores.WorkspaceStore
	Completer Completer
	Search    *BraveClient
}

// NewCatalog registers every tool: docs, sheets, email, web_search and
// calculator. The workspace groups are skipped when no workspace is given.
func NewCatalog(deps CatalogDeps) (*Registry, error) {
	var tools []models.Tool
	if deps.Workspace != nil {
		tools = append(tools, DocsTools(deps.Workspace, deps.Completer)...)
		tools = append(tools, SheetTools(deps.Workspace, deps.Completer)...)
		tools = append(tools, EmailTools(deps.Workspace, deps.Completer)...)
	}
	tools = append(tools, WebSearchTool(deps.Search), CalculatorTool())

	reg, err := NewRegistry(tools...)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool catalog: %w", err)
	}
	return reg, nil
}

// AllToolNames lists every catalog tool name in catalog order.
func AllToolNames() []string {
	names := make([]string, 0, len(DocsToolNames)+len(SheetToolNames)+len(EmailToolNames)+2)
	names = append(names, DocsToolNames...)
	names = append(names, SheetToolNames...)
	names = append(names, EmailToolNames...)
	return append(names, "web_search", "calculator")
}
