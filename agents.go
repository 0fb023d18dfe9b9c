package opsagent

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/Desarso/opsagent/common_tools"
	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/sessions"
)

// Agent kinds.
const (
	AgentGeneral = "general"
	AgentDocs    = "docs"
	AgentSheet   = "sheet"
	AgentEmail   = "email"
	AgentMulti   = "multi"
)

// AgentSpec fixes the model, prompt, tools and cap of one agent kind.
type AgentSpec struct {
	Kind          string
	Name          string
	Description   string
	DefaultModel  string
	SystemPrompt  string
	MaxIterations int
	// Tools is nil for the general agent, whose tools are chosen per request.
	Tools []string
}

const generalPrompt = `You are an operations assistant for a small startup team.

You help with three kinds of work:
1. Documents: create, search, analyze and summarize them.
2. Spreadsheets: analyze data, answer questions about it and compute statistics.
3. Email: analyze, translate and draft replies.

Use the available tools whenever they help answer the request.`

var agentSpecs = map[string]AgentSpec{
	AgentGeneral: {
		Kind:          AgentGeneral,
		Name:          "General Assistant",
		Description:   "General purpose assistant using the tools chosen by the caller",
		DefaultModel:  DefaultModel,
		SystemPrompt:  generalPrompt,
		MaxIterations: 10,
	},
	AgentDocs: {
		Kind:         AgentDocs,
		Name:         "Document Agent",
		Description:  "Creates, searches, analyzes and maintains project documents",
		DefaultModel: "gpt-4o",
		SystemPrompt: `You are a document management assistant.

You can write documents of any kind (analyses, summaries, reports, meeting notes), search them by
keyword, analyze and summarize their content, and update, list or archive them.
Pick the right tool for each request and explain clearly what was done.`,
		MaxIterations: 10,
		Tools:         common_tools.DocsToolNames,
	},
	AgentSheet: {
		Kind:         AgentSheet,
		Name:         "Spreadsheet Agent",
		Description:  "Builds spreadsheets and analyzes their data",
		DefaultModel: "gpt-4o",
		SystemPrompt: `You are a spreadsheet and data analysis assistant.

You can create sheets and define their columns, add rows, update cells and add columns, compute
statistics, spot trends and outliers, and answer questions about the data in plain language.
Back every insight with concrete numbers and keep complex findings easy to follow.`,
		MaxIterations: 10,
		Tools:         common_tools.SheetToolNames,
	},
	AgentEmail: {
		Kind:         AgentEmail,
		Name:         "Email Agent",
		Description:  "Reads, analyzes, translates and answers email",
		DefaultModel: "grok-3-fast",
		SystemPrompt: `You are an email assistant.

You can list and read messages, rate their urgency and sentiment, extract action items, translate
them, draft replies in a suitable tone, and summarize the inbox.
When analyzing, state the priority and the action required. When drafting, match the tone to the situation.`,
		MaxIterations: 10,
		Tools:         common_tools.EmailToolNames,
	},
	AgentMulti: {
		Kind:         AgentMulti,
		Name:         "Multi-tool Agent",
		Description:  "Combines documents, spreadsheets, email, web search and a calculator for complex tasks",
		DefaultModel: "gpt-4o",
		SystemPrompt: `You are an operations assistant covering every area of a startup.

Available tool groups:
1. Documents (ai_docs_*)
2. Spreadsheets (ai_sheet_*)
3. Email (email_*)
4. Web search (web_search)
5. Calculator (calculator)

Combine several tools for complex tasks and report progress after each step.`,
		MaxIterations: 15,
		Tools:         common_tools.AllToolNames(),
	},
}

// AgentKinds returns the valid agent kinds in sorted order.
func AgentKinds() []string {
	kinds := make([]string, 0, len(agentSpecs))
	for k := range agentSpecs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// LookupAgent returns the AgentSpec registered for kind.
func LookupAgent(kind string) (AgentSpec, error) {
	spec, ok := agentSpecs[kind]
	if !ok {
		return AgentSpec{}, fmt.Errorf("unknown agent type %q (valid types: %s)", kind, strings.Join(AgentKinds(), ", "))
	}
	return spec, nil
}

// Agents lists the agent kinds advertised by GET /agents.
func Agents() []models.AgentInfo {
	infos := make([]models.AgentInfo, 0, len(agentSpecs))
	for _, kind := range AgentKinds() {
		spec := agentSpecs[kind]
		tools := spec.Tools
		if tools == nil {
			tools = []string{}
		}
		infos = append(infos, models.AgentInfo{
			Type:         spec.Kind,
			Name:         spec.Name,
			Description:  spec.Description,
			DefaultModel: spec.DefaultModel,
			Tools:        tools,
		})
	}
	return infos
}

// AgentOptions customizes one agent instance.
type AgentOptions struct {
	Model        string
	Temperature  *float64
	SystemPrompt string // general agent only
	Tools        []string
	// DefaultModel replaces the general agent's default model.
	DefaultModel  string
	MaxIterations int

	Catalog     *common_tools.Registry
	Parallelism int
	Approver    sessions.ToolApprover
	Traces      sessions.TraceRecorder

	// NewModel defaults to Create_Model.
	NewModel func(name string, temperature *float64) (models.Model, error)
}

// Create_Agent builds a turn controller for kind.
func Create_Agent(kind string, opts AgentOptions) (*sessions.Controller, error) {
	spec, err := LookupAgent(kind)
	if err != nil {
		return nil, err
	}

	modelName := opts.Model
	if modelName == "" && kind == AgentGeneral && opts.DefaultModel != "" {
		modelName = opts.DefaultModel
	}
	if modelName == "" {
		modelName = spec.DefaultModel
	}
	newModel := opts.NewModel
	if newModel == nil {
		newModel = Create_Model
	}
	model, err := newModel(modelName, opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("failed to create model %s: %w", modelName, err)
	}

	names := spec.Tools
	if spec.Tools == nil {
		names = opts.Tools
	}
	catalog := opts.Catalog
	if catalog == nil {
		if catalog, err = common_tools.NewRegistry(); err != nil {
			return nil, err
		}
	}
	tools, err := catalog.Subset(names...)
	if err != nil {
		return nil, fmt.Errorf("failed to select tools for %s agent: %w", kind, err)
	}

	prompt := spec.SystemPrompt
	if kind == AgentGeneral && opts.SystemPrompt != "" {
		prompt = opts.SystemPrompt
	}
	maxIter := spec.MaxIterations
	if kind == AgentGeneral && opts.MaxIterations > 0 {
		maxIter = opts.MaxIterations
	}

	invoker := sessions.NewInvoker(tools)
	invoker.Logger = log.New(os.Stdout, fmt.Sprintf("[TOOLS %s] ", kind), log.LstdFlags)
	if opts.Parallelism > 0 {
		invoker.Parallelism = opts.Parallelism
	}
	invoker.Approver = opts.Approver
	invoker.Traces = opts.Traces

	ctrl := sessions.NewController(model, modelName, invoker)
	ctrl.SystemPrompt = prompt
	ctrl.MaxIterations = maxIter
	ctrl.Logger = log.New(os.Stdout, fmt.Sprintf("[RUN %s] ", kind), log.LstdFlags)
	return ctrl, nil
}
