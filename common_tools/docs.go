package common_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/stores"
	"gorm.io/datatypes"
)

// DocsToolNames lists the document tools in catalog order.
var DocsToolNames = []string{
	"ai_docs_create",
	"ai_docs_search",
	"ai_docs_get",
	"ai_docs_analyze",
	"ai_docs_update",
	"ai_docs_list",
	"ai_docs_delete",
}

var docTypes = []string{"analysis", "summary", "report", "research", "transcript", "meeting_notes", "deliverable", "other"}

const (
	autoSummaryThreshold = 200
	analysisContentLimit = 8000
)

var docAnalysisPrompts = map[string]string{
	"summary": `Summarize the core content of the following document in 3-5 sentences.

Title: %s
Type: %s
Content:
%s

Summary:`,
	"key_points": `Extract 5-7 key points from the following document as bullet points.

Title: %s
Type: %s
Content:
%s

Key points:`,
	"action_items": `Extract the action items from the following document, ordered by priority.

Title: %s
Type: %s
Content:
%s

Action items:`,
	"sentiment": `Analyze the overall tone and sentiment of the following document (positive/negative/neutral, urgency, importance).

Title: %s
Type: %s
Content:
%s

Analysis:`,
	"full": `Analyze the following document comprehensively:
1. Core summary (3-5 sentences)
2. Main points (5-7)
3. Action items (if any)
4. Tone and sentiment
5. Additional insights

Title: %s
Type: %s
Content:
%s

Analysis:`,
}

type docsTools struct {
	store *stores.WorkspaceStore
	llm   Completer
}

// DocsTools returns the document tools backed by the workspace store. llm
// writes summaries and analyses; it may be nil.
func DocsTools(store *stores.WorkspaceStore, llm Completer) []models.Tool {
	d := &docsTools{store: store, llm: llm}
	return []models.Tool{
		NewTool(models.FunctionDeclaration{
			Name:        "ai_docs_create",
			Description: "Create a new document in a project. A summary is generated when none is given.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"project_id":  stringProp("Project ID to create the document in"),
					"title":       stringProp("Document title"),
					"content":     stringProp("Document content (markdown supported)"),
					"doc_type":    enumProp("Type of document", docTypes...),
					"summary":     stringProp("Optional short summary for list views"),
					"tags":        arrayProp("Optional tags", map[string]interface{}{"type": "string"}),
					"source_url":  stringProp("Optional source URL"),
					"source_type": stringProp("Optional source type (youtube, web, document, ...)"),
				},
				Required: []string{"project_id", "title", "content"},
			},
		}, d.create),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_docs_search",
			Description: "Search published documents in a project by keyword in title or content.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"project_id": stringProp("Project ID to search in"),
					"query":      stringProp("Search keyword"),
					"doc_type":   enumProp("Optional document type filter", docTypes...),
					"limit":      intProp("Maximum number of results (default 10)"),
				},
				Required: []string{"project_id", "query"},
			},
		}, d.search),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_docs_get",
			Description: "Get a document by ID with full content.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{"doc_id": stringProp("Document ID")},
				Required:   []string{"doc_id"},
			},
		}, d.get),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_docs_analyze",
			Description: "Analyze a document with AI.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"doc_id":        stringProp("Document ID to analyze"),
					"analysis_type": enumProp("Type of analysis (default summary)", "summary", "key_points", "action_items", "sentiment", "full"),
				},
				Required: []string{"doc_id"},
			},
		}, d.analyze),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_docs_update",
			Description: "Update a document's title, content, summary, tags or status.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"doc_id":  stringProp("Document ID"),
					"title":   stringProp("New title"),
					"content": stringProp("New content"),
					"summary": stringProp("New summary"),
					"tags":    arrayProp("New tags", map[string]interface{}{"type": "string"}),
					"status":  enumProp("New status", stores.DocStatusDraft, stores.DocStatusPublished, stores.DocStatusArchived),
				},
				Required: []string{"doc_id"},
			},
		}, d.update),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_docs_list",
			Description: "List documents in a project.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"project_id": stringProp("Project ID"),
					"doc_type":   enumProp("Optional document type filter", docTypes...),
					"status":     enumProp("Optional status filter", stores.DocStatusDraft, stores.DocStatusPublished, stores.DocStatusArchived),
					"limit":      intProp("Number of results (default 20)"),
					"offset":     intProp("Pagination offset"),
				},
				Required: []string{"project_id"},
			},
		}, d.list),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_docs_delete",
			Description: "Archive a document (soft delete).",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{"doc_id": stringProp("Document ID")},
				Required:   []string{"doc_id"},
			},
		}, d.remove),
	}
}

type docsCreateRequest struct {
	ProjectID  string   `json:"project_id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	DocType    string   `json:"doc_type"`
	Summary    string   `json:"summary"`
	Tags       []string `json:"tags"`
	SourceURL  string   `json:"source_url"`
	SourceType string   `json:"source_type"`
}

func (d *docsTools) create(ctx context.Context, req docsCreateRequest) (interface{}, error) {
	summary := req.Summary
	if summary == "" && len([]rune(req.Content)) > autoSummaryThreshold {
		summary = d.autoSummary(ctx, req.Content)
	}
	docType := req.DocType
	if docType == "" {
		docType = stores.DefaultDocType
	}

	doc := &stores.Document{
		ProjectID:     req.ProjectID,
		Title:         req.Title,
		Content:       req.Content,
		Summary:       summary,
		DocType:       docType,
		Tags:          jsonColumn(nonNilStrings(req.Tags)),
		SourceURL:     req.SourceURL,
		SourceType:    req.SourceType,
		CreatedByType: "agent",
		Status:        stores.DocStatusPublished,
		Metadata:      datatypes.JSON("{}"),
	}
	if err := d.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	return success(Result{
		"document": Result{
			"id":         doc.ID,
			"title":      doc.Title,
			"doc_type":   doc.DocType,
			"summary":    doc.Summary,
			"created_at": doc.CreatedAt,
		},
		"message": fmt.Sprintf("Document '%s' created.", doc.Title),
	}), nil
}

func (d *docsTools) autoSummary(ctx context.Context, content string) string {
	prompt := "Summarize the key content of this document in 2-3 sentences. Output only the summary.\n\n" + truncate(content, 3000)
	summary, err := complete(ctx, d.llm, prompt)
	if err != nil {
		logger.Printf("auto-summary failed, falling back to excerpt: %v", err)
		return truncate(content, autoSummaryThreshold) + "..."
	}
	return truncate(summary, 500)
}

type docsSearchRequest struct {
	ProjectID string `json:"project_id"`
	Query     string `json:"query"`
	DocType   string `json:"doc_type"`
	Limit     int    `json:"limit"`
}

func (d *docsTools) search(ctx context.Context, req docsSearchRequest) (interface{}, error) {
	docs, err := d.store.SearchDocuments(ctx, stores.DocumentFilter{
		ProjectID: req.ProjectID,
		Query:     req.Query,
		DocType:   req.DocType,
		Limit:     req.Limit,
	})
	if err != nil {
		return nil, err
	}

	out := Result{"documents": docListing(docs), "count": len(docs), "query": req.Query}
	if len(docs) == 0 {
		out["message"] = fmt.Sprintf("No documents found for '%s'.", req.Query)
	}
	return success(out), nil
}

type docIDRequest struct {
	DocID string `json:"doc_id"`
}

func (d *docsTools) get(ctx context.Context, req docIDRequest) (interface{}, error) {
	doc, err := d.store.GetDocument(ctx, req.DocID)
	if err != nil {
		return nil, err
	}
	return success(Result{"document": doc}), nil
}

type docsAnalyzeRequest struct {
	DocID        string `json:"doc_id"`
	AnalysisType string `json:"analysis_type"`
}

func (d *docsTools) analyze(ctx context.Context, req docsAnalyzeRequest) (interface{}, error) {
	doc, err := d.store.GetDocument(ctx, req.DocID)
	if err != nil {
		return nil, err
	}

	analysisType := req.AnalysisType
	template, ok := docAnalysisPrompts[analysisType]
	if !ok {
		analysisType = "summary"
		template = docAnalysisPrompts[analysisType]
	}

	prompt := fmt.Sprintf(template, doc.Title, doc.DocType, truncate(doc.Content, analysisContentLimit))
	analysis, err := complete(ctx, d.llm, prompt)
	if err != nil {
		return nil, fmt.Errorf("document analysis failed: %w", err)
	}

	return success(Result{
		"document_id":    doc.ID,
		"document_title": doc.Title,
		"analysis_type":  analysisType,
		"analysis":       analysis,
	}), nil
}

type docsUpdateRequest struct {
	DocID   string   `json:"doc_id"`
	Title   *string  `json:"title"`
	Content *string  `json:"content"`
	Summary *string  `json:"summary"`
	Tags    []string `json:"tags"`
	Status  *string  `json:"status"`
}

func (d *docsTools) update(ctx context.Context, req docsUpdateRequest) (interface{}, error) {
	fields := map[string]interface{}{}
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.Content != nil {
		fields["content"] = *req.Content
	}
	if req.Summary != nil {
		fields["summary"] = *req.Summary
	}
	if req.Tags != nil {
		fields["tags"] = jsonColumn(req.Tags)
	}
	if req.Status != nil {
		switch *req.Status {
		case stores.DocStatusDraft, stores.DocStatusPublished, stores.DocStatusArchived:
			fields["status"] = *req.Status
		default:
			return nil, fmt.Errorf("invalid status: %s", *req.Status)
		}
	}

	doc, err := d.store.UpdateDocument(ctx, req.DocID, fields)
	if err != nil {
		return nil, err
	}
	return success(Result{
		"document": Result{"id": doc.ID, "title": doc.Title, "status": doc.Status, "updated_at": doc.UpdatedAt},
		"message":  "Document updated.",
	}), nil
}

type docsListRequest struct {
	ProjectID string `json:"project_id"`
	DocType   string `json:"doc_type"`
	Status    string `json:"status"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
}

func (d *docsTools) list(ctx context.Context, req docsListRequest) (interface{}, error) {
	docs, err := d.store.ListDocuments(ctx, stores.DocumentFilter{
		ProjectID: req.ProjectID,
		DocType:   req.DocType,
		Status:    req.Status,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
	if err != nil {
		return nil, err
	}
	return success(Result{"documents": docListing(docs), "count": len(docs)}), nil
}

func (d *docsTools) remove(ctx context.Context, req docIDRequest) (interface{}, error) {
	if err := d.store.ArchiveDocument(ctx, req.DocID); err != nil {
		return nil, err
	}
	return success(Result{"document_id": req.DocID, "message": "Document archived."}), nil
}

// docListing drops document bodies from list and search results.
func docListing(docs []stores.Document) []Result {
	out := make([]Result, 0, len(docs))
	for _, doc := range docs {
		out = append(out, Result{
			"id":         doc.ID,
			"title":      doc.Title,
			"summary":    doc.Summary,
			"doc_type":   doc.DocType,
			"tags":       doc.Tags,
			"status":     doc.Status,
			"created_at": doc.CreatedAt,
		})
	}
	return out
}

func jsonColumn(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
