package common_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/stores"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SheetToolNames lists the spreadsheet tools in catalog order.
var SheetToolNames = []string{
	"ai_sheet_create",
	"ai_sheet_get",
	"ai_sheet_add_rows",
	"ai_sheet_update_cell",
	"ai_sheet_analyze",
	"ai_sheet_query",
	"ai_sheet_add_column",
	"ai_sheet_list",
}

var columnTypes = []string{"text", "number", "date", "select", "multiselect", "checkbox", "url", "email"}

const (
	defaultColumnWidth = 150
	analyzePreviewRows = 20
	queryPreviewRows   = 50
)

// SheetColumn describes one spreadsheet column.
type SheetColumn struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Width   int      `json:"width,omitempty"`
	Options []string `json:"options,omitempty"`
}

func defaultColumns() []SheetColumn {
	return []SheetColumn{
		{ID: "col_a", Name: "A", Type: "text", Width: defaultColumnWidth},
		{ID: "col_b", Name: "B", Type: "text", Width: defaultColumnWidth},
		{ID: "col_c", Name: "C", Type: "text", Width: defaultColumnWidth},
	}
}

var sheetAnalysisFocus = map[string]string{
	"summary":     "1. Data overview\n2. Key findings\n3. Data quality issues (if any)\n4. Recommended actions",
	"statistics":  "1. Detailed statistics per column\n2. Distribution characteristics\n3. Possible outliers\n4. Data patterns",
	"trends":      "1. Changes over time (if there is a date column)\n2. Increasing or decreasing trends\n3. Patterns and seasonality\n4. Foreseeable future trends",
	"anomalies":   "1. Statistical outliers (values far from the mean)\n2. Possible data entry errors\n3. Unusual patterns\n4. Items that need further investigation",
	"correlation": "1. Correlations between columns\n2. Possible causal relationships\n3. Hidden patterns\n4. Business insights",
}

type sheetTools struct {
	store *stores.WorkspaceStore
	llm   Completer
}

// SheetTools returns the spreadsheet tools backed by the workspace store.
func SheetTools(store *stores.WorkspaceStore, llm Completer) []models.Tool {
	s := &sheetTools{store: store, llm: llm}
	sheetID := stringProp("Sheet ID")
	return []models.Tool{
		NewTool(models.FunctionDeclaration{
			Name:        "ai_sheet_create",
			Description: "Create a new spreadsheet. Columns default to A, B and C.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"team_id":     stringProp("Team ID"),
					"name":        stringProp("Sheet name"),
					"description": stringProp("Optional description"),
					"columns": arrayProp("Column definitions", map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"id":   stringProp("Column ID"),
							"name": stringProp("Column name"),
							"type": enumProp("Column type", columnTypes...),
						},
					}),
					"project_id": stringProp("Optional project ID to link"),
				},
				Required: []string{"team_id", "name"},
			},
		}, s.create),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_sheet_get",
			Description: "Get a spreadsheet with all columns and rows.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{"sheet_id": sheetID},
				Required:   []string{"sheet_id"},
			},
		}, s.get),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_sheet_add_rows",
			Description: "Append rows to a spreadsheet. Rows are objects keyed by column ID.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"sheet_id": sheetID,
					"rows":     arrayProp("Rows to add", map[string]interface{}{"type": "object"}),
				},
				Required: []string{"sheet_id", "rows"},
			},
		}, s.addRows),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_sheet_update_cell",
			Description: "Update a single cell value.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"sheet_id":  sheetID,
					"row_id":    stringProp("Row ID"),
					"column_id": stringProp("Column ID"),
					"value":     map[string]interface{}{"description": "New value"},
				},
				Required: []string{"sheet_id", "row_id", "column_id"},
			},
		}, s.updateCell),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_sheet_analyze",
			Description: "Compute column statistics and an AI analysis of spreadsheet data.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"sheet_id":      sheetID,
					"analysis_type": enumProp("Type of analysis (default summary)", "summary", "statistics", "trends", "anomalies", "correlation"),
					"column_ids":    arrayProp("Optional columns to analyze (default all)", map[string]interface{}{"type": "string"}),
				},
				Required: []string{"sheet_id"},
			},
		}, s.analyze),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_sheet_query",
			Description: "Answer a natural-language question about spreadsheet data.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"sheet_id": sheetID,
					"query":    stringProp("Question about the data"),
				},
				Required: []string{"sheet_id", "query"},
			},
		}, s.query),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_sheet_add_column",
			Description: "Add a column to a spreadsheet.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"sheet_id":    sheetID,
					"name":        stringProp("Column name"),
					"column_type": enumProp("Column type (default text)", "text", "number", "date", "select", "checkbox", "url", "email"),
					"options":     arrayProp("Options for select columns", map[string]interface{}{"type": "string"}),
				},
				Required: []string{"sheet_id", "name"},
			},
		}, s.addColumn),
		NewTool(models.FunctionDeclaration{
			Name:        "ai_sheet_list",
			Description: "List a team's spreadsheets with column and row counts.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"team_id":          stringProp("Team ID"),
					"include_archived": boolProp("Include archived sheets"),
				},
				Required: []string{"team_id"},
			},
		}, s.list),
	}
}

// sheetData decodes the JSON columns and rows of a sheet.
func sheetData(sheet *stores.Sheet) ([]SheetColumn, []map[string]interface{}, error) {
	var columns []SheetColumn
	var rows []map[string]interface{}
	if len(sheet.Columns) > 0 {
		if err := json.Unmarshal(sheet.Columns, &columns); err != nil {
			return nil, nil, fmt.Errorf("sheet %s has invalid columns: %w", sheet.ID, err)
		}
	}
	if len(sheet.Rows) > 0 {
		if err := json.Unmarshal(sheet.Rows, &rows); err != nil {
			return nil, nil, fmt.Errorf("sheet %s has invalid rows: %w", sheet.ID, err)
		}
	}
	return columns, rows, nil
}

// preview maps the first n rows to column names.
func preview(columns []SheetColumn, rows []map[string]interface{}, n int) []map[string]interface{} {
	if len(rows) > n {
		rows = rows[:n]
	}
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		named := make(map[string]interface{}, len(columns))
		for _, col := range columns {
			named[col.Name] = row[col.ID]
		}
		out = append(out, named)
	}
	return out
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

type sheetCreateRequest struct {
	TeamID      string        `json:"team_id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Columns     []SheetColumn `json:"columns"`
	ProjectID   string        `json:"project_id"`
}

func (s *sheetTools) create(ctx context.Context, req sheetCreateRequest) (interface{}, error) {
	columns := req.Columns
	if len(columns) == 0 {
		columns = defaultColumns()
	}

	sheet := &stores.Sheet{
		TeamID:      req.TeamID,
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		Columns:     jsonColumn(columns),
		Rows:        datatypes.JSON("[]"),
		Settings:    datatypes.JSON(`{"frozen_columns":0,"frozen_rows":0}`),
	}
	if err := s.store.CreateSheet(ctx, sheet); err != nil {
		return nil, err
	}

	return success(Result{
		"sheet": Result{
			"id":         sheet.ID,
			"name":       sheet.Name,
			"columns":    columns,
			"created_at": sheet.CreatedAt,
		},
		"message": fmt.Sprintf("Sheet '%s' created.", sheet.Name),
	}), nil
}

type sheetIDRequest struct {
	SheetID string `json:"sheet_id"`
}

func (s *sheetTools) get(ctx context.Context, req sheetIDRequest) (interface{}, error) {
	sheet, err := s.store.GetSheet(ctx, req.SheetID)
	if err != nil {
		return nil, err
	}
	return success(Result{"sheet": sheet}), nil
}

type sheetAddRowsRequest struct {
	SheetID string                   `json:"sheet_id"`
	Rows    []map[string]interface{} `json:"rows"`
}

func (s *sheetTools) addRows(ctx context.Context, req sheetAddRowsRequest) (interface{}, error) {
	sheet, err := s.store.GetSheet(ctx, req.SheetID)
	if err != nil {
		return nil, err
	}
	_, rows, err := sheetData(sheet)
	if err != nil {
		return nil, err
	}

	for _, row := range req.Rows {
		if _, ok := row["id"]; !ok {
			row["id"] = uuid.New().String()[:8]
		}
	}
	rows = append(rows, req.Rows...)

	if err := s.store.SaveSheetData(ctx, sheet.ID, nil, jsonColumn(rows)); err != nil {
		return nil, err
	}
	return success(Result{
		"added_count": len(req.Rows),
		"total_rows":  len(rows),
		"message":     fmt.Sprintf("%d rows added.", len(req.Rows)),
	}), nil
}

type sheetUpdateCellRequest struct {
	SheetID  string      `json:"sheet_id"`
	RowID    string      `json:"row_id"`
	ColumnID string      `json:"column_id"`
	Value    interface{} `json:"value"`
}

func (s *sheetTools) updateCell(ctx context.Context, req sheetUpdateCellRequest) (interface{}, error) {
	sheet, err := s.store.GetSheet(ctx, req.SheetID)
	if err != nil {
		return nil, err
	}
	_, rows, err := sheetData(sheet)
	if err != nil {
		return nil, err
	}

	updated := false
	for _, row := range rows {
		if fmt.Sprint(row["id"]) == req.RowID {
			row[req.ColumnID] = req.Value
			updated = true
			break
		}
	}
	if !updated {
		return nil, fmt.Errorf("row %s not found in sheet %s", req.RowID, req.SheetID)
	}

	if err := s.store.SaveSheetData(ctx, sheet.ID, nil, jsonColumn(rows)); err != nil {
		return nil, err
	}
	return success(Result{"row_id": req.RowID, "column_id": req.ColumnID, "message": "Cell updated."}), nil
}

type sheetAnalyzeRequest struct {
	SheetID      string   `json:"sheet_id"`
	AnalysisType string   `json:"analysis_type"`
	ColumnIDs    []string `json:"column_ids"`
}

func (s *sheetTools) analyze(ctx context.Context, req sheetAnalyzeRequest) (interface{}, error) {
	sheet, err := s.store.GetSheet(ctx, req.SheetID)
	if err != nil {
		return nil, err
	}
	columns, rows, err := sheetData(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s has no data to analyze", sheet.ID)
	}

	if len(req.ColumnIDs) > 0 {
		wanted := make(map[string]bool, len(req.ColumnIDs))
		for _, id := range req.ColumnIDs {
			wanted[id] = true
		}
		var filtered []SheetColumn
		for _, col := range columns {
			if wanted[col.ID] {
				filtered = append(filtered, col)
			}
		}
		columns = filtered
	}

	analysisType := req.AnalysisType
	focus, ok := sheetAnalysisFocus[analysisType]
	if !ok {
		analysisType = "summary"
		focus = sheetAnalysisFocus[analysisType]
	}

	stats := columnStatistics(columns, rows)
	names := make([]string, 0, len(columns))
	for _, col := range columns {
		names = append(names, col.Name)
	}

	prompt := fmt.Sprintf(`Analyze the following spreadsheet data (%s analysis).

Sheet name: %s
Columns: %s
Total rows: %d
Statistics: %s

Data sample (first %d rows):
%s

Cover:
%s`, analysisType, sheet.Name, mustJSON(names), len(rows), mustJSON(stats), analyzePreviewRows,
		mustJSON(preview(columns, rows, analyzePreviewRows)), focus)

	analysis, err := complete(ctx, s.llm, prompt)
	if err != nil {
		return nil, fmt.Errorf("sheet analysis failed: %w", err)
	}

	record := &stores.SheetAnalysis{
		SheetID:      sheet.ID,
		AnalysisType: analysisType,
		Results:      jsonColumn(Result{"statistics": stats, "ai_analysis": analysis}),
		ModelUsed:    completerName(s.llm),
	}
	if err := s.store.SaveSheetAnalysis(ctx, record); err != nil {
		logger.Printf("failed to save analysis for sheet %s: %v", sheet.ID, err)
	}

	return success(Result{
		"sheet_id":      sheet.ID,
		"sheet_name":    sheet.Name,
		"analysis_type": analysisType,
		"row_count":     len(rows),
		"statistics":    stats,
		"analysis":      analysis,
	}), nil
}

type sheetQueryRequest struct {
	SheetID string `json:"sheet_id"`
	Query   string `json:"query"`
}

func (s *sheetTools) query(ctx context.Context, req sheetQueryRequest) (interface{}, error) {
	sheet, err := s.store.GetSheet(ctx, req.SheetID)
	if err != nil {
		return nil, err
	}
	columns, rows, err := sheetData(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s has no data", sheet.ID)
	}

	colInfo := make([]map[string]string, 0, len(columns))
	for _, col := range columns {
		colInfo = append(colInfo, map[string]string{"name": col.Name, "type": col.Type})
	}

	prompt := fmt.Sprintf(`Answer the question using the spreadsheet data below.

Sheet name: %s
Columns: %s
Total rows: %d

Data:
%s

Question: %s

Answer from the actual data. Show the calculation when one is needed.`,
		sheet.Name, mustJSON(colInfo), len(rows), mustJSON(preview(columns, rows, queryPreviewRows)), req.Query)

	answer, err := complete(ctx, s.llm, prompt)
	if err != nil {
		return nil, fmt.Errorf("sheet query failed: %w", err)
	}

	analyzed := len(rows)
	if analyzed > queryPreviewRows {
		analyzed = queryPreviewRows
	}
	return success(Result{
		"query":              req.Query,
		"answer":             answer,
		"data_rows_analyzed": analyzed,
	}), nil
}

type sheetAddColumnRequest struct {
	SheetID    string   `json:"sheet_id"`
	Name       string   `json:"name"`
	ColumnType string   `json:"column_type"`
	Options    []string `json:"options"`
}

func (s *sheetTools) addColumn(ctx context.Context, req sheetAddColumnRequest) (interface{}, error) {
	sheet, err := s.store.GetSheet(ctx, req.SheetID)
	if err != nil {
		return nil, err
	}
	columns, _, err := sheetData(sheet)
	if err != nil {
		return nil, err
	}

	colType := req.ColumnType
	if colType == "" {
		colType = "text"
	}
	col := SheetColumn{
		ID:    fmt.Sprintf("col_%d", len(columns)+1),
		Name:  req.Name,
		Type:  colType,
		Width: defaultColumnWidth,
	}
	if colType == "select" && len(req.Options) > 0 {
		col.Options = req.Options
	}
	columns = append(columns, col)

	if err := s.store.SaveSheetData(ctx, sheet.ID, jsonColumn(columns), nil); err != nil {
		return nil, err
	}
	return success(Result{"column": col, "message": fmt.Sprintf("Column '%s' added.", col.Name)}), nil
}

type sheetListRequest struct {
	TeamID          string `json:"team_id"`
	IncludeArchived bool   `json:"include_archived"`
}

func (s *sheetTools) list(ctx context.Context, req sheetListRequest) (interface{}, error) {
	sheets, err := s.store.ListSheets(ctx, req.TeamID, req.IncludeArchived)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(sheets))
	for i := range sheets {
		sheet := &sheets[i]
		entry := Result{
			"id":          sheet.ID,
			"name":        sheet.Name,
			"description": sheet.Description,
			"created_at":  sheet.CreatedAt,
			"updated_at":  sheet.UpdatedAt,
			"is_archived": sheet.IsArchived,
		}
		if columns, rows, err := sheetData(sheet); err == nil {
			entry["column_count"] = len(columns)
			entry["row_count"] = len(rows)
		}
		out = append(out, entry)
	}
	return success(Result{"sheets": out, "count": len(out)}), nil
}
