package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document statuses and the default type.
const (
	DocStatusDraft     = "draft"
	DocStatusPublished = "published"
	DocStatusArchived  = "archived"
	DefaultDocType     = "report"
)

// Document is a project document written or curated by agents.
type Document struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	ProjectID     string         `gorm:"index" json:"project_id"`
	Title         string         `gorm:"not null" json:"title"`
	Content       string         `gorm:"type:text" json:"content"`
	Summary       string         `gorm:"type:text" json:"summary"`
	DocType       string         `gorm:"index;default:report" json:"doc_type"`
	Tags          datatypes.JSON `json:"tags"`
	SourceURL     string         `json:"source_url,omitempty"`
	SourceType    string         `json:"source_type,omitempty"`
	CreatedByType string         `json:"created_by_type"`
	Status        string         `gorm:"index;default:published" json:"status"`
	Metadata      datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Sheet is a spreadsheet whose columns and rows are stored as JSON.
type Sheet struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	TeamID      string         `gorm:"index" json:"team_id"`
	ProjectID   string         `gorm:"index" json:"project_id,omitempty"`
	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description"`
	Columns     datatypes.JSON `json:"columns"`
	Rows        datatypes.JSON `json:"rows"`
	Settings    datatypes.JSON `json:"settings,omitempty"`
	IsArchived  bool           `gorm:"index" json:"is_archived"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// SheetAnalysis stores the outcome of one sheet analysis request.
type SheetAnalysis struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	SheetID      string         `gorm:"index;not null" json:"sheet_id"`
	AnalysisType string         `json:"analysis_type"`
	Query        string         `gorm:"type:text" json:"query,omitempty"`
	Results      datatypes.JSON `json:"results"`
	ModelUsed    string         `json:"model_used"`
	CreatedAt    time.Time      `json:"created_at"`
}

// EmailMessage is a synced mailbox message.
type EmailMessage struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	AccountID      string         `gorm:"index" json:"account_id"`
	Folder         string         `gorm:"index;default:INBOX" json:"folder"`
	Subject        string         `json:"subject"`
	FromAddress    string         `json:"from_address"`
	FromName       string         `json:"from_name"`
	ToAddresses    datatypes.JSON `json:"to_addresses"`
	Snippet        string         `json:"snippet"`
	BodyText       string         `gorm:"type:text" json:"body_text"`
	BodyHTML       string         `gorm:"type:text" json:"body_html,omitempty"`
	ReceivedAt     time.Time      `gorm:"index" json:"received_at"`
	IsRead         bool           `json:"is_read"`
	IsStarred      bool           `json:"is_starred"`
	IsTrash        bool           `json:"is_trash"`
	HasAttachments bool           `json:"has_attachments"`
	Attachments    datatypes.JSON `json:"attachments,omitempty"`
	AISummary      string         `gorm:"type:text" json:"ai_summary,omitempty"`
	AIPriority     string         `json:"ai_priority,omitempty"`
	AICategory     string         `json:"ai_category,omitempty"`
}

// EmailDraft is a reply drafted by an agent.
type EmailDraft struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	AccountID        string         `gorm:"index" json:"account_id"`
	ReplyToMessageID string         `gorm:"index" json:"reply_to_message_id"`
	IsReply          bool           `json:"is_reply"`
	Subject          string         `json:"subject"`
	ToAddresses      datatypes.JSON `json:"to_addresses"`
	BodyText         string         `gorm:"type:text" json:"body_text"`
	AIGenerated      bool           `json:"ai_generated"`
	AIPrompt         string         `gorm:"type:text" json:"ai_prompt"`
	Status           string         `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
}

// EmailSummary is a digest of an inbox over a period.
type EmailSummary struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	AccountID   string    `gorm:"index" json:"account_id"`
	PeriodDays  int       `json:"period_days"`
	EmailCount  int       `json:"email_count"`
	UnreadCount int       `json:"unread_count"`
	Summary     string    `gorm:"type:text" json:"summary"`
	CreatedAt   time.Time `json:"created_at"`
}

func newID() string { return uuid.New().String() }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = newID()
	}
	return nil
}

func (s *Sheet) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = newID()
	}
	return nil
}

func (a *SheetAnalysis) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = newID()
	}
	return nil
}

func (e *EmailMessage) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = newID()
	}
	return nil
}

func (d *EmailDraft) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = newID()
	}
	return nil
}

func (s *EmailSummary) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = newID()
	}
	return nil
}

// WorkspaceStore is the relational workspace the docs, sheet and email tools
// operate on.
type WorkspaceStore struct {
	db *gorm.DB
}

// NewWorkspaceStore creates a workspace store from an existing GORM connection
func NewWorkspaceStore(db *gorm.DB) (*WorkspaceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if err := db.AutoMigrate(&Document{}, &Sheet{}, &SheetAnalysis{}, &EmailMessage{}, &EmailDraft{}, &EmailSummary{}); err != nil {
		return nil, fmt.Errorf("failed to migrate workspace tables: %w", err)
	}
	return &WorkspaceStore{db: db}, nil
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", what, id, err)
}

// likePattern builds a lower-cased LIKE pattern; matching against LOWER(col)
// keeps search case-insensitive on both SQLite and PostgreSQL.
func likePattern(q string) string {
	return "%" + strings.ToLower(q) + "%"
}

// Documents

// DocumentFilter narrows ListDocuments and SearchDocuments.
type DocumentFilter struct {
	ProjectID string
	DocType   string
	Status    string
	Query     string
	Limit     int
	Offset    int
}

func (w *WorkspaceStore) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.Status == "" {
		doc.Status = DocStatusPublished
	}
	if doc.DocType == "" {
		doc.DocType = DefaultDocType
	}
	if err := w.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (w *WorkspaceStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := w.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "document", id)
	}
	return &doc, nil
}

// SearchDocuments matches Query against title and content of published documents,
// newest first.
func (w *WorkspaceStore) SearchDocuments(ctx context.Context, f DocumentFilter) ([]Document, error) {
	q := w.db.WithContext(ctx).Model(&Document{}).Where("status = ?", DocStatusPublished)
	if f.ProjectID != "" {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.Query != "" {
		p := likePattern(f.Query)
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(content) LIKE ?)", p, p)
	}
	if f.DocType != "" {
		q = q.Where("doc_type = ?", f.DocType)
	}

	var docs []Document
	if err := q.Order("created_at DESC").Limit(limitOr(f.Limit, 10)).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	return docs, nil
}

func (w *WorkspaceStore) ListDocuments(ctx context.Context, f DocumentFilter) ([]Document, error) {
	q := w.db.WithContext(ctx).Model(&Document{})
	if f.ProjectID != "" {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.DocType != "" {
		q = q.Where("doc_type = ?", f.DocType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var docs []Document
	if err := q.Order("created_at DESC").Limit(limitOr(f.Limit, 20)).Offset(f.Offset).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// UpdateDocument applies the given column updates and returns the fresh row.
func (w *WorkspaceStore) UpdateDocument(ctx context.Context, id string, fields map[string]interface{}) (*Document, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("nothing to update")
	}
	res := w.db.WithContext(ctx).Model(&Document{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update document %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return w.GetDocument(ctx, id)
}

// ArchiveDocument soft-deletes a document by moving it to the archived status.
func (w *WorkspaceStore) ArchiveDocument(ctx context.Context, id string) error {
	_, err := w.UpdateDocument(ctx, id, map[string]interface{}{"status": DocStatusArchived})
	return err
}

// Sheets

func (w *WorkspaceStore) CreateSheet(ctx context.Context, sheet *Sheet) error {
	if err := w.db.WithContext(ctx).Create(sheet).Error; err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return nil
}

func (w *WorkspaceStore) GetSheet(ctx context.Context, id string) (*Sheet, error) {
	var sheet Sheet
	if err := w.db.WithContext(ctx).First(&sheet, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "sheet", id)
	}
	return &sheet, nil
}

// SaveSheetData replaces the columns and rows of a sheet.
func (w *WorkspaceStore) SaveSheetData(ctx context.Context, id string, columns, rows datatypes.JSON) error {
	updates := map[string]interface{}{}
	if columns != nil {
		updates["columns"] = columns
	}
	if rows != nil {
		updates["rows"] = rows
	}
	if len(updates) == 0 {
		return nil
	}
	res := w.db.WithContext(ctx).Model(&Sheet{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to save sheet %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("sheet %s: %w", id, ErrNotFound)
	}
	return nil
}

func (w *WorkspaceStore) ListSheets(ctx context.Context, teamID string, includeArchived bool) ([]Sheet, error) {
	q := w.db.WithContext(ctx).Model(&Sheet{})
	if teamID != "" {
		q = q.Where("team_id = ?", teamID)
	}
	if !includeArchived {
		q = q.Where("is_archived = ?", false)
	}

	var sheets []Sheet
	if err := q.Order("updated_at DESC").Find(&sheets).Error; err != nil {
		return nil, fmt.Errorf("failed to list sheets: %w", err)
	}
	return sheets, nil
}

func (w *WorkspaceStore) SaveSheetAnalysis(ctx context.Context, a *SheetAnalysis) error {
	if err := w.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to save sheet analysis: %w", err)
	}
	return nil
}

// ListSheetAnalyses returns the stored analyses of a sheet, newest first.
func (w *WorkspaceStore) ListSheetAnalyses(ctx context.Context, sheetID string) ([]SheetAnalysis, error) {
	var out []SheetAnalysis
	if err := w.db.WithContext(ctx).Where("sheet_id = ?", sheetID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list sheet analyses: %w", err)
	}
	return out, nil
}

// Email

// EmailFilter narrows ListEmails and SearchEmails.
type EmailFilter struct {
	AccountID  string
	Folder     string
	UnreadOnly bool
	Query      string
	Limit      int
	Offset     int
}

func (w *WorkspaceStore) CreateEmail(ctx context.Context, msg *EmailMessage) error {
	if msg.Folder == "" {
		msg.Folder = "INBOX"
	}
	if err := w.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create email: %w", err)
	}
	return nil
}

func (w *WorkspaceStore) GetEmail(ctx context.Context, id string) (*EmailMessage, error) {
	var msg EmailMessage
	if err := w.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "email", id)
	}
	return &msg, nil
}

// ListEmails returns non-trashed mail of a folder, newest first.
func (w *WorkspaceStore) ListEmails(ctx context.Context, f EmailFilter) ([]EmailMessage, error) {
	folder := f.Folder
	if folder == "" {
		folder = "INBOX"
	}
	q := w.db.WithContext(ctx).Model(&EmailMessage{}).
		Where("folder = ? AND is_trash = ?", folder, false)
	if f.AccountID != "" {
		q = q.Where("account_id = ?", f.AccountID)
	}
	if f.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}

	var msgs []EmailMessage
	if err := q.Order("received_at DESC").Limit(limitOr(f.Limit, 20)).Offset(f.Offset).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return msgs, nil
}

// SearchEmails matches Query against subject, body and sender.
func (w *WorkspaceStore) SearchEmails(ctx context.Context, f EmailFilter) ([]EmailMessage, error) {
	p := likePattern(f.Query)
	q := w.db.WithContext(ctx).Model(&EmailMessage{}).
		Where("is_trash = ?", false).
		Where("(LOWER(subject) LIKE ? OR LOWER(body_text) LIKE ? OR LOWER(from_address) LIKE ?)", p, p, p)
	if f.AccountID != "" {
		q = q.Where("account_id = ?", f.AccountID)
	}
	if f.Folder != "" {
		q = q.Where("folder = ?", f.Folder)
	}

	var msgs []EmailMessage
	if err := q.Order("received_at DESC").Limit(limitOr(f.Limit, 20)).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	return msgs, nil
}

func (w *WorkspaceStore) UpdateEmail(ctx context.Context, id string, fields map[string]interface{}) error {
	res := w.db.WithContext(ctx).Model(&EmailMessage{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update email %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecentInbox returns up to limit inbox messages received since the given time.
func (w *WorkspaceStore) RecentInbox(ctx context.Context, accountID string, since time.Time, limit int) ([]EmailMessage, error) {
	q := w.db.WithContext(ctx).Model(&EmailMessage{}).
		Where("folder = ? AND is_trash = ? AND received_at >= ?", "INBOX", false, since)
	if accountID != "" {
		q = q.Where("account_id = ?", accountID)
	}

	var msgs []EmailMessage
	if err := q.Order("received_at DESC").Limit(limitOr(limit, 50)).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent inbox: %w", err)
	}
	return msgs, nil
}

func (w *WorkspaceStore) SaveDraft(ctx context.Context, d *EmailDraft) error {
	if err := w.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (w *WorkspaceStore) SaveEmailSummary(ctx context.Context, s *EmailSummary) error {
	if err := w.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("failed to save email summary: %w", err)
	}
	return nil
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
