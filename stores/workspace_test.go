package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestWorkspace(t *testing.T) *WorkspaceStore {
	t.Helper()
	ws, err := NewWorkspaceStore(newTestStore(t).DB())
	require.NoError(t, err)
	return ws
}

func TestWorkspace_DocumentSearchUpdateArchive(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()

	report := &Document{ProjectID: "p1", Title: "Q3 Revenue Report", Content: "Revenue grew", Status: DocStatusPublished, DocType: "report"}
	notes := &Document{ProjectID: "p1", Title: "Standup", Content: "talked about REVENUE targets", Status: DocStatusPublished, DocType: "meeting_notes"}
	draft := &Document{ProjectID: "p1", Title: "Revenue draft", Content: "wip", Status: DocStatusDraft}
	other := &Document{ProjectID: "p2", Title: "Revenue elsewhere", Status: DocStatusPublished}
	for _, d := range []*Document{report, notes, draft, other} {
		require.NoError(t, ws.CreateDocument(ctx, d))
		require.NotEmpty(t, d.ID)
	}

	found, err := ws.SearchDocuments(ctx, DocumentFilter{ProjectID: "p1", Query: "revenue"})
	require.NoError(t, err)
	assert.Len(t, found, 2, "case-insensitive over title and content, published only")

	found, err = ws.SearchDocuments(ctx, DocumentFilter{ProjectID: "p1", Query: "revenue", DocType: "meeting_notes"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, notes.ID, found[0].ID)

	_, err = ws.UpdateDocument(ctx, report.ID, map[string]interface{}{})
	require.Error(t, err)

	updated, err := ws.UpdateDocument(ctx, report.ID, map[string]interface{}{"title": "Q3 Report (final)"})
	require.NoError(t, err)
	assert.Equal(t, "Q3 Report (final)", updated.Title)

	require.NoError(t, ws.ArchiveDocument(ctx, report.ID))
	got, err := ws.GetDocument(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, DocStatusArchived, got.Status)

	_, err = ws.GetDocument(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(ws.ArchiveDocument(ctx, "missing"), ErrNotFound))

	listed, err := ws.ListDocuments(ctx, DocumentFilter{ProjectID: "p1", Status: DocStatusArchived})
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestWorkspace_SheetData(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()

	sheet := &Sheet{TeamID: "t1", Name: "Budget", Columns: datatypes.JSON(`[]`), Rows: datatypes.JSON(`[]`)}
	require.NoError(t, ws.CreateSheet(ctx, sheet))
	require.NoError(t, ws.CreateSheet(ctx, &Sheet{TeamID: "t1", Name: "Old", IsArchived: true}))

	require.NoError(t, ws.SaveSheetData(ctx, sheet.ID, nil, datatypes.JSON(`[{"id":"r1"}]`)))
	got, err := ws.GetSheet(ctx, sheet.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"r1"}]`, string(got.Rows))
	assert.JSONEq(t, `[]`, string(got.Columns))

	assert.True(t, errors.Is(ws.SaveSheetData(ctx, "missing", nil, datatypes.JSON(`[]`)), ErrNotFound))

	active, err := ws.ListSheets(ctx, "t1", false)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	all, err := ws.ListSheets(ctx, "t1", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWorkspace_EmailFilters(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()
	now := time.Now()

	mails := []*EmailMessage{
		{AccountID: "a1", Folder: "INBOX", Subject: "Invoice due", FromAddress: "billing@acme.io", ReceivedAt: now.Add(-time.Hour)},
		{AccountID: "a1", Folder: "INBOX", Subject: "Lunch?", FromAddress: "bob@example.com", IsRead: true, ReceivedAt: now.Add(-2 * time.Hour)},
		{AccountID: "a1", Folder: "INBOX", Subject: "old invoice", FromAddress: "billing@acme.io", ReceivedAt: now.AddDate(0, 0, -30)},
		{AccountID: "a1", Folder: "INBOX", Subject: "spam invoice", IsTrash: true, ReceivedAt: now},
		{AccountID: "a1", Folder: "Sent", Subject: "Re: Invoice", ReceivedAt: now},
	}
	for _, m := range mails {
		require.NoError(t, ws.CreateEmail(ctx, m))
	}

	inbox, err := ws.ListEmails(ctx, EmailFilter{AccountID: "a1"})
	require.NoError(t, err)
	require.Len(t, inbox, 3, "INBOX by default, trash excluded")
	assert.Equal(t, "Invoice due", inbox[0].Subject, "newest first")

	unread, err := ws.ListEmails(ctx, EmailFilter{AccountID: "a1", UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	hits, err := ws.SearchEmails(ctx, EmailFilter{AccountID: "a1", Query: "INVOICE"})
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	hits, err = ws.SearchEmails(ctx, EmailFilter{AccountID: "a1", Query: "invoice", Folder: "Sent"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	recent, err := ws.RecentInbox(ctx, "a1", now.AddDate(0, 0, -7), 50)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	require.NoError(t, ws.UpdateEmail(ctx, mails[0].ID, map[string]interface{}{"is_read": true}))
	got, err := ws.GetEmail(ctx, mails[0].ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
}
