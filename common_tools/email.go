package common_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/stores"
)

// EmailToolNames lists the email tools in catalog order.
var EmailToolNames = []string{
	"email_get",
	"email_list",
	"email_analyze",
	"email_translate",
	"email_draft_reply",
	"email_search",
	"email_mark_read",
	"email_summarize_inbox",
}

const (
	defaultSummaryDays = 7
	summaryMaxEmails   = 50
	summaryListLines   = 30
)

var languageNames = map[string]string{
	"ko": "Korean",
	"en": "English",
	"ja": "Japanese",
	"zh": "Chinese",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
}

func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

var emailAnalysisPrompts = map[string]string{
	"full": `Analyze this email comprehensively.

From: %s <%s>
Subject: %s
Received: %s
Body:
%s

Answer with these sections:
## Summary (one line)
## Sender (who they are, trust level high/normal/low/caution, reasoning)
## Intent (what the sender wants)
## Urgency (urgent/high/normal/low and why)
## Action items
## Suggested response strategy`,
	"summary": `Summarize this email in 2-3 sentences.

From: %s <%s>
Subject: %s
Received: %s
Body:
%s

Summary:`,
	"urgency": `Rate the urgency of this email.

From: %s <%s>
Subject: %s
Received: %s
Body:
%s

Answer with one of urgent/high/normal/low and the reason, in one line:`,
	"action_items": `Extract the action items from this email, highest priority first.

From: %s <%s>
Subject: %s
Received: %s
Body:
%s

Action items:`,
	"sender": `Analyze the sender of this email.

From: %s <%s>
Subject: %s
Received: %s
Body excerpt:
%s

Cover:
1. Who they are (role, company)
2. Trustworthiness
3. Things to watch out for`,
	"reply_needed": `Decide whether this email needs a reply.

From: %s <%s>
Subject: %s
Received: %s
Body:
%s

Answer needed/not needed and the reason, in one line:`,
}

var replyInstructions = map[string]string{
	"formal":   "Write a formal, business-like reply.",
	"friendly": "Write a friendly, warm reply.",
	"brief":    "Write a short reply covering only the essentials, within 3-5 sentences.",
	"detailed": "Write a detailed, thorough reply.",
	"decline":  "Politely decline. Give the reason and suggest an alternative.",
	"accept":   "Accept or agree, and propose the next steps.",
}

type emailTools struct {
	store *stores.WorkspaceStore
	llm   Completer
	now   func() time.Time
}

// EmailTools returns the mailbox tools backed by the workspace store.
func EmailTools(store *stores.WorkspaceStore, llm Completer) []models.Tool {
	e := &emailTools{store: store, llm: llm, now: time.Now}
	emailID := stringProp("Email message ID")
	accountID := stringProp("Email account ID")
	return []models.Tool{
		NewTool(models.FunctionDeclaration{
			Name:        "email_get",
			Description: "Get email details by ID.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{"email_id": emailID},
				Required:   []string{"email_id"},
			},
		}, e.get),
		NewTool(models.FunctionDeclaration{
			Name:        "email_list",
			Description: "List emails in a folder, newest first.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"account_id":  accountID,
					"folder":      stringProp("Folder name (INBOX, Sent, ...). Default INBOX"),
					"unread_only": boolProp("Only return unread emails"),
					"limit":       intProp("Number of results (default 20)"),
					"offset":      intProp("Pagination offset"),
				},
				Required: []string{"account_id"},
			},
		}, e.list),
		NewTool(models.FunctionDeclaration{
			Name:        "email_analyze",
			Description: "Analyze an email with AI. Summary and urgency results are stored on the email.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"email_id":      emailID,
					"analysis_type": enumProp("Type of analysis (default full)", "full", "summary", "urgency", "action_items", "sender", "reply_needed"),
				},
				Required: []string{"email_id"},
			},
		}, e.analyze),
		NewTool(models.FunctionDeclaration{
			Name:        "email_translate",
			Description: "Translate an email into the target language.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"email_id":        emailID,
					"target_language": stringProp("Target language code (ko, en, ja, zh, es, fr, de). Default ko"),
				},
				Required: []string{"email_id"},
			},
		}, e.translate),
		NewTool(models.FunctionDeclaration{
			Name:        "email_draft_reply",
			Description: "Draft a reply to an email and save it as a draft.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"email_id":   emailID,
					"reply_type": enumProp("Style of reply (default formal)", "formal", "friendly", "brief", "detailed", "decline", "accept"),
					"key_points": stringProp("Optional key points to include"),
					"language":   stringProp("Reply language code (default ko)"),
				},
				Required: []string{"email_id"},
			},
		}, e.draftReply),
		NewTool(models.FunctionDeclaration{
			Name:        "email_search",
			Description: "Search emails by keyword in subject, body or sender.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"account_id": accountID,
					"query":      stringProp("Search keyword"),
					"folder":     stringProp("Optional folder filter"),
					"limit":      intProp("Max results (default 20)"),
				},
				Required: []string{"account_id", "query"},
			},
		}, e.search),
		NewTool(models.FunctionDeclaration{
			Name:        "email_mark_read",
			Description: "Mark an email as read or unread.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"email_id": emailID,
					"is_read":  boolProp("True to mark as read, false for unread (default true)"),
				},
				Required: []string{"email_id"},
			},
		}, e.markRead),
		NewTool(models.FunctionDeclaration{
			Name:        "email_summarize_inbox",
			Description: "Summarize recent inbox activity.",
			Parameters: models.Parameters{
				Properties: map[string]interface{}{
					"account_id": accountID,
					"days":       intProp("Number of days to summarize (default 7)"),
				},
				Required: []string{"account_id"},
			},
		}, e.summarizeInbox),
	}
}

func emailBody(msg *stores.EmailMessage, limit int) string {
	if msg.BodyText != "" {
		return truncate(msg.BodyText, limit)
	}
	return truncate(msg.BodyHTML, limit)
}

func emailListing(msgs []stores.EmailMessage) []Result {
	out := make([]Result, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Result{
			"id":              m.ID,
			"subject":         m.Subject,
			"from_address":    m.FromAddress,
			"from_name":       m.FromName,
			"snippet":         m.Snippet,
			"received_at":     m.ReceivedAt,
			"folder":          m.Folder,
			"is_read":         m.IsRead,
			"is_starred":      m.IsStarred,
			"has_attachments": m.HasAttachments,
			"ai_priority":     m.AIPriority,
			"ai_category":     m.AICategory,
		})
	}
	return out
}

// detectPriority maps an urgency analysis to a stored priority.
func detectPriority(analysis string) string {
	lower := strings.ToLower(analysis)
	switch {
	case strings.Contains(lower, "urgent"):
		return "urgent"
	case strings.Contains(lower, "high"):
		return "high"
	case strings.Contains(lower, "low"):
		return "low"
	}
	return "normal"
}

type emailIDRequest struct {
	EmailID string `json:"email_id"`
}

func (e *emailTools) get(ctx context.Context, req emailIDRequest) (interface{}, error) {
	msg, err := e.store.GetEmail(ctx, req.EmailID)
	if err != nil {
		return nil, err
	}
	return success(Result{"email": msg}), nil
}

type emailListRequest struct {
	AccountID  string `json:"account_id"`
	Folder     string `json:"folder"`
	UnreadOnly bool   `json:"unread_only"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

func (e *emailTools) list(ctx context.Context, req emailListRequest) (interface{}, error) {
	folder := firstNonEmpty(req.Folder, "INBOX")
	msgs, err := e.store.ListEmails(ctx, stores.EmailFilter{
		AccountID:  req.AccountID,
		Folder:     folder,
		UnreadOnly: req.UnreadOnly,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return nil, err
	}
	return success(Result{"emails": emailListing(msgs), "count": len(msgs), "folder": folder}), nil
}

type emailAnalyzeRequest struct {
	EmailID      string `json:"email_id"`
	AnalysisType string `json:"analysis_type"`
}

func (e *emailTools) analyze(ctx context.Context, req emailAnalyzeRequest) (interface{}, error) {
	msg, err := e.store.GetEmail(ctx, req.EmailID)
	if err != nil {
		return nil, err
	}

	analysisType := req.AnalysisType
	template, ok := emailAnalysisPrompts[analysisType]
	if !ok {
		analysisType = "full"
		template = emailAnalysisPrompts[analysisType]
	}

	prompt := fmt.Sprintf(template,
		firstNonEmpty(msg.FromName, "unknown"), msg.FromAddress,
		firstNonEmpty(msg.Subject, "(no subject)"), msg.ReceivedAt.Format(time.RFC3339),
		emailBody(msg, 4000))

	analysis, err := complete(ctx, e.llm, prompt)
	if err != nil {
		return nil, fmt.Errorf("email analysis failed: %w", err)
	}

	updates := map[string]interface{}{}
	if analysisType == "full" || analysisType == "summary" {
		updates["ai_summary"] = truncate(analysis, 500)
	}
	if analysisType == "full" || analysisType == "urgency" {
		updates["ai_priority"] = detectPriority(analysis)
	}
	if len(updates) > 0 {
		if err := e.store.UpdateEmail(ctx, msg.ID, updates); err != nil {
			logger.Printf("failed to store analysis on email %s: %v", msg.ID, err)
		}
	}

	return success(Result{
		"email_id":      msg.ID,
		"subject":       msg.Subject,
		"analysis_type": analysisType,
		"analysis":      analysis,
	}), nil
}

type emailTranslateRequest struct {
	EmailID        string `json:"email_id"`
	TargetLanguage string `json:"target_language"`
}

func (e *emailTools) translate(ctx context.Context, req emailTranslateRequest) (interface{}, error) {
	msg, err := e.store.GetEmail(ctx, req.EmailID)
	if err != nil {
		return nil, err
	}

	code := firstNonEmpty(req.TargetLanguage, "ko")
	target := languageName(code)
	prompt := fmt.Sprintf(`Translate the following email into %s.
Output only the translation, with no other explanation.

Subject: %s
Body:
%s

Translation (%s):`, target, msg.Subject, emailBody(msg, 6000), target)

	translation, err := complete(ctx, e.llm, prompt)
	if err != nil {
		return nil, fmt.Errorf("email translation failed: %w", err)
	}

	return success(Result{
		"email_id":         msg.ID,
		"original_subject": msg.Subject,
		"target_language":  code,
		"translation":      translation,
	}), nil
}

type emailDraftReplyRequest struct {
	EmailID   string `json:"email_id"`
	ReplyType string `json:"reply_type"`
	KeyPoints string `json:"key_points"`
	Language  string `json:"language"`
}

func (e *emailTools) draftReply(ctx context.Context, req emailDraftReplyRequest) (interface{}, error) {
	msg, err := e.store.GetEmail(ctx, req.EmailID)
	if err != nil {
		return nil, err
	}

	replyType := req.ReplyType
	instruction, ok := replyInstructions[replyType]
	if !ok {
		replyType = "formal"
		instruction = replyInstructions[replyType]
	}
	keyPoints := ""
	if req.KeyPoints != "" {
		keyPoints = "Key points to include: " + req.KeyPoints
	}

	prompt := fmt.Sprintf(`Write a reply to the original email.

Original email
From: %s <%s>
Subject: %s
Body:
%s

Reply instructions
Style: %s
Language: %s
%s

Reply (subject and body):`, msg.FromName, msg.FromAddress, msg.Subject, emailBody(msg, 3000),
		instruction, languageName(firstNonEmpty(req.Language, "ko")), keyPoints)

	reply, err := complete(ctx, e.llm, prompt)
	if err != nil {
		return nil, fmt.Errorf("reply drafting failed: %w", err)
	}

	subject := "Re: " + msg.Subject
	draft := &stores.EmailDraft{
		AccountID:        msg.AccountID,
		ReplyToMessageID: msg.ID,
		IsReply:          true,
		Subject:          subject,
		ToAddresses:      jsonColumn([]map[string]string{{"email": msg.FromAddress, "name": msg.FromName}}),
		BodyText:         reply,
		AIGenerated:      true,
		AIPrompt:         fmt.Sprintf("reply_type: %s, key_points: %s", replyType, req.KeyPoints),
		Status:           "draft",
	}
	out := Result{
		"email_id":   msg.ID,
		"reply_type": replyType,
		"draft":      reply,
		"to":         msg.FromAddress,
		"subject":    subject,
	}
	if err := e.store.SaveDraft(ctx, draft); err != nil {
		logger.Printf("failed to save draft for email %s: %v", msg.ID, err)
	} else {
		out["draft_id"] = draft.ID
	}
	return success(out), nil
}

type emailSearchRequest struct {
	AccountID string `json:"account_id"`
	Query     string `json:"query"`
	Folder    string `json:"folder"`
	Limit     int    `json:"limit"`
}

func (e *emailTools) search(ctx context.Context, req emailSearchRequest) (interface{}, error) {
	msgs, err := e.store.SearchEmails(ctx, stores.EmailFilter{
		AccountID: req.AccountID,
		Folder:    req.Folder,
		Query:     req.Query,
		Limit:     req.Limit,
	})
	if err != nil {
		return nil, err
	}
	return success(Result{"emails": emailListing(msgs), "count": len(msgs), "query": req.Query}), nil
}

type emailMarkReadRequest struct {
	EmailID string `json:"email_id"`
	IsRead  *bool  `json:"is_read"`
}

func (e *emailTools) markRead(ctx context.Context, req emailMarkReadRequest) (interface{}, error) {
	isRead := true
	if req.IsRead != nil {
		isRead = *req.IsRead
	}
	if err := e.store.UpdateEmail(ctx, req.EmailID, map[string]interface{}{"is_read": isRead}); err != nil {
		return nil, err
	}
	msg := "Marked as read."
	if !isRead {
		msg = "Marked as unread."
	}
	return success(Result{"email_id": req.EmailID, "is_read": isRead, "message": msg}), nil
}

type emailSummarizeRequest struct {
	AccountID string `json:"account_id"`
	Days      int    `json:"days"`
}

func (e *emailTools) summarizeInbox(ctx context.Context, req emailSummarizeRequest) (interface{}, error) {
	days := req.Days
	if days <= 0 {
		days = defaultSummaryDays
	}
	since := e.now().AddDate(0, 0, -days)

	msgs, err := e.store.RecentInbox(ctx, req.AccountID, since, summaryMaxEmails)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return success(Result{
			"days":    days,
			"count":   0,
			"summary": fmt.Sprintf("No emails received in the last %d days.", days),
		}), nil
	}

	unread := 0
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsRead {
			unread++
		}
		if len(lines) < summaryListLines {
			lines = append(lines, fmt.Sprintf("- [%s] %s: %s",
				firstNonEmpty(m.AIPriority, "normal"),
				firstNonEmpty(m.FromName, m.FromAddress),
				firstNonEmpty(m.Subject, "(no subject)")))
		}
	}

	prompt := fmt.Sprintf(`Summarize the emails received in the last %d days.

%d emails in total:
%s

Use these sections:
## Important emails (the 3-5 most important)
## By category (work, newsletters/promotions, other)
## Needs action (replies or follow-ups required)
## Recommendations (inbox management advice)`, days, len(msgs), strings.Join(lines, "\n"))

	summary, err := complete(ctx, e.llm, prompt)
	if err != nil {
		return nil, fmt.Errorf("inbox summary failed: %w", err)
	}

	record := &stores.EmailSummary{
		AccountID:   req.AccountID,
		PeriodDays:  days,
		EmailCount:  len(msgs),
		UnreadCount: unread,
		Summary:     summary,
	}
	if err := e.store.SaveEmailSummary(ctx, record); err != nil {
		logger.Printf("failed to save inbox summary for %s: %v", req.AccountID, err)
	}

	return success(Result{
		"days":         days,
		"total_emails": len(msgs),
		"unread_count": unread,
		"summary":      summary,
	}), nil
}
