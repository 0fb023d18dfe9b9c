package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/Desarso/opsagent/models"
	"github.com/Desarso/opsagent/stores"
)

// DefaultHistoryLimit bounds the persisted transcript reloaded per run.
const DefaultHistoryLimit = 50

// HTTPSession handles HTTP-based chat interactions. When a conversation id
// and a store are set, the thread transcript is reloaded before the run and
// the new messages are saved after it.
type HTTPSession struct {
	Runner         Runner
	ConversationID string
	UserID         string
	Store          stores.MessageStore
	HistoryLimit   int
	Logger         *log.Logger
}

func (s *HTTPSession) persistent() bool {
	return s.Store != nil && s.ConversationID != ""
}

// prepare fills the thread id and the persisted transcript into in.
func (s *HTTPSession) prepare(in RunInput) RunInput {
	if in.ThreadID == "" {
		in.ThreadID = s.ConversationID
	}
	if !s.persistent() {
		return in
	}
	limit := s.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.Store.FetchHistory(s.ConversationID, limit)
	if err != nil {
		s.Logger.Printf("Error fetching history: %v", err)
		return in
	}
	in.Prior = stores.SanitizeHistory(stores.ToModelMessages(rows))
	s.Logger.Printf("Retrieved %d messages from history", len(in.Prior))
	return in
}

func (s *HTTPSession) save(res RunResult) {
	if !s.persistent() {
		return
	}
	msgs := res.NewMessages()
	if err := s.Store.SaveMessages(s.ConversationID, s.UserID, msgs); err != nil {
		s.Logger.Printf("Error saving %d messages: %v", len(msgs), err)
	}
}

// Run executes one turn and persists it.
func (s *HTTPSession) Run(ctx context.Context, in RunInput) RunResult {
	res := s.Runner.Run(ctx, s.prepare(in))
	s.save(res)
	return res
}

// Stream executes one turn, returning its events. The turn is persisted
// before the channel is closed.
func (s *HTTPSession) Stream(ctx context.Context, in RunInput) <-chan models.Stream_Event {
	in = s.prepare(in)
	out := make(chan models.Stream_Event, streamBuffer)
	go func() {
		defer close(out)
		res := s.Runner.RunStream(ctx, in, channelEmitter(ctx, out))
		s.save(res)
	}()
	return out
}

// RunSSE streams a turn as Server-Sent Events and closes with [DONE]. An
// event that cannot be encoded is reported through WriteSSEError.
func (s *HTTPSession) RunSSE(ctx context.Context, in RunInput, writer SSEWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeErr error
	for ev := range s.Stream(ctx, in) {
		if writeErr != nil {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			s.Logger.Printf("Error marshalling event: %v", err)
			if err := writer.WriteSSEError(fmt.Errorf("failed to encode %s event: %w", ev.Type, err)); err != nil {
				writeErr = err
				cancel()
				continue
			}
			writer.Flush()
			continue
		}
		if err := writer.WriteSSE(string(data)); err != nil {
			s.Logger.Printf("Error writing to SSE stream: %v", err)
			writeErr = err
			cancel()
			continue
		}
		writer.Flush()
	}
	if writeErr != nil {
		return writeErr
	}

	if err := writer.WriteSSE("[DONE]"); err != nil {
		return err
	}
	writer.Flush()
	s.Logger.Printf("SSE stream finished.")
	return nil
}

// GetChatHistory retrieves and converts chat history to API response format
func (s *HTTPSession) GetChatHistory() ([]models.ChatMessageResponse, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("no message store configured")
	}
	dbHistory, err := s.Store.FetchHistory(s.ConversationID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	apiHistory := make([]models.ChatMessageResponse, 0, len(dbHistory))
	for _, msg := range dbHistory {
		apiHistory = append(apiHistory, msg.ToResponse())
	}
	return apiHistory, nil
}
