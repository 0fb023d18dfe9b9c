package stores

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/Desarso/opsagent/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Message types stored alongside the role.
const (
	TypeSystemMessage    = "system_message"
	TypeUserMessage      = "user_message"
	TypeModelMessage     = "model_message"
	TypeFunctionCall     = "function_call"
	TypeFunctionResponse = "function_response"
)

// Message is one persisted transcript entry of a thread.
type Message struct {
	gorm.Model
	ConversationID string `gorm:"index;not null"`
	Sequence       int    `gorm:"not null"`
	Role           string `gorm:"not null"` // "system", "user", "assistant", "tool"
	Type           string `gorm:"not null"` // "user_message", "model_message", "function_call", "function_response"
	// FunctionID links a function_response back to the call it answers.
	FunctionID string `gorm:"index" json:"function_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	Content    string `gorm:"type:text"`
	ToolCalls  datatypes.JSON
}

// Conversation holds metadata for a thread.
type Conversation struct {
	gorm.Model
	ConversationID string    `gorm:"uniqueIndex;not null"`
	UserID         string    `gorm:"index;not null"`
	Title          string    `gorm:"type:text"`
	MessageCount   int       `gorm:"default:0"`
	Messages       []Message `gorm:"foreignKey:ConversationID;references:ConversationID"`
}

// ConversationInfo holds basic conversation metadata for listing
type ConversationInfo struct {
	ConversationID string
	UserID         string
	Title          string
	MessageCount   int
	CreatedAt      string
	UpdatedAt      string
}

// MessageStore persists thread transcripts.
type MessageStore interface {
	// Message operations
	SaveMessages(conversationID, userID string, msgs []models.Message) error
	FetchHistory(conversationID string, limit int) ([]Message, error)

	// Conversation operations
	CreateConversation(convoID, userID string) error
	ListConversations() ([]string, error)
	ListConversationsForUser(userID string) ([]ConversationInfo, error)
	DeleteConversation(convoID string) error
	// PruneInactive deletes conversations not updated since cutoff and
	// returns their ids.
	PruneInactive(cutoff time.Time) ([]string, error)

	// DB exposes the underlying connection so other stores can share it.
	DB() *gorm.DB

	// Connection management
	Connect() error
	Close() error

	// Health check
	Ping() error
}

// messageType derives the stored type from a transcript entry.
func messageType(m models.Message) string {
	switch m.Role {
	case models.RoleSystem:
		return TypeSystemMessage
	case models.RoleUser:
		return TypeUserMessage
	case models.RoleTool:
		return TypeFunctionResponse
	}
	if m.HasToolCalls() {
		return TypeFunctionCall
	}
	return TypeModelMessage
}

// NewMessageRecord converts a transcript entry into a row.
func NewMessageRecord(conversationID string, seq int, m models.Message) Message {
	rec := Message{
		ConversationID: conversationID,
		Sequence:       seq,
		Role:           m.Role,
		Type:           messageType(m),
		FunctionID:     m.ToolCallID,
		ToolName:       m.ToolName,
		Content:        m.Content,
	}
	if m.HasToolCalls() {
		if raw, err := json.Marshal(m.ToolCalls); err == nil {
			rec.ToolCalls = datatypes.JSON(raw)
		} else {
			log.Printf("Warning: failed to marshal tool calls for %s: %v", conversationID, err)
		}
	}
	return rec
}

// ToModel converts a row back into a transcript entry.
func (m Message) ToModel() models.Message {
	out := models.Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.FunctionID,
		ToolName:   m.ToolName,
	}
	if len(m.ToolCalls) > 0 {
		if err := json.Unmarshal(m.ToolCalls, &out.ToolCalls); err != nil {
			log.Printf("Warning: failed to unmarshal tool calls of message %d: %v", m.ID, err)
		}
	}
	return out
}

// ToResponse converts a row to the history API shape.
func (m Message) ToResponse() models.ChatMessageResponse {
	mm := m.ToModel()
	return models.ChatMessageResponse{
		ID:             m.ID,
		CreatedAt:      m.CreatedAt,
		ConversationID: m.ConversationID,
		Sequence:       m.Sequence,
		Role:           m.Role,
		Type:           m.Type,
		ToolCallID:     m.FunctionID,
		ToolName:       m.ToolName,
		Text:           m.Content,
		ToolCalls:      mm.ToolCalls,
	}
}

// ToModelMessages converts rows to transcript entries in order.
func ToModelMessages(rows []Message) []models.Message {
	out := make([]models.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToModel())
	}
	return out
}

// StoreConfig selects a thread store backend.
type StoreConfig struct {
	Type       string `json:"type"`       // "sqlite" or "postgres"
	Connection string `json:"connection"` // file path or DSN
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
	}
}
