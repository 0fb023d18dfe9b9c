package stores

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Trace statuses.
const (
	TraceStatusEnd   = "end"
	TraceStatusError = "error"
)

// ExecutionTrace records one resolved tool call of a run.
// Indexed by conversation_id and tool_call_id for efficient retrieval
type ExecutionTrace struct {
	ID             uint           `gorm:"primarykey" json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	ConversationID string         `gorm:"index:idx_trace_conv" json:"conversation_id"`
	RunID          string         `gorm:"index;not null" json:"run_id"`
	ToolCallID     string         `gorm:"index:idx_trace_conv;index:idx_trace_tool;not null" json:"tool_call_id"`
	Tool           string         `gorm:"not null" json:"tool"`
	Status         string         `gorm:"not null" json:"status"` // end, error
	Arguments      datatypes.JSON `json:"arguments,omitempty"`
	Output         string         `gorm:"type:text" json:"output"`
	Timestamp      int64          `gorm:"not null" json:"timestamp"` // unix millis at dispatch
	DurationMS     int64          `json:"duration_ms"`
}

// TraceStore interface for trace persistence operations
type TraceStore interface {
	// SaveTrace saves a single trace event
	SaveTrace(trace *ExecutionTrace) error

	// SaveTraces saves multiple trace events in a batch
	SaveTraces(traces []*ExecutionTrace) error

	// GetTracesByConversation retrieves all traces for a conversation
	GetTracesByConversation(conversationID string) ([]*ExecutionTrace, error)

	// GetTracesByRun retrieves all traces produced by one run
	GetTracesByRun(runID string) ([]*ExecutionTrace, error)

	// DeleteTracesByConversation removes all traces for a conversation
	DeleteTracesByConversation(conversationID string) error

	// DeleteTracesBefore removes traces created before cutoff
	DeleteTracesBefore(cutoff time.Time) (int64, error)
}

// GORMTraceStore implements TraceStore for SQLite/PostgreSQL via GORM
type GORMTraceStore struct {
	db *gorm.DB
}

// NewGORMTraceStore creates a trace store from an existing GORM database connection
func NewGORMTraceStore(db *gorm.DB) (*GORMTraceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	if err := db.AutoMigrate(&ExecutionTrace{}); err != nil {
		return nil, fmt.Errorf("failed to migrate execution_traces table: %w", err)
	}

	return &GORMTraceStore{db: db}, nil
}

// SaveTrace saves a single trace event
func (s *GORMTraceStore) SaveTrace(trace *ExecutionTrace) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Create(trace).Error
}

// SaveTraces saves multiple trace events in a batch
func (s *GORMTraceStore) SaveTraces(traces []*ExecutionTrace) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if len(traces) == 0 {
		return nil
	}
	return s.db.CreateInBatches(traces, 100).Error
}

// GetTracesByConversation retrieves all traces for a conversation, ordered by timestamp
func (s *GORMTraceStore) GetTracesByConversation(conversationID string) ([]*ExecutionTrace, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var traces []*ExecutionTrace
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("timestamp ASC").
		Find(&traces).Error

	return traces, err
}

func (s *GORMTraceStore) GetTracesByRun(runID string) ([]*ExecutionTrace, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var traces []*ExecutionTrace
	err := s.db.Where("run_id = ?", runID).
		Order("timestamp ASC").
		Find(&traces).Error

	return traces, err
}

// DeleteTracesByConversation removes all traces for a conversation
func (s *GORMTraceStore) DeleteTracesByConversation(conversationID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Where("conversation_id = ?", conversationID).Delete(&ExecutionTrace{}).Error
}

func (s *GORMTraceStore) DeleteTracesBefore(cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}
	res := s.db.Where("created_at < ?", cutoff).Delete(&ExecutionTrace{})
	return res.RowsAffected, res.Error
}
