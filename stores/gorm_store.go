package stores

import (
	"fmt"
	"log"
	"time"

	"github.com/Desarso/opsagent/models"
	"gorm.io/gorm"
)

// gormStore carries the MessageStore behaviour shared by the SQLite and
// PostgreSQL stores; only Connect differs between them.
type gormStore struct {
	db *gorm.DB
}

func (s *gormStore) migrate() error {
	if err := s.db.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return nil
}

// DB returns the underlying connection.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection
func (s *gormStore) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (s *gormStore) Ping() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// SaveMessages appends msgs to the thread in one transaction, creating the
// conversation record on first use.
func (s *gormStore) SaveMessages(conversationID, userID string, msgs []models.Message) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if len(msgs) == 0 {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		// Count() avoids "record not found" log noise on first use.
		var count int64
		if err := tx.Model(&Conversation{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check conversation: %w", err)
		}
		if count == 0 {
			conv := Conversation{ConversationID: conversationID, UserID: userID}
			if err := tx.Create(&conv).Error; err != nil {
				return fmt.Errorf("failed to create conversation record: %w", err)
			}
		}

		if err := tx.Model(&Message{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count existing messages: %w", err)
		}

		seq := int(count)
		records := make([]Message, 0, len(msgs))
		for _, m := range msgs {
			seq++
			records = append(records, NewMessageRecord(conversationID, seq, m))
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to create message records: %w", err)
		}

		if err := tx.Model(&Conversation{}).Where("conversation_id = ?", conversationID).Update("message_count", seq).Error; err != nil {
			return fmt.Errorf("failed to update conversation message count: %w", err)
		}
		return nil
	})
}

// FetchHistory retrieves messages for a conversation in sequence order
// limit: maximum number of messages to retrieve (0 = return all messages)
func (s *gormStore) FetchHistory(conversationID string, limit int) ([]Message, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var msgs []Message
	query := s.db.Where("conversation_id = ?", conversationID).Order("sequence ASC")

	if limit > 0 {
		var count int64
		if err := s.db.Model(&Message{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to count messages: %w", err)
		}

		// If more than limit, offset to get only last N messages
		if count > int64(limit) {
			query = query.Offset(int(count) - limit)
		}
	}

	if err := query.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return msgs, nil
}

// CreateConversation creates a new conversation record
func (s *gormStore) CreateConversation(convoID, userID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	conv := Conversation{
		ConversationID: convoID,
		UserID:         userID,
	}
	return s.db.Create(&conv).Error
}

// ListConversations returns all conversation IDs
func (s *gormStore) ListConversations() ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var ids []string
	if err := s.db.Model(&Conversation{}).Order("updated_at DESC").Pluck("conversation_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}
	return ids, nil
}

// ListConversationsForUser returns all conversations with details for a specific user
func (s *gormStore) ListConversationsForUser(userID string) ([]ConversationInfo, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var convs []Conversation
	if err := s.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}

	result := make([]ConversationInfo, len(convs))
	for i, c := range convs {
		result[i] = ConversationInfo{
			ConversationID: c.ConversationID,
			UserID:         c.UserID,
			Title:          c.Title,
			MessageCount:   c.MessageCount,
			CreatedAt:      c.CreatedAt.Format(time.RFC3339),
			UpdatedAt:      c.UpdatedAt.Format(time.RFC3339),
		}
	}

	return result, nil
}

// DeleteConversation removes a thread and its messages permanently.
func (s *gormStore) DeleteConversation(convoID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("conversation_id = ?", convoID).Delete(&Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if err := tx.Unscoped().Where("conversation_id = ?", convoID).Delete(&Conversation{}).Error; err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		return nil
	})
}

// PruneInactive deletes every conversation whose last update is older than cutoff.
func (s *gormStore) PruneInactive(cutoff time.Time) ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var ids []string
	if err := s.db.Model(&Conversation{}).Where("updated_at < ?", cutoff).Pluck("conversation_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to find inactive conversations: %w", err)
	}

	pruned := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := s.DeleteConversation(id); err != nil {
			log.Printf("[RETENTION] failed to delete conversation %s: %v", id, err)
			continue
		}
		pruned = append(pruned, id)
	}
	return pruned, nil
}
