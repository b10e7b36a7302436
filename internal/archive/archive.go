package archive

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wellnest-io/chat-client/internal/domain"
)

// Turn is one archived conversation turn.
type Turn struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID int64  `gorm:"index"`
	SessionID string `gorm:"index"`
	Role      string
	Content   string
	Timestamp time.Time
	CreatedAt time.Time
}

// Archive is an append-only local transcript store backed by SQLite.
// It records persisted turns only; sentinel entries never reach it.
type Archive struct {
	db *gorm.DB
}

func Open(path string) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if err := db.AutoMigrate(&Turn{}); err != nil {
		return nil, fmt.Errorf("failed to migrate archive: %w", err)
	}
	return &Archive{db: db}, nil
}

// Record appends one turn. Welcome entries are rejected rather than
// silently dropped so callers can catch wiring mistakes.
func (a *Archive) Record(msg domain.ChatMessage) error {
	if msg.IsWelcome() {
		return fmt.Errorf("refusing to archive welcome entry")
	}

	turn := Turn{
		MessageID: msg.ID,
		SessionID: msg.SessionID,
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
	if err := a.db.Create(&turn).Error; err != nil {
		return fmt.Errorf("failed to archive turn: %w", err)
	}
	return nil
}

// History returns all archived turns for a session in insertion order.
func (a *Archive) History(sessionID string) ([]Turn, error) {
	var turns []Turn
	err := a.db.Where("session_id = ?", sessionID).Order("id asc").Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load archive history: %w", err)
	}
	return turns, nil
}

// Close releases the underlying database handle.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
