package messages

import (
	"time"

	"github.com/google/uuid"
)

// Tones an AppMessage can carry. The UI renders these as toast severities.
const (
	ToneSuccess = "success"
	ToneInfo    = "info"
	ToneWarning = "warning"
	ToneError   = "error"
)

// AppMessage is one operator-facing notice persisted for the UI feed.
// The feed is pruned to a bounded number of recent rows, so messages are
// informational, not an audit log.
type AppMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Tone      string    `gorm:"size:20;not null;default:'info'" json:"tone"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	Body      string    `gorm:"type:text" json:"body,omitempty"`
	Source    string    `gorm:"size:100;index" json:"source,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (AppMessage) TableName() string { return "app_messages" }
