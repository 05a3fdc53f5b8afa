package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Platform of a stored connection.
type Platform string

const (
	PlatformGmail   Platform = "gmail"
	PlatformIMAP    Platform = "imap"
	PlatformOpenAI  Platform = "openai"
	PlatformGemini  Platform = "gemini"
	PlatformClaude  Platform = "claude"
	PlatformOllama  Platform = "ollama"
	PlatformDiscord Platform = "discord"
	PlatformSlack   Platform = "slack"
)

// IsAIProvider reports whether keys of this platform can be stored through
// the api-key endpoint.
func (p Platform) IsAIProvider() bool {
	switch p {
	case PlatformOpenAI, PlatformGemini, PlatformClaude, PlatformOllama:
		return true
	}
	return false
}

// Connection is a third party account of a user. Tokens are stored
// encrypted, never in clear.
type Connection struct {
	ID              string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID          string         `gorm:"not null;index;column:user_id" json:"userId"`
	Platform        Platform       `gorm:"not null;type:varchar(32)" json:"platform"`
	Name            string         `json:"name"`
	AccessTokenEnc  string         `gorm:"type:text;column:access_token_enc" json:"-"`
	RefreshTokenEnc string         `gorm:"type:text;column:refresh_token_enc" json:"-"`
	TokenNonce      string         `gorm:"type:varchar(64);column:token_nonce" json:"-"`
	Metadata        Metadata       `gorm:"type:jsonb" json:"metadata"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;column:created_at" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime;column:updated_at" json:"updatedAt"`
	DeletedAt       gorm.DeletedAt `gorm:"index;column:deleted_at" json:"-"`
}

func (Connection) TableName() string {
	return "connections"
}

// Metadata is the free form jsonb column of a connection: endpoint, model,
// webhook_url, IMAP host settings.
type Metadata map[string]any

// Value implements driver.Valuer for GORM
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for GORM
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("failed to scan Metadata: expected []byte")
	}
	return json.Unmarshal(raw, m)
}

func (c *Connection) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
