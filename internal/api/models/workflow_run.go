package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusStopped   RunStatus = "stopped"
)

// WorkflowRun is the persisted outcome of one execution.
type WorkflowRun struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	WorkflowID   string    `gorm:"not null;index;column:workflow_id" json:"workflowId"`
	UserID       string    `gorm:"not null;column:user_id" json:"userId"`
	Status       RunStatus `gorm:"not null;type:varchar(20)" json:"status"`
	TriggerCount int       `gorm:"column:trigger_count" json:"triggerCount"`
	Error        string    `gorm:"type:text" json:"error,omitempty"`
	Summary      JSONDoc   `gorm:"type:jsonb" json:"summary"`
	StartedAt    time.Time `gorm:"column:started_at" json:"startedAt"`
	FinishedAt   time.Time `gorm:"column:finished_at" json:"finishedAt"`
	CreatedAt    time.Time `gorm:"autoCreateTime;column:created_at" json:"createdAt"`
}

func (WorkflowRun) TableName() string {
	return "workflow_runs"
}

func (r *WorkflowRun) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// JSONDoc stores an already encoded JSON document.
type JSONDoc json.RawMessage

// MarshalJSON keeps the document inline instead of base64 encoding it.
func (d JSONDoc) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

func (d *JSONDoc) UnmarshalJSON(data []byte) error {
	*d = append((*d)[:0], data...)
	return nil
}

// Value implements driver.Valuer for GORM
func (d JSONDoc) Value() (driver.Value, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return []byte(d), nil
}

// Scan implements sql.Scanner for GORM
func (d *JSONDoc) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = nil
	case []byte:
		*d = append((*d)[:0], v...)
	case string:
		*d = JSONDoc(v)
	default:
		return errors.New("failed to scan JSONDoc: expected []byte")
	}
	return nil
}
