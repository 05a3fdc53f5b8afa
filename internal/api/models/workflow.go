package models

import "time"

// Workflow is a saved editor graph. Workflows whose first step is a schedule
// trigger are fired by the scheduler while Active.
type Workflow struct {
	ID        string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID    string     `gorm:"not null;index;column:user_id" json:"userId"`
	Name      string     `gorm:"type:varchar(255)" json:"name"`
	Graph     JSONDoc    `gorm:"type:jsonb" json:"graph"`
	Schedule  string     `gorm:"type:varchar(120)" json:"schedule,omitempty"`
	Active    bool       `gorm:"not null" json:"active"`
	NextRunAt *time.Time `gorm:"index;column:next_run_at" json:"nextRunAt,omitempty"`
	LastRunAt *time.Time `gorm:"column:last_run_at" json:"lastRunAt,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime;column:created_at" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime;column:updated_at" json:"updatedAt"`
}

func (Workflow) TableName() string {
	return "workflows"
}
