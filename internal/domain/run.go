package domain

import "time"

// RunStatus represents the status of a discovery run.
// Values include RunStatusRunning, RunStatusCompleted, and RunStatusFailed.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// DiscoverRun records one discovery pass and how its candidates were handled.
type DiscoverRun struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	Mode           string     `gorm:"type:text;not null;index" json:"mode"`
	Status         RunStatus  `gorm:"type:text;not null;default:running" json:"status"`
	Candidates     int        `gorm:"default:0" json:"candidates"`
	Inserted       int        `gorm:"default:0" json:"inserted"`
	AlreadyPresent int        `gorm:"default:0" json:"already_present"`
	Invalid        int        `gorm:"default:0" json:"invalid"`
	StartedAt      time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorLog       string     `gorm:"type:text" json:"error_log,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for DiscoverRun.
func (DiscoverRun) TableName() string {
	return "discover_runs"
}
