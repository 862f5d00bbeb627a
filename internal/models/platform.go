package models

import (
	"time"

	"github.com/google/uuid"
)

// AnnouncementType is the banner style of an announcement
type AnnouncementType string

const (
	AnnouncementInfo    AnnouncementType = "info"
	AnnouncementWarning AnnouncementType = "warning"
	AnnouncementSuccess AnnouncementType = "success"
	AnnouncementError   AnnouncementType = "error"
)

// Valid reports whether t is a known announcement type
func (t AnnouncementType) Valid() bool {
	switch t {
	case AnnouncementInfo, AnnouncementWarning, AnnouncementSuccess, AnnouncementError:
		return true
	}
	return false
}

// Announcement is a platform-wide banner authored by an admin
type Announcement struct {
	ID        uuid.UUID        `json:"announcement_id" db:"id"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Type      AnnouncementType `json:"type" db:"type"`
	IsActive  bool             `json:"is_active" db:"is_active"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty" db:"expires_at"`
}

// Visible reports whether the announcement should be shown at now
func (a *Announcement) Visible(now time.Time) bool {
	return a.IsActive && (a.ExpiresAt == nil || a.ExpiresAt.After(now))
}

// Backup describes a snapshot archive on disk
type Backup struct {
	ID        uuid.UUID `json:"backup_id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Filename  string    `json:"filename" db:"filename"`
	SizeMB    float64   `json:"size_mb" db:"size_mb"`
	FileCount int       `json:"file_count" db:"file_count"`
	Checksum  string    `json:"checksum" db:"checksum"`
	CreatedBy string    `json:"created_by,omitempty" db:"created_by"`
}

// LogType separates platform health entries from user activity
type LogType string

const (
	LogTypeSystem   LogType = "system"
	LogTypeActivity LogType = "activity"
)

// LogLevel is the severity of a log entry
type LogLevel string

const (
	LogLevelInfo     LogLevel = "info"
	LogLevelWarning  LogLevel = "warning"
	LogLevelError    LogLevel = "error"
	LogLevelCritical LogLevel = "critical"
)

// LogEntry is an append-only audit record
type LogEntry struct {
	ID        uuid.UUID  `json:"log_id" db:"id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	Type      LogType    `json:"log_type" db:"log_type"`
	Level     LogLevel   `json:"level" db:"level"`
	Category  string     `json:"category" db:"category"`
	Message   string     `json:"message" db:"message"`
	TenantID  *uuid.UUID `json:"tenant_id,omitempty" db:"tenant_id"`
	UserEmail string     `json:"user_email" db:"user_email"`
	IPAddress string     `json:"ip_address" db:"ip_address"`
	Details   Variables  `json:"details,omitempty" db:"details"`
}

// LogFilter narrows a log listing
type LogFilter struct {
	Type      LogType
	Level     LogLevel
	Category  string
	TenantID  *uuid.UUID
	Search    string
	StartTime *time.Time
	EndTime   *time.Time
}

// LogStats aggregates log entries
type LogStats struct {
	Total      int64              `json:"total"`
	ByType     map[LogType]int64  `json:"by_type"`
	ByLevel    map[LogLevel]int64 `json:"by_level"`
	Last24h    int64              `json:"last_24h"`
	Errors24h  int64              `json:"errors_last_24h"`
}

// PlatformSettings are global switches controlled from the admin console
type PlatformSettings struct {
	MaintenanceMode    bool      `json:"maintenance_mode"`
	MaintenanceMessage string    `json:"maintenance_message"`
	AIGloballyEnabled  bool      `json:"ai_globally_enabled"`
	DefaultTrialDays   int       `json:"default_trial_days"`
	UpdatedAt          time.Time `json:"updated_at"`
}
