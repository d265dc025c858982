package models

import "time"

type NotificationSeverity string

const (
	NotificationSeverityInfo     NotificationSeverity = "info"
	NotificationSeverityWarning  NotificationSeverity = "warning"
	NotificationSeverityCritical NotificationSeverity = "critical"
)

// Notification is a problem report raised for an account.
type Notification struct {
	Type       string               `json:"type"`
	APIKey     string               `json:"api_key,omitempty"`
	Severity   NotificationSeverity `json:"severity"`
	Status     int                  `json:"status"`
	Message    string               `json:"message"`
	Details    string               `json:"details,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
	Conflicted []string             `json:"conflicted,omitempty"`
}

// AccountCredentials identifies one remote account.
type AccountCredentials struct {
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	RestKey string `json:"rest_key" mapstructure:"rest_key"`
}

const (
	NotificationStatusInfo    = 0
	NotificationStatusWarning = 1
	NotificationStatusError   = 2
)
