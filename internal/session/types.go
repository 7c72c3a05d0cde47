package session

import "time"

// CreateRequest defines payload for starting a console conversation.
type CreateRequest struct {
	OperatorID string `json:"operator_id"`
	PatientRef string `json:"patient_ref"`
	Language   string `json:"language"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	OperatorID      string    `json:"operator_id"`
	PatientRef      string    `json:"patient_ref,omitempty"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
