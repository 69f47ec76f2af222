package models

import "time"

// Event topic names carried on the supervision bus.
const (
	TopicFailure            = "agent:failure"
	TopicRecoveryAttempt    = "agent:recovery_attempt"
	TopicRecoverySuccess    = "agent:recovery_success"
	TopicRecoveryEscalation = "agent:recovery_escalation"
)

// RecoveryAttemptEvent is published before the orchestrator launches a
// replacement session for a failure.
type RecoveryAttemptEvent struct {
	Failure   *Failure       `json:"failure"`
	Action    RecoveryAction `json:"action"`
	Attempt   int            `json:"attempt"`
	Timestamp time.Time      `json:"timestamp"`
}

// RecoverySuccessEvent is published once a replacement session has been
// launched and the originating failure resolved.
type RecoverySuccessEvent struct {
	Failure      *Failure       `json:"failure"`
	Action       RecoveryAction `json:"action"`
	NewSessionID string         `json:"new_session_id"`
	Timestamp    time.Time      `json:"timestamp"`
}

// RecoveryEscalationEvent is published when a project's retry budget is
// exhausted and a human must choose one of the offered override actions.
type RecoveryEscalationEvent struct {
	Failure      *Failure               `json:"failure"`
	ProjectID    string                 `json:"project_id"`
	TotalRetries int                    `json:"total_retries"`
	MaxRetries   int                    `json:"max_retries"`
	Options      []ManualOverrideAction `json:"options"`
	Timestamp    time.Time              `json:"timestamp"`
}
