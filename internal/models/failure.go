// Package models defines the shared data model for session supervision:
// classified failures, recovery checkpoints, and the event payloads
// exchanged between the failure detector and the recovery orchestrator.
package models

import (
	"time"

	"github.com/google/uuid"
)

// FailureType classifies why a session stopped making forward progress.
type FailureType string

const (
	// FailureStuck indicates the session produced no output for longer
	// than the stall window.
	FailureStuck FailureType = "stuck"

	// FailureCrash indicates the worker process exited abnormally.
	FailureCrash FailureType = "crash"

	// FailureAPIError indicates too many consecutive failed API calls.
	FailureAPIError FailureType = "api_error"

	// FailureLoop indicates the session kept editing the same file
	// without ever getting its tests to pass.
	FailureLoop FailureType = "loop"

	// FailureTimeout indicates the session exceeded its maximum duration.
	FailureTimeout FailureType = "timeout"
)

// RecoveryAction is the orchestrator's decision for a failure.
type RecoveryAction string

const (
	RecoveryPending        RecoveryAction = "pending"
	RecoveryRetry          RecoveryAction = "retry"
	RecoveryCheckpoint     RecoveryAction = "checkpoint_recovery"
	RecoveryContextRefresh RecoveryAction = "context_refresh"
	RecoveryEscalated      RecoveryAction = "escalated"
	RecoveryManualOverride RecoveryAction = "manual_override"
)

// ManualOverrideAction is a human-chosen response to an escalated failure.
type ManualOverrideAction string

const (
	OverrideTerminate       ManualOverrideAction = "terminate"
	OverrideReassign        ManualOverrideAction = "reassign"
	OverrideProvideGuidance ManualOverrideAction = "provide_guidance"
)

// ManualOverrideActions lists every action offered to a human when a
// failure escalates.
var ManualOverrideActions = []ManualOverrideAction{
	OverrideTerminate,
	OverrideReassign,
	OverrideProvideGuidance,
}

// Failure is a classified detection event for a session that has stopped
// progressing correctly. It is created by the failure detector the instant
// a threshold is crossed, acted on by the recovery orchestrator, and only
// its Resolved flag and RecoveryAction are mutated afterwards.
type Failure struct {
	ID             string            `json:"id"`
	SessionID      string            `json:"session_id"`
	AgentType      string            `json:"agent_type"`
	ProjectID      string            `json:"project_id"`
	WorkspaceID    string            `json:"workspace_id"`
	StoryID        string            `json:"story_id"`
	FailureType    FailureType       `json:"failure_type"`
	RetryCount     int               `json:"retry_count"`
	LastCheckpoint *Checkpoint       `json:"last_checkpoint,omitempty"`
	ErrorDetails   string            `json:"error_details"`
	RecoveryAction RecoveryAction    `json:"recovery_action"`
	Resolved       bool              `json:"resolved"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// NewFailureID returns a unique identifier for a Failure.
func NewFailureID() string {
	return "failure-" + uuid.New().String()
}

// UnknownID is substituted for identifiers the detector cannot recover,
// e.g. when a process exit arrives for a session that was never registered.
const UnknownID = "unknown"
