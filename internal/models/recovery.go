package models

import "time"

// RecoveryHistoryEntry is one line of a project's chronological recovery
// log: which failure was handled, what the orchestrator decided, and how
// the attempt turned out.
type RecoveryHistoryEntry struct {
	FailureID   string         `json:"failure_id"`
	SessionID   string         `json:"session_id"`
	StoryID     string         `json:"story_id"`
	FailureType FailureType    `json:"failure_type"`
	Action      RecoveryAction `json:"action"`
	Attempt     int            `json:"attempt"`
	Succeeded   bool           `json:"succeeded"`
	Detail      string         `json:"detail,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// PipelineRecoveryStatus is the per-project aggregate the orchestrator
// consults before every recovery decision.
type PipelineRecoveryStatus struct {
	ProjectID      string                 `json:"project_id"`
	ActiveFailures []*Failure             `json:"active_failures"`
	History        []RecoveryHistoryEntry `json:"history"`
	IsEscalated    bool                   `json:"is_escalated"`
	TotalRetries   int                    `json:"total_retries"`
	MaxRetries     int                    `json:"max_retries"`
}

// ManualOverrideParams is the human decision applied to an escalated
// failure, delivered out-of-band by whatever surface fronts the core.
type ManualOverrideParams struct {
	FailureID           string               `json:"failure_id"`
	Action              ManualOverrideAction `json:"action"`
	Guidance            string               `json:"guidance,omitempty"`
	ReassignToAgentType string               `json:"reassign_to_agent_type,omitempty"`
}

// RecoveryResult reports the outcome of a recovery attempt or a manual
// override back to the caller.
type RecoveryResult struct {
	FailureID    string         `json:"failure_id"`
	Action       RecoveryAction `json:"action"`
	NewSessionID string         `json:"new_session_id,omitempty"`
	Success      bool           `json:"success"`
	Message      string         `json:"message,omitempty"`
}

// LaunchSpec is the argument to the worker-launch collaborator when the
// orchestrator starts a replacement session.
type LaunchSpec struct {
	AgentType    string      `json:"agent_type"`
	ProjectID    string      `json:"project_id"`
	WorkspaceID  string      `json:"workspace_id"`
	StoryID      string      `json:"story_id"`
	ResumeFrom   *Checkpoint `json:"resume_from,omitempty"`
	FreshContext bool        `json:"fresh_context"`
	Guidance     string      `json:"guidance,omitempty"`
}
