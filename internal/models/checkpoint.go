package models

import (
	"time"

	"github.com/google/uuid"
)

// Checkpoint records a verified, test-passing commit as a safe resume
// point for a story. Checkpoints are immutable once written.
type Checkpoint struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	AgentType     string    `json:"agent_type"`
	ProjectID     string    `json:"project_id"`
	WorkspaceID   string    `json:"workspace_id"`
	StoryID       string    `json:"story_id"`
	CommitHash    string    `json:"commit_hash"`
	Branch        string    `json:"branch"`
	FilesModified []string  `json:"files_modified"`
	TestsPassed   bool      `json:"tests_passed"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewCheckpointID returns a unique identifier for a Checkpoint.
func NewCheckpointID() string {
	return "checkpoint-" + uuid.New().String()
}

// CreateCheckpointParams carries everything needed to record a checkpoint.
// The store assigns the ID and timestamp.
type CreateCheckpointParams struct {
	SessionID     string
	AgentType     string
	ProjectID     string
	WorkspaceID   string
	StoryID       string
	CommitHash    string
	Branch        string
	FilesModified []string
	TestsPassed   bool
	Description   string
}
