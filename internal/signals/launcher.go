package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/harrison/sentinel/internal/models"
)

// LaunchRequest is one JSONL record appended to the launch stream for
// the process supervisor to act on. The supervisor starts the worker and
// begins emitting lifecycle signals under the assigned session ID.
type LaunchRequest struct {
	SessionID    string             `json:"session_id"`
	AgentType    string             `json:"agent_type"`
	ProjectID    string             `json:"project_id"`
	WorkspaceID  string             `json:"workspace_id"`
	StoryID      string             `json:"story_id"`
	ResumeFrom   *models.Checkpoint `json:"resume_from,omitempty"`
	FreshContext bool               `json:"fresh_context,omitempty"`
	Guidance     string             `json:"guidance,omitempty"`
}

// StreamLauncher implements the worker-launch collaborator over a JSONL
// stream, mirroring the inbound signal stream: the session ID is
// assigned here, the actual spawn happens in the external supervisor.
type StreamLauncher struct {
	mu   sync.Mutex
	path string
}

// NewStreamLauncher creates a StreamLauncher appending to path.
func NewStreamLauncher(path string) *StreamLauncher {
	return &StreamLauncher{path: path}
}

// LaunchSession appends a launch request and returns the assigned
// session ID.
func (l *StreamLauncher) LaunchSession(ctx context.Context, spec models.LaunchSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	request := LaunchRequest{
		SessionID:    "session-" + uuid.New().String(),
		AgentType:    spec.AgentType,
		ProjectID:    spec.ProjectID,
		WorkspaceID:  spec.WorkspaceID,
		StoryID:      spec.StoryID,
		ResumeFrom:   spec.ResumeFrom,
		FreshContext: spec.FreshContext,
		Guidance:     spec.Guidance,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return "", fmt.Errorf("create launch stream directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("open launch stream: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(request); err != nil {
		return "", fmt.Errorf("append launch request: %w", err)
	}
	return request.SessionID, nil
}
