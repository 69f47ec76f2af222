// Package signals ingests the process supervisor's lifecycle stream: a
// JSONL file it appends one record to per event (session start/end,
// process exit, API call outcome, file edit, stall notice, verified
// checkpoint). The watcher tails the file and the dispatcher routes each
// record to the failure detector or the checkpoint store.
package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harrison/sentinel/internal/checkpoint"
	"github.com/harrison/sentinel/internal/detector"
	"github.com/harrison/sentinel/internal/logger"
	"github.com/harrison/sentinel/internal/models"
)

// Signal types carried on the lifecycle stream.
const (
	TypeSessionStart   = "session_start"
	TypeSessionEnd     = "session_end"
	TypeProcessExit    = "process_exit"
	TypeAPICallResult  = "api_call_result"
	TypeFileEdited     = "file_edited"
	TypeSessionStalled = "session_stalled"
	TypeCheckpoint     = "checkpoint"
	TypeManualOverride = "manual_override"
)

// Signal is one JSONL record from the process supervisor. Fields beyond
// Type and SessionID are populated per signal type.
type Signal struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`

	// session_start
	AgentType     string `json:"agent_type,omitempty"`
	ProjectID     string `json:"project_id,omitempty"`
	WorkspaceID   string `json:"workspace_id,omitempty"`
	StoryID       string `json:"story_id,omitempty"`
	MaxDurationMS int64  `json:"max_duration_ms,omitempty"`

	// process_exit
	ExitCode int    `json:"exit_code,omitempty"`
	Signal   string `json:"signal,omitempty"`
	Stderr   string `json:"stderr,omitempty"`

	// api_call_result
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message,omitempty"`

	// file_edited
	Path        string `json:"path,omitempty"`
	TestsPassed bool   `json:"tests_passed,omitempty"`

	// session_stalled
	LastActivity    time.Time `json:"last_activity,omitzero"`
	StallDurationMS int64     `json:"stall_duration_ms,omitempty"`

	// checkpoint
	CommitHash  string   `json:"commit_hash,omitempty"`
	Branch      string   `json:"branch,omitempty"`
	Files       []string `json:"files,omitempty"`
	Description string   `json:"description,omitempty"`

	// manual_override
	FailureID  string `json:"failure_id,omitempty"`
	Action     string `json:"action,omitempty"`
	Guidance   string `json:"guidance,omitempty"`
	ReassignTo string `json:"reassign_to,omitempty"`
}

// ParseSignal decodes one JSONL line.
func ParseSignal(line []byte) (*Signal, error) {
	var sig Signal
	if err := json.Unmarshal(line, &sig); err != nil {
		return nil, fmt.Errorf("parse signal: %w", err)
	}
	if sig.Type == "" {
		return nil, fmt.Errorf("parse signal: missing type")
	}
	return &sig, nil
}

// Overrider applies a human override decision; implemented by the
// recovery orchestrator.
type Overrider interface {
	ManualOverride(ctx context.Context, params models.ManualOverrideParams) (*models.RecoveryResult, error)
}

// Dispatcher routes signals to the detector, the checkpoint store, and
// the override surface.
type Dispatcher struct {
	detector    *detector.Detector
	checkpoints checkpoint.Store
	overrides   Overrider
	log         logger.Logger
}

// NewDispatcher creates a Dispatcher; overrides and log may be nil.
func NewDispatcher(det *detector.Detector, checkpoints checkpoint.Store, overrides Overrider, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		detector:    det,
		checkpoints: checkpoints,
		overrides:   overrides,
		log:         log,
	}
}

// Dispatch routes one signal. Malformed or out-of-order signals are
// logged, never fatal: an unparseable lifecycle stream must degrade to
// reduced supervision, not a crashed supervisor.
func (d *Dispatcher) Dispatch(ctx context.Context, sig *Signal) {
	switch sig.Type {
	case TypeSessionStart:
		d.detector.RegisterSession(detector.RegisterParams{
			SessionID:   sig.SessionID,
			AgentType:   sig.AgentType,
			ProjectID:   sig.ProjectID,
			WorkspaceID: sig.WorkspaceID,
			StoryID:     sig.StoryID,
			MaxDuration: time.Duration(sig.MaxDurationMS) * time.Millisecond,
		})

	case TypeSessionEnd:
		d.detector.UnregisterSession(sig.SessionID)

	case TypeProcessExit:
		d.detector.HandleProcessExit(ctx, detector.ProcessExitEvent{
			SessionID: sig.SessionID,
			ExitCode:  sig.ExitCode,
			Signal:    sig.Signal,
			Stderr:    sig.Stderr,
		})

	case TypeAPICallResult:
		d.detector.HandleAPIError(ctx, detector.APIErrorEvent{
			SessionID:    sig.SessionID,
			StatusCode:   sig.StatusCode,
			ErrorMessage: sig.Message,
		})

	case TypeFileEdited:
		d.detector.HandleFileModification(ctx, detector.FileModificationEvent{
			SessionID:   sig.SessionID,
			FilePath:    sig.Path,
			TestsPassed: sig.TestsPassed,
		})

	case TypeSessionStalled:
		d.detector.HandleSessionStalled(ctx, detector.StallEvent{
			SessionID:     sig.SessionID,
			LastActivity:  sig.LastActivity,
			StallDuration: time.Duration(sig.StallDurationMS) * time.Millisecond,
		})

	case TypeCheckpoint:
		if d.checkpoints == nil {
			return
		}
		if _, err := d.checkpoints.CreateCheckpoint(ctx, models.CreateCheckpointParams{
			SessionID:     sig.SessionID,
			AgentType:     sig.AgentType,
			ProjectID:     sig.ProjectID,
			WorkspaceID:   sig.WorkspaceID,
			StoryID:       sig.StoryID,
			CommitHash:    sig.CommitHash,
			Branch:        sig.Branch,
			FilesModified: sig.Files,
			TestsPassed:   sig.TestsPassed,
			Description:   sig.Description,
		}); err != nil {
			d.log.Errorf("record checkpoint for session %s: %v", sig.SessionID, err)
		}

	case TypeManualOverride:
		if d.overrides == nil {
			return
		}
		result, err := d.overrides.ManualOverride(ctx, models.ManualOverrideParams{
			FailureID:           sig.FailureID,
			Action:              models.ManualOverrideAction(sig.Action),
			Guidance:            sig.Guidance,
			ReassignToAgentType: sig.ReassignTo,
		})
		if err != nil {
			d.log.Errorf("manual override for failure %s: %v", sig.FailureID, err)
			return
		}
		d.log.Infof("manual override applied to failure %s: %s", sig.FailureID, result.Message)

	default:
		d.log.Tracef("ignoring unknown signal type %q", sig.Type)
	}
}
