// Package detector implements the failure detector: one tracking record
// per active worker session, consuming lifecycle signals and a deadline
// timer, and emitting a classified failure exactly once per threshold
// crossing. There is no automatic return to a clean state after a
// failure fires; the recovery orchestrator must explicitly resolve it.
package detector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harrison/sentinel/internal/checkpoint"
	"github.com/harrison/sentinel/internal/config"
	"github.com/harrison/sentinel/internal/events"
	"github.com/harrison/sentinel/internal/logger"
	"github.com/harrison/sentinel/internal/models"
)

// RegisterParams describes a session to start tracking.
type RegisterParams struct {
	SessionID   string
	AgentType   string
	ProjectID   string
	WorkspaceID string
	StoryID     string

	// MaxDuration overrides the configured session deadline when
	// positive.
	MaxDuration time.Duration
}

// ProcessExitEvent is delivered by the process supervisor when a worker
// exits.
type ProcessExitEvent struct {
	SessionID string
	ExitCode  int
	Signal    string
	Stderr    string
}

// APIErrorEvent reports the outcome of one worker API call.
type APIErrorEvent struct {
	SessionID    string
	StatusCode   int
	ErrorMessage string
}

// FileModificationEvent reports one file edit and whether tests passed
// for that file afterwards.
type FileModificationEvent struct {
	SessionID   string
	FilePath    string
	TestsPassed bool
}

// StallEvent is delivered by the stall-detection collaborator once it
// has decided the session produced no output for too long.
type StallEvent struct {
	SessionID     string
	LastActivity  time.Time
	StallDuration time.Duration
}

// Detector tracks active sessions and classifies failures. It is safe
// for concurrent use: one lock serializes all per-session transitions,
// preserving the exactly-one-failure-per-threshold-crossing guarantee on
// a multi-threaded runtime.
type Detector struct {
	mu          sync.Mutex
	cfg         config.DetectorConfig
	sessions    SessionStore
	failures    map[string]*models.Failure
	bus         *events.Bus
	checkpoints checkpoint.Store
	log         logger.Logger
}

// New creates a Detector. sessions may be nil for the default in-memory
// store; checkpoints may be nil (failures then carry no checkpoint
// reference); log may be nil.
func New(cfg config.DetectorConfig, sessions SessionStore, checkpoints checkpoint.Store, bus *events.Bus, log logger.Logger) *Detector {
	if sessions == nil {
		sessions = NewMapSessionStore()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Detector{
		cfg:         cfg,
		sessions:    sessions,
		failures:    make(map[string]*models.Failure),
		bus:         bus,
		checkpoints: checkpoints,
		log:         log,
	}
}

// RegisterSession starts tracking a session and arms its deadline timer.
// Registering an already-tracked session ID replaces the old record and
// cancels its timer.
func (d *Detector) RegisterSession(params RegisterParams) {
	maxDuration := params.MaxDuration
	if maxDuration <= 0 {
		maxDuration = d.cfg.MaxSessionDuration
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.sessions.Get(params.SessionID); ok {
		existing.timer.Stop()
	}

	session := &TrackedSession{
		SessionID:   params.SessionID,
		AgentType:   params.AgentType,
		ProjectID:   params.ProjectID,
		WorkspaceID: params.WorkspaceID,
		StoryID:     params.StoryID,
		CreatedAt:   time.Now(),
		apiErrors:   newStreak(d.cfg.APIErrorThreshold),
		fileEdits:   make(map[string]*streak),
	}
	session.timer = time.AfterFunc(maxDuration, func() {
		d.onDeadline(params.SessionID)
	})
	d.sessions.Put(session)

	d.log.Debugf("tracking session %s (agent %s, story %s, deadline %v)",
		params.SessionID, params.AgentType, params.StoryID, maxDuration)
}

// UnregisterSession stops tracking a session and cancels its deadline
// timer. Idempotent for unknown or already-removed sessions. The timer
// is stopped under the detector lock, so a timeout can never fire after
// this returns.
func (d *Detector) UnregisterSession(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, ok := d.sessions.Get(sessionID)
	if !ok {
		return
	}
	session.timer.Stop()
	d.sessions.Delete(sessionID)
	d.log.Debugf("stopped tracking session %s", sessionID)
}

// onDeadline is the deadline timer callback. It re-checks registration
// under the lock: a session unregistered between the timer firing and
// the callback running raises nothing.
func (d *Detector) onDeadline(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, ok := d.sessions.Get(sessionID)
	if !ok {
		return
	}
	d.raiseFailure(context.Background(), session, models.FailureTimeout,
		fmt.Sprintf("session exceeded maximum duration (registered %s)",
			session.CreatedAt.Format(time.RFC3339)),
		nil)
}

// HandleProcessExit classifies a worker exit. A clean exit (code 0, no
// signal) returns nil. Anything else raises a crash failure; if the
// session was never registered, a best-effort failure is synthesized
// with unknown identifiers rather than dropped.
func (d *Detector) HandleProcessExit(ctx context.Context, event ProcessExitEvent) *models.Failure {
	if event.ExitCode == 0 && event.Signal == "" {
		return nil
	}

	details := fmt.Sprintf("process exited with code %d", event.ExitCode)
	if event.Signal != "" {
		details += fmt.Sprintf(" (signal %s)", event.Signal)
	}
	if event.Stderr != "" {
		details += ": " + event.Stderr
	}
	metadata := map[string]string{
		"exit_code": fmt.Sprintf("%d", event.ExitCode),
	}
	if event.Signal != "" {
		metadata["signal"] = event.Signal
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	session, ok := d.sessions.Get(event.SessionID)
	if !ok {
		session = &TrackedSession{
			SessionID:   event.SessionID,
			AgentType:   models.UnknownID,
			ProjectID:   models.UnknownID,
			WorkspaceID: models.UnknownID,
			StoryID:     models.UnknownID,
		}
	}
	return d.raiseFailure(ctx, session, models.FailureCrash, details, metadata)
}

// HandleAPIError tracks consecutive failed API calls. A status below 400
// resets the counter and returns nil; otherwise the counter increments
// and a failure is raised on exactly the call that reaches the
// threshold. Unknown sessions are ignored.
func (d *Detector) HandleAPIError(ctx context.Context, event APIErrorEvent) *models.Failure {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, ok := d.sessions.Get(event.SessionID)
	if !ok {
		d.log.Tracef("api result for untracked session %s ignored", event.SessionID)
		return nil
	}

	if event.StatusCode < 400 {
		session.apiErrors.onSuccess()
		return nil
	}

	if !session.apiErrors.onFailure() {
		return nil
	}

	details := fmt.Sprintf("%d consecutive API errors, last status %d: %s",
		d.cfg.APIErrorThreshold, event.StatusCode, event.ErrorMessage)
	return d.raiseFailure(ctx, session, models.FailureAPIError, details, map[string]string{
		"status_code": fmt.Sprintf("%d", event.StatusCode),
	})
}

// HandleFileModification tracks consecutive edits to a file that never
// get its tests passing. A passing edit resets that file's counter and
// returns nil; the edit that reaches the threshold raises a loop
// failure. Unknown sessions are ignored.
func (d *Detector) HandleFileModification(ctx context.Context, event FileModificationEvent) *models.Failure {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, ok := d.sessions.Get(event.SessionID)
	if !ok {
		d.log.Tracef("file edit for untracked session %s ignored", event.SessionID)
		return nil
	}

	counter, ok := session.fileEdits[event.FilePath]
	if !ok {
		counter = newStreak(d.cfg.EditLoopThreshold)
		session.fileEdits[event.FilePath] = counter
	}

	if event.TestsPassed {
		counter.onSuccess()
		return nil
	}

	if !counter.onFailure() {
		return nil
	}

	details := fmt.Sprintf("%d consecutive edits to %s without passing tests",
		d.cfg.EditLoopThreshold, event.FilePath)
	return d.raiseFailure(ctx, session, models.FailureLoop, details, map[string]string{
		"file_path": event.FilePath,
	})
}

// HandleSessionStalled raises a stuck failure for a registered session.
// The stall decision itself belongs to the collaborator that watches
// worker output; the detector only classifies. Unknown sessions are
// ignored.
func (d *Detector) HandleSessionStalled(ctx context.Context, event StallEvent) *models.Failure {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, ok := d.sessions.Get(event.SessionID)
	if !ok {
		d.log.Tracef("stall notice for untracked session %s ignored", event.SessionID)
		return nil
	}

	details := fmt.Sprintf("no output for %v (last activity %s)",
		event.StallDuration, event.LastActivity.Format(time.RFC3339))
	return d.raiseFailure(ctx, session, models.FailureStuck, details, nil)
}

// GetActiveFailures returns the unresolved failures.
func (d *Detector) GetActiveFailures() []*models.Failure {
	d.mu.Lock()
	defer d.mu.Unlock()

	failures := make([]*models.Failure, 0, len(d.failures))
	for _, f := range d.failures {
		failures = append(failures, f)
	}
	return failures
}

// GetFailure returns an active failure by ID.
func (d *Detector) GetFailure(id string) (*models.Failure, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.failures[id]
	return f, ok
}

// ResolveFailure marks a failure resolved and evicts it from the active
// map so the map cannot grow without bound. Unknown IDs are a no-op.
func (d *Detector) ResolveFailure(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.failures[id]
	if !ok {
		return
	}
	f.Resolved = true
	delete(d.failures, id)
	d.log.Debugf("failure %s resolved", id)
}

// TrackedCount returns the number of sessions currently tracked.
func (d *Detector) TrackedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions.Len()
}

// raiseFailure builds a failure, attaches the session's latest
// checkpoint best-effort, stores it in the active map, and broadcasts it
// on the bus. Callers hold d.mu.
func (d *Detector) raiseFailure(ctx context.Context, session *TrackedSession, failureType models.FailureType, details string, metadata map[string]string) *models.Failure {
	failure := &models.Failure{
		ID:             models.NewFailureID(),
		SessionID:      session.SessionID,
		AgentType:      session.AgentType,
		ProjectID:      session.ProjectID,
		WorkspaceID:    session.WorkspaceID,
		StoryID:        session.StoryID,
		FailureType:    failureType,
		RecoveryAction: models.RecoveryPending,
		ErrorDetails:   details,
		Timestamp:      time.Now(),
		Metadata:       metadata,
	}

	if d.checkpoints != nil {
		cp, err := d.checkpoints.GetLatestCheckpoint(ctx, session.SessionID)
		if err != nil {
			d.log.Warnf("checkpoint lookup for session %s failed: %v", session.SessionID, err)
		} else {
			failure.LastCheckpoint = cp
		}
	}

	d.failures[failure.ID] = failure
	d.log.Warnf("session %s failed: %s (%s)", session.SessionID, failureType, details)

	if d.bus != nil {
		d.bus.Publish(models.TopicFailure, failure)
	}
	return failure
}
