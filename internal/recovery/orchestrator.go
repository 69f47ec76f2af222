// Package recovery implements the recovery orchestrator: it consumes
// classified failures from the bus, picks a strategy per failure type,
// launches replacement sessions through the worker-launch collaborator,
// tracks the per-project retry budget, and escalates to a human with a
// set of override actions once the budget is exhausted.
package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harrison/sentinel/internal/checkpoint"
	"github.com/harrison/sentinel/internal/config"
	"github.com/harrison/sentinel/internal/events"
	"github.com/harrison/sentinel/internal/guidance"
	"github.com/harrison/sentinel/internal/logger"
	"github.com/harrison/sentinel/internal/models"
)

// SessionLauncher is the process-supervisor collaborator that starts a
// replacement worker session and returns its session ID.
type SessionLauncher interface {
	LaunchSession(ctx context.Context, spec models.LaunchSpec) (string, error)
}

// FailureRegistry is the read/resolve view of the detector's active
// failures. The orchestrator never mutates tracking state; it only reads
// failures and resolves them.
type FailureRegistry interface {
	GetActiveFailures() []*models.Failure
	GetFailure(id string) (*models.Failure, bool)
	ResolveFailure(id string)
}

// Orchestrator drives failures back to a known-good state. Failures for
// different sessions are handled concurrently; per-project bookkeeping
// is serialized by the orchestrator's lock.
type Orchestrator struct {
	cfg         config.RecoveryConfig
	bus         *events.Bus
	failures    FailureRegistry
	launcher    SessionLauncher
	checkpoints checkpoint.Store
	guidance    *guidance.Parser
	backoff     BackoffPolicy
	log         logger.Logger

	mu       sync.Mutex
	projects map[string]*projectState

	// sleep is context-aware and injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator. checkpoints may be nil only in tests that
// never exercise checkpoint recovery; log may be nil.
func New(cfg config.RecoveryConfig, bus *events.Bus, failures FailureRegistry, launcher SessionLauncher, checkpoints checkpoint.Store, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		cfg:         cfg,
		bus:         bus,
		failures:    failures,
		launcher:    launcher,
		checkpoints: checkpoints,
		guidance:    guidance.NewParser(),
		backoff: BackoffPolicy{
			Base:          cfg.BackoffBase,
			RateLimitBase: cfg.RateLimitBackoffBase,
			Cap:           cfg.BackoffCap,
		},
		log:      log,
		projects: make(map[string]*projectState),
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run subscribes to failure events and handles each in its own
// goroutine until the context is cancelled. In-flight recoveries are
// awaited before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	ch, cancel := o.bus.Subscribe(models.TopicFailure, 0)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			failure, ok := ev.Payload.(*models.Failure)
			if !ok {
				o.log.Warnf("ignoring malformed payload on %s", models.TopicFailure)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				o.HandleFailure(ctx, failure)
			}()
		}
	}
}

// HandleFailure drives one failure to resolution or escalation. A failed
// launch attempt consumes retry budget and is retried after backoff;
// persistent launch failure therefore terminates in escalation rather
// than taking down the supervision loop.
func (o *Orchestrator) HandleFailure(ctx context.Context, failure *models.Failure) *models.RecoveryResult {
	for {
		ps := o.project(failure.ProjectID)

		o.mu.Lock()
		if failure.Resolved {
			o.mu.Unlock()
			return &models.RecoveryResult{
				FailureID: failure.ID,
				Action:    failure.RecoveryAction,
				Success:   true,
				Message:   "failure already resolved",
			}
		}
		if ps.totalRetries >= o.cfg.MaxRetries {
			result := o.escalateLocked(ps, failure)
			o.mu.Unlock()
			return result
		}
		ps.totalRetries++
		failure.RetryCount++
		attempt := failure.RetryCount
		strategy := o.strategyFor(failure.FailureType)
		failure.RecoveryAction = strategy
		o.mu.Unlock()

		o.bus.Publish(models.TopicRecoveryAttempt, &models.RecoveryAttemptEvent{
			Failure:   failure,
			Action:    strategy,
			Attempt:   attempt,
			Timestamp: time.Now(),
		})

		delay := o.backoff.Delay(failure, attempt)
		o.log.Infof("recovery attempt %d for failure %s (%s): %s after %v",
			attempt, failure.ID, failure.FailureType, strategy, delay)
		if err := o.sleep(ctx, delay); err != nil {
			return &models.RecoveryResult{
				FailureID: failure.ID,
				Action:    strategy,
				Success:   false,
				Message:   "recovery aborted: " + err.Error(),
			}
		}

		spec := o.launchSpec(ctx, failure, strategy)
		sessionID, err := o.launcher.LaunchSession(ctx, spec)
		if err != nil {
			// The failed attempt is recorded crash-flavored and the
			// failure stays active for the next pass of the loop.
			o.recordAttempt(ps, failure, strategy, attempt, false,
				fmt.Sprintf("launch failed (crash): %v", err))
			o.log.Errorf("launch for failure %s failed: %v", failure.ID, err)
			continue
		}

		o.recordAttempt(ps, failure, strategy, attempt, true,
			"replacement session "+sessionID)
		o.failures.ResolveFailure(failure.ID)

		o.bus.Publish(models.TopicRecoverySuccess, &models.RecoverySuccessEvent{
			Failure:      failure,
			Action:       strategy,
			NewSessionID: sessionID,
			Timestamp:    time.Now(),
		})
		o.log.Infof("failure %s recovered via %s, replacement session %s",
			failure.ID, strategy, sessionID)

		return &models.RecoveryResult{
			FailureID:    failure.ID,
			Action:       strategy,
			NewSessionID: sessionID,
			Success:      true,
		}
	}
}

// escalateLocked marks the failure escalated, flags the project, and
// publishes the escalation with the actions a human may take. The
// failure stays open until a manual override arrives; escalations never
// expire. Callers hold o.mu.
func (o *Orchestrator) escalateLocked(ps *projectState, failure *models.Failure) *models.RecoveryResult {
	alreadyEscalated := failure.RecoveryAction == models.RecoveryEscalated
	failure.RecoveryAction = models.RecoveryEscalated
	ps.isEscalated = true

	if !alreadyEscalated {
		ps.append(models.RecoveryHistoryEntry{
			FailureID:   failure.ID,
			SessionID:   failure.SessionID,
			StoryID:     failure.StoryID,
			FailureType: failure.FailureType,
			Action:      models.RecoveryEscalated,
			Attempt:     failure.RetryCount,
			Succeeded:   false,
			Detail:      fmt.Sprintf("retry budget exhausted (%d/%d)", ps.totalRetries, o.cfg.MaxRetries),
			Timestamp:   time.Now(),
		})

		o.bus.Publish(models.TopicRecoveryEscalation, &models.RecoveryEscalationEvent{
			Failure:      failure,
			ProjectID:    ps.projectID,
			TotalRetries: ps.totalRetries,
			MaxRetries:   o.cfg.MaxRetries,
			Options:      models.ManualOverrideActions,
			Timestamp:    time.Now(),
		})
		o.log.Warnf("failure %s escalated: project %s exhausted retry budget (%d/%d)",
			failure.ID, ps.projectID, ps.totalRetries, o.cfg.MaxRetries)
	}

	return &models.RecoveryResult{
		FailureID: failure.ID,
		Action:    models.RecoveryEscalated,
		Success:   false,
		Message:   "retry budget exhausted; awaiting manual override",
	}
}

// ManualOverride applies a human decision to an escalated (or any still
// active) failure. All actions resolve the originating failure; reassign
// and provide_guidance also launch a replacement session resuming from
// the story's latest checkpoint. A successful override clears the
// project's escalation flag and restores its retry budget.
func (o *Orchestrator) ManualOverride(ctx context.Context, params models.ManualOverrideParams) (*models.RecoveryResult, error) {
	failure, ok := o.failures.GetFailure(params.FailureID)
	if !ok {
		return nil, fmt.Errorf("failure %s not found or already resolved", params.FailureID)
	}

	ps := o.project(failure.ProjectID)

	var (
		newSessionID string
		message      string
	)

	switch params.Action {
	case models.OverrideTerminate:
		message = "session terminated by operator"

	case models.OverrideReassign:
		if params.ReassignToAgentType == "" {
			return nil, fmt.Errorf("reassign requires a target agent type")
		}
		spec := models.LaunchSpec{
			AgentType:   params.ReassignToAgentType,
			ProjectID:   failure.ProjectID,
			WorkspaceID: failure.WorkspaceID,
			StoryID:     failure.StoryID,
			ResumeFrom:  o.storyCheckpoint(ctx, failure),
		}
		sessionID, err := o.launcher.LaunchSession(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("reassign launch failed: %w", err)
		}
		newSessionID = sessionID
		message = fmt.Sprintf("story reassigned to agent %s", params.ReassignToAgentType)

	case models.OverrideProvideGuidance:
		if params.Guidance == "" {
			return nil, fmt.Errorf("provide_guidance requires guidance text")
		}
		spec := models.LaunchSpec{
			AgentType:   failure.AgentType,
			ProjectID:   failure.ProjectID,
			WorkspaceID: failure.WorkspaceID,
			StoryID:     failure.StoryID,
			ResumeFrom:  o.storyCheckpoint(ctx, failure),
			Guidance:    o.guidance.Render(params.Guidance),
		}
		sessionID, err := o.launcher.LaunchSession(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("guided relaunch failed: %w", err)
		}
		newSessionID = sessionID
		message = "session relaunched with operator guidance"

	default:
		return nil, fmt.Errorf("unknown override action %q", params.Action)
	}

	failure.RecoveryAction = models.RecoveryManualOverride
	o.failures.ResolveFailure(failure.ID)

	o.mu.Lock()
	ps.append(models.RecoveryHistoryEntry{
		FailureID:   failure.ID,
		SessionID:   failure.SessionID,
		StoryID:     failure.StoryID,
		FailureType: failure.FailureType,
		Action:      models.RecoveryManualOverride,
		Attempt:     failure.RetryCount,
		Succeeded:   true,
		Detail:      string(params.Action) + ": " + message,
		Timestamp:   time.Now(),
	})
	// Human intervention restores the project's budget.
	ps.isEscalated = false
	ps.totalRetries = 0
	o.mu.Unlock()

	o.log.Infof("manual override %s applied to failure %s: %s", params.Action, failure.ID, message)

	return &models.RecoveryResult{
		FailureID:    failure.ID,
		Action:       models.RecoveryManualOverride,
		NewSessionID: newSessionID,
		Success:      true,
		Message:      message,
	}, nil
}

// Status returns the project's recovery aggregate: active failures,
// the recovery log, and budget consumption.
func (o *Orchestrator) Status(projectID string) *models.PipelineRecoveryStatus {
	var active []*models.Failure
	for _, f := range o.failures.GetActiveFailures() {
		if f.ProjectID == projectID {
			active = append(active, f)
		}
	}

	ps := o.project(projectID)
	o.mu.Lock()
	defer o.mu.Unlock()

	history := make([]models.RecoveryHistoryEntry, len(ps.history))
	copy(history, ps.history)

	return &models.PipelineRecoveryStatus{
		ProjectID:      projectID,
		ActiveFailures: active,
		History:        history,
		IsEscalated:    ps.isEscalated,
		TotalRetries:   ps.totalRetries,
		MaxRetries:     o.cfg.MaxRetries,
	}
}

// History returns a page of the project's recovery log, newest first.
func (o *Orchestrator) History(projectID string, limit, offset int) []models.RecoveryHistoryEntry {
	ps := o.project(projectID)
	o.mu.Lock()
	defer o.mu.Unlock()
	return ps.page(limit, offset)
}

// project returns (creating if needed) the project's bookkeeping.
func (o *Orchestrator) project(projectID string) *projectState {
	o.mu.Lock()
	defer o.mu.Unlock()
	ps, ok := o.projects[projectID]
	if !ok {
		ps = newProjectState(projectID, o.cfg.HistoryLimit)
		o.projects[projectID] = ps
	}
	return ps
}

// strategyFor maps a failure type to its configured strategy, defaulting
// to retry. The mapping in the default config is a reasonable default,
// not a verified contract, which is why it is configuration.
func (o *Orchestrator) strategyFor(failureType models.FailureType) models.RecoveryAction {
	switch o.cfg.Strategies[string(failureType)] {
	case "checkpoint_recovery":
		return models.RecoveryCheckpoint
	case "context_refresh":
		return models.RecoveryContextRefresh
	default:
		return models.RecoveryRetry
	}
}

// launchSpec builds the replacement-session spec for a strategy.
// checkpoint_recovery resumes from the story's latest checkpoint;
// context_refresh does the same but with a rebuilt context; retry starts
// clean.
func (o *Orchestrator) launchSpec(ctx context.Context, failure *models.Failure, strategy models.RecoveryAction) models.LaunchSpec {
	spec := models.LaunchSpec{
		AgentType:   failure.AgentType,
		ProjectID:   failure.ProjectID,
		WorkspaceID: failure.WorkspaceID,
		StoryID:     failure.StoryID,
	}
	switch strategy {
	case models.RecoveryCheckpoint:
		spec.ResumeFrom = o.storyCheckpoint(ctx, failure)
	case models.RecoveryContextRefresh:
		spec.ResumeFrom = o.storyCheckpoint(ctx, failure)
		spec.FreshContext = true
	}
	return spec
}

// storyCheckpoint looks up the story's latest checkpoint. The store is
// the only source of resumability truth; a lookup error degrades to a
// fresh start.
func (o *Orchestrator) storyCheckpoint(ctx context.Context, failure *models.Failure) *models.Checkpoint {
	if o.checkpoints == nil {
		return nil
	}
	cp, err := o.checkpoints.GetLatestStoryCheckpoint(ctx, failure.WorkspaceID, failure.StoryID)
	if err != nil {
		o.log.Warnf("story checkpoint lookup for %s/%s failed, starting fresh: %v",
			failure.WorkspaceID, failure.StoryID, err)
		return nil
	}
	return cp
}

// recordAttempt appends one attempt outcome to the project log.
func (o *Orchestrator) recordAttempt(ps *projectState, failure *models.Failure, action models.RecoveryAction, attempt int, succeeded bool, detail string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ps.append(models.RecoveryHistoryEntry{
		FailureID:   failure.ID,
		SessionID:   failure.SessionID,
		StoryID:     failure.StoryID,
		FailureType: failure.FailureType,
		Action:      action,
		Attempt:     attempt,
		Succeeded:   succeeded,
		Detail:      detail,
		Timestamp:   time.Now(),
	})
}
