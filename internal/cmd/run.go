package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/sentinel/internal/checkpoint"
	"github.com/harrison/sentinel/internal/config"
	"github.com/harrison/sentinel/internal/detector"
	"github.com/harrison/sentinel/internal/display"
	"github.com/harrison/sentinel/internal/events"
	"github.com/harrison/sentinel/internal/filelock"
	"github.com/harrison/sentinel/internal/logger"
	"github.com/harrison/sentinel/internal/models"
	"github.com/harrison/sentinel/internal/recovery"
	"github.com/harrison/sentinel/internal/signals"
)

// purgeInterval spaces the housekeeping sweeps over expired checkpoints.
const purgeInterval = time.Hour

// NewRunCommand creates the run command, which starts the supervision
// loop and blocks until interrupted.
func NewRunCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the supervision loop",
		Long: `Run tails the process supervisor's signal stream, tracks every
active session, and recovers failed ones. Launch requests for
replacement sessions are appended to the launch stream for the process
supervisor to act on.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return runSupervisor(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sentinel.yaml", "path to config file")
	return cmd
}

func runSupervisor(parent context.Context, cfg *config.Config) error {
	log := logger.NewConsoleLogger(os.Stdout, cfg.LogLevel)

	lock, err := filelock.Acquire(cfg.DataDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := checkpoint.NewSQLiteStore(cfg.Checkpoint.DBPath, cfg.Checkpoint.TTL, log)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := events.NewBus()
	det := detector.New(cfg.Detector, nil, store, bus, log)
	launcher := signals.NewStreamLauncher(cfg.LaunchStream)
	orch := recovery.New(cfg.Recovery, bus, det, launcher, store, log)
	dispatcher := signals.NewDispatcher(det, store, orch, log)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Audit every recovery event at info level.
	go auditEvents(ctx, bus, log)

	go func() {
		if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("orchestrator stopped: %v", err)
		}
	}()

	go purgeLoop(ctx, store, log)

	watcher := signals.NewWatcher(cfg.SignalStream, dispatcher.Dispatch, func(line []byte, err error) {
		log.Warnf("skipping malformed signal: %v", err)
	})

	log.Infof("sentinel supervising %s (launch stream %s)", cfg.SignalStream, cfg.LaunchStream)
	if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Infof("sentinel shutting down")
	return nil
}

// auditEvents logs every recovery event published on the bus.
// Escalations additionally get a console banner since a human has to
// pick the next step.
func auditEvents(ctx context.Context, bus *events.Bus, log logger.Logger) {
	topics := []string{
		models.TopicRecoveryAttempt,
		models.TopicRecoverySuccess,
		models.TopicRecoveryEscalation,
	}
	for _, topic := range topics {
		ch, cancel := bus.Subscribe(topic, 0)
		defer cancel()
		go func(topic string, ch <-chan events.Event) {
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					log.Infof("event %s: %+v", topic, ev.Payload)
					if escalation, ok := ev.Payload.(*models.RecoveryEscalationEvent); ok {
						display.EscalationBanner{
							Failure:      escalation.Failure,
							ProjectID:    escalation.ProjectID,
							TotalRetries: escalation.TotalRetries,
							MaxRetries:   escalation.MaxRetries,
							Options:      escalation.Options,
						}.Display(os.Stderr)
					}
				}
			}
		}(topic, ch)
	}
	<-ctx.Done()
}

// purgeLoop sweeps expired checkpoints on a fixed interval.
func purgeLoop(ctx context.Context, store *checkpoint.SQLiteStore, log logger.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := store.PurgeExpired(ctx)
			if err != nil {
				log.Warnf("checkpoint purge failed: %v", err)
			} else if purged > 0 {
				log.Debugf("purged %d expired checkpoint rows", purged)
			}
		}
	}
}
