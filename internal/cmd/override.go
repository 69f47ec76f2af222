package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/sentinel/internal/config"
	"github.com/harrison/sentinel/internal/models"
	"github.com/harrison/sentinel/internal/signals"
)

// NewOverrideCommand creates the override command, which appends a
// manual override decision to the signal stream of a running supervisor.
func NewOverrideCommand() *cobra.Command {
	var (
		configPath   string
		action       string
		guidanceFile string
		reassignTo   string
	)

	cmd := &cobra.Command{
		Use:   "override <failure-id>",
		Short: "Apply a manual override to an escalated failure",
		Long: `Override delivers a human decision for a failure that exhausted its
retry budget: terminate the work, reassign the story to a different
agent type, or relaunch with written guidance (markdown, via
--guidance-file).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			switch models.ManualOverrideAction(action) {
			case models.OverrideTerminate, models.OverrideReassign, models.OverrideProvideGuidance:
			default:
				return fmt.Errorf("invalid action %q (valid: terminate, reassign, provide_guidance)", action)
			}

			sig := signals.Signal{
				Type:       signals.TypeManualOverride,
				FailureID:  args[0],
				Action:     action,
				ReassignTo: reassignTo,
			}
			if guidanceFile != "" {
				guidance, err := os.ReadFile(guidanceFile)
				if err != nil {
					return fmt.Errorf("read guidance file: %w", err)
				}
				sig.Guidance = string(guidance)
			}

			file, err := os.OpenFile(cfg.SignalStream, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("open signal stream: %w", err)
			}
			defer file.Close()
			if err := json.NewEncoder(file).Encode(sig); err != nil {
				return fmt.Errorf("append override: %w", err)
			}

			fmt.Printf("override %s queued for failure %s\n", action, args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sentinel.yaml", "path to config file")
	cmd.Flags().StringVarP(&action, "action", "a", "", "override action: terminate, reassign, provide_guidance")
	cmd.Flags().StringVar(&guidanceFile, "guidance-file", "", "markdown file with operator guidance")
	cmd.Flags().StringVar(&reassignTo, "reassign-to", "", "agent type to reassign the story to")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}
