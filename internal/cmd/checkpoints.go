package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/harrison/sentinel/internal/checkpoint"
	"github.com/harrison/sentinel/internal/config"
	"github.com/harrison/sentinel/internal/models"
)

// NewCheckpointsCommand creates the checkpoints command, which inspects
// the durable checkpoint store.
func NewCheckpointsCommand() *cobra.Command {
	var (
		configPath  string
		sessionID   string
		workspaceID string
		storyID     string
	)

	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect recorded checkpoints",
		Long: `Checkpoints lists a session's checkpoint history (newest first) or,
with --workspace and --story, the story's latest cross-session resume
point.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			store, err := checkpoint.NewSQLiteStore(cfg.Checkpoint.DBPath, cfg.Checkpoint.TTL, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			switch {
			case sessionID != "":
				checkpoints, err := store.GetSessionCheckpoints(ctx, sessionID)
				if err != nil {
					return err
				}
				if len(checkpoints) == 0 {
					fmt.Printf("no checkpoints for session %s\n", sessionID)
					return nil
				}
				for _, cp := range checkpoints {
					printCheckpoint(cp)
				}
				return nil

			case workspaceID != "" && storyID != "":
				cp, err := store.GetLatestStoryCheckpoint(ctx, workspaceID, storyID)
				if err != nil {
					return err
				}
				if cp == nil {
					fmt.Printf("no checkpoint for story %s/%s\n", workspaceID, storyID)
					return nil
				}
				printCheckpoint(cp)
				return nil

			default:
				return fmt.Errorf("either --session or both --workspace and --story are required")
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sentinel.yaml", "path to config file")
	cmd.Flags().StringVar(&sessionID, "session", "", "list a session's checkpoint history")
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "workspace for the story lookup")
	cmd.Flags().StringVar(&storyID, "story", "", "story for the latest-checkpoint lookup")
	return cmd
}

func printCheckpoint(cp *models.Checkpoint) {
	status := "tests failing"
	statusColor := color.New(color.FgRed)
	if cp.TestsPassed {
		status = "tests passing"
		statusColor = color.New(color.FgGreen)
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		statusColor.DisableColor()
	}

	fmt.Printf("%s  %s  %s  [%s]\n", cp.CreatedAt.Format("2006-01-02 15:04:05"),
		cp.ID, cp.CommitHash, statusColor.Sprint(status))
	fmt.Printf("    session %s  story %s  branch %s\n", cp.SessionID, cp.StoryID, cp.Branch)
	if len(cp.FilesModified) > 0 {
		fmt.Printf("    files: %s\n", strings.Join(cp.FilesModified, ", "))
	}
	if cp.Description != "" {
		fmt.Printf("    %s\n", cp.Description)
	}
}
