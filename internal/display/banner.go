// Package display renders operator-facing console notices. Escalations
// are the one supervision event a human must act on, so they get a
// banner rather than a log line.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/harrison/sentinel/internal/models"
)

// EscalationBanner is the console notice shown when a project exhausts
// its retry budget and a failure is handed to a human.
type EscalationBanner struct {
	Failure      *models.Failure
	ProjectID    string
	TotalRetries int
	MaxRetries   int
	Options      []models.ManualOverrideAction
}

// Display writes the formatted banner in yellow.
func (b EscalationBanner) Display(out io.Writer) {
	var sb strings.Builder

	sb.WriteString("\x1b[33m")
	sb.WriteString("⚠️  Escalation: ")
	if b.Failure != nil {
		fmt.Fprintf(&sb, "%s failure in session %s", b.Failure.FailureType, b.Failure.SessionID)
	} else {
		sb.WriteString("failure requires manual intervention")
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "    Project %s exhausted its retry budget (%d/%d)\n",
		b.ProjectID, b.TotalRetries, b.MaxRetries)

	if b.Failure != nil {
		if b.Failure.StoryID != "" {
			fmt.Fprintf(&sb, "    Story: %s\n", b.Failure.StoryID)
		}
		if b.Failure.ErrorDetails != "" {
			fmt.Fprintf(&sb, "    Details: %s\n", b.Failure.ErrorDetails)
		}
		fmt.Fprintf(&sb, "    Failure ID: %s\n", b.Failure.ID)
	}

	if len(b.Options) > 0 {
		if len(b.Options) == 1 {
			sb.WriteString("    Available action:\n")
		} else {
			sb.WriteString("    Available actions:\n")
		}
		for i, option := range b.Options {
			fmt.Fprintf(&sb, "      %d. %s\n", i+1, option)
		}
		sb.WriteString("    Respond with: sentinel override <failure-id> --action <action>\n")
	}

	sb.WriteString("\x1b[0m")
	fmt.Fprint(out, sb.String())
}
