package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/harrison/sentinel/internal/models"
)

func TestEscalationBannerDisplay(t *testing.T) {
	var buf bytes.Buffer

	EscalationBanner{
		Failure: &models.Failure{
			ID:           "failure-1",
			SessionID:    "session-1",
			StoryID:      "story-7",
			FailureType:  models.FailureLoop,
			ErrorDetails: "edited parser.go 20 times without passing tests",
		},
		ProjectID:    "project-1",
		TotalRetries: 3,
		MaxRetries:   3,
		Options:      models.ManualOverrideActions,
	}.Display(&buf)

	out := buf.String()
	for _, want := range []string{
		"loop failure in session session-1",
		"Project project-1 exhausted its retry budget (3/3)",
		"Story: story-7",
		"edited parser.go 20 times",
		"Failure ID: failure-1",
		"Available actions:",
		"1. terminate",
		"2. reassign",
		"3. provide_guidance",
		"sentinel override",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}

	if !strings.HasPrefix(out, "\x1b[33m") || !strings.HasSuffix(out, "\x1b[0m") {
		t.Errorf("banner should be wrapped in yellow/reset codes:\n%q", out)
	}
}

func TestEscalationBannerSingularAction(t *testing.T) {
	var buf bytes.Buffer

	EscalationBanner{
		ProjectID: "project-1",
		Options:   []models.ManualOverrideAction{models.OverrideTerminate},
	}.Display(&buf)

	out := buf.String()
	if !strings.Contains(out, "Available action:\n") {
		t.Errorf("expected singular heading for one action:\n%s", out)
	}
	if !strings.Contains(out, "failure requires manual intervention") {
		t.Errorf("expected generic title without failure detail:\n%s", out)
	}
}
