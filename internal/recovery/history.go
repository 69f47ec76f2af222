package recovery

import (
	"github.com/harrison/sentinel/internal/models"
)

// projectState is the orchestrator's per-project bookkeeping: retry
// budget consumption, escalation flag, and the chronological recovery
// log. Guarded by the orchestrator's lock.
type projectState struct {
	projectID    string
	totalRetries int
	isEscalated  bool
	history      []models.RecoveryHistoryEntry
	historyLimit int
}

func newProjectState(projectID string, historyLimit int) *projectState {
	return &projectState{
		projectID:    projectID,
		historyLimit: historyLimit,
	}
}

// append records a history entry, trimming the oldest entries once the
// limit is exceeded.
func (ps *projectState) append(entry models.RecoveryHistoryEntry) {
	ps.history = append(ps.history, entry)
	if ps.historyLimit > 0 && len(ps.history) > ps.historyLimit {
		ps.history = ps.history[len(ps.history)-ps.historyLimit:]
	}
}

// page returns a copy of a slice of the log, newest first, for the
// limit/offset listing surface.
func (ps *projectState) page(limit, offset int) []models.RecoveryHistoryEntry {
	n := len(ps.history)
	if offset < 0 {
		offset = 0
	}
	if offset >= n {
		return nil
	}

	// history is appended oldest-first; serve newest-first.
	entries := make([]models.RecoveryHistoryEntry, 0, n-offset)
	for i := n - 1 - offset; i >= 0; i-- {
		entries = append(entries, ps.history[i])
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries
}
