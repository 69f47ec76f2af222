package recovery

import (
	"time"

	"github.com/harrison/sentinel/internal/models"
)

// rateLimitStatusCodes are the HTTP statuses treated as rate-limit
// flavored, which seed backoff at a longer base delay.
var rateLimitStatusCodes = map[string]bool{
	"429": true,
	"503": true,
}

// BackoffPolicy computes the wait before a recovery attempt: an
// exponential curve seeded at Base (or RateLimitBase for rate-limit
// flavored failures) and capped at Cap.
type BackoffPolicy struct {
	Base          time.Duration
	RateLimitBase time.Duration
	Cap           time.Duration
}

// Delay returns the wait before the given 1-indexed attempt. The first
// attempt for a non-rate-limited failure waits Base; each further
// attempt doubles the previous wait.
func (p BackoffPolicy) Delay(failure *models.Failure, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := p.Base
	if isRateLimited(failure) && p.RateLimitBase > base {
		base = p.RateLimitBase
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.Cap > 0 && delay >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && delay > p.Cap {
		return p.Cap
	}
	return delay
}

// isRateLimited reports whether the failure's metadata carries a
// rate-limit flavored HTTP status.
func isRateLimited(failure *models.Failure) bool {
	if failure == nil || failure.Metadata == nil {
		return false
	}
	return rateLimitStatusCodes[failure.Metadata["status_code"]]
}
