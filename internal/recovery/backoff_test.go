package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harrison/sentinel/internal/models"
)

func TestBackoff_ExponentialCurve(t *testing.T) {
	policy := BackoffPolicy{
		Base:          2 * time.Second,
		RateLimitBase: 30 * time.Second,
		Cap:           5 * time.Minute,
	}
	failure := &models.Failure{FailureType: models.FailureCrash}

	assert.Equal(t, 2*time.Second, policy.Delay(failure, 1))
	assert.Equal(t, 4*time.Second, policy.Delay(failure, 2))
	assert.Equal(t, 8*time.Second, policy.Delay(failure, 3))
	assert.Equal(t, 16*time.Second, policy.Delay(failure, 4))
}

func TestBackoff_CapBoundsDelay(t *testing.T) {
	policy := BackoffPolicy{
		Base: time.Second,
		Cap:  10 * time.Second,
	}
	failure := &models.Failure{FailureType: models.FailureCrash}

	assert.Equal(t, 10*time.Second, policy.Delay(failure, 5))
	assert.Equal(t, 10*time.Second, policy.Delay(failure, 50))
}

func TestBackoff_RateLimitedSeedsLonger(t *testing.T) {
	policy := BackoffPolicy{
		Base:          2 * time.Second,
		RateLimitBase: 30 * time.Second,
		Cap:           5 * time.Minute,
	}

	rateLimited := &models.Failure{
		FailureType: models.FailureAPIError,
		Metadata:    map[string]string{"status_code": "429"},
	}
	assert.Equal(t, 30*time.Second, policy.Delay(rateLimited, 1))
	assert.Equal(t, time.Minute, policy.Delay(rateLimited, 2))

	overloaded := &models.Failure{
		FailureType: models.FailureAPIError,
		Metadata:    map[string]string{"status_code": "503"},
	}
	assert.Equal(t, 30*time.Second, policy.Delay(overloaded, 1))

	plainError := &models.Failure{
		FailureType: models.FailureAPIError,
		Metadata:    map[string]string{"status_code": "500"},
	}
	assert.Equal(t, 2*time.Second, policy.Delay(plainError, 1))
}

func TestBackoff_AttemptFloorAndNilFailure(t *testing.T) {
	policy := BackoffPolicy{Base: time.Second, Cap: time.Minute}

	// Attempt below one is treated as the first attempt.
	assert.Equal(t, time.Second, policy.Delay(&models.Failure{}, 0))
	// Nil failures and nil metadata never panic.
	assert.Equal(t, time.Second, policy.Delay(nil, 1))
}
