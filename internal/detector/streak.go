package detector

// streak counts consecutive failures against a threshold. The threshold
// logic lives here, apart from the detector, so it can be exercised in
// isolation: success resets the count, and the failure that reaches the
// threshold both reports the crossing and resets the count, making the
// crossing effectively idempotent against racing increments at the
// boundary.
type streak struct {
	count     int
	threshold int
}

func newStreak(threshold int) *streak {
	return &streak{threshold: threshold}
}

// onSuccess resets the consecutive-failure count.
func (s *streak) onSuccess() {
	s.count = 0
}

// onFailure records one more consecutive failure and reports true on the
// exact call that reaches the threshold. The count is reset before the
// crossing is reported.
func (s *streak) onFailure() bool {
	s.count++
	if s.count >= s.threshold {
		s.count = 0
		return true
	}
	return false
}

// Count returns the current consecutive-failure count.
func (s *streak) Count() int {
	return s.count
}
