package detector

import "testing"

func TestStreak_CrossesExactlyAtThreshold(t *testing.T) {
	s := newStreak(3)

	if s.onFailure() {
		t.Error("Expected no crossing after 1 failure")
	}
	if s.onFailure() {
		t.Error("Expected no crossing after 2 failures")
	}
	if !s.onFailure() {
		t.Error("Expected crossing on 3rd consecutive failure")
	}
}

func TestStreak_ResetsAfterCrossing(t *testing.T) {
	s := newStreak(2)

	s.onFailure()
	if !s.onFailure() {
		t.Fatal("Expected crossing on 2nd failure")
	}
	if s.Count() != 0 {
		t.Errorf("Expected count reset to 0 after crossing, got %d", s.Count())
	}

	// A fresh threshold's worth of failures is needed for the next crossing.
	if s.onFailure() {
		t.Error("Expected no crossing on 1st failure after reset")
	}
	if !s.onFailure() {
		t.Error("Expected crossing on 2nd failure after reset")
	}
}

func TestStreak_SuccessResetsCount(t *testing.T) {
	s := newStreak(3)

	s.onFailure()
	s.onFailure()
	s.onSuccess()

	if s.Count() != 0 {
		t.Errorf("Expected count 0 after success, got %d", s.Count())
	}

	// Success delays the next crossing by a full threshold.
	s.onFailure()
	s.onFailure()
	if s.onFailure() != true {
		t.Error("Expected crossing on 3rd failure after reset")
	}
}

func TestStreak_ThresholdOne(t *testing.T) {
	s := newStreak(1)

	if !s.onFailure() {
		t.Error("Expected crossing on every failure with threshold 1")
	}
	if !s.onFailure() {
		t.Error("Expected crossing on every failure with threshold 1")
	}
}
