package stats

import "testing"

func TestSampler_FirstCPUSampleIsZero(t *testing.T) {
	t.Parallel()

	s, err := NewSampler()
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	if got := s.CPUPercent(); got != 0 {
		t.Fatalf("first CPUPercent() = %v, want 0", got)
	}
}

func TestSampler_DiskPercentIsAlwaysZero(t *testing.T) {
	t.Parallel()

	s, err := NewSampler()
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	if got := s.DiskPercent(); got != 0 {
		t.Fatalf("DiskPercent() = %v, want 0", got)
	}
}

func TestClampPercent(t *testing.T) {
	t.Parallel()

	cases := map[float64]float64{-5: 0, 0: 0, 50: 50, 100: 100, 150: 100}
	for in, want := range cases {
		if got := clampPercent(in); got != want {
			t.Errorf("clampPercent(%v) = %v, want %v", in, got, want)
		}
	}
}
