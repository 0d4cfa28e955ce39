package stats

import (
	"math"
	"testing"
)

func TestDatasetKeepsEmissionOrder(t *testing.T) {
	d := NewDataset(ThroughputTitle)
	d.Add(3, 0.1)
	d.Add(-1, 0.2)
	d.Add(2, 0.3)

	clone := d.Clone()
	d.Add(9, 9)
	if clone.Len() != 3 || clone.Points[0].X != 3 || clone.Points[1].X != -1 {
		t.Fatalf("clone = %+v", clone)
	}
}

func TestDatasetSummary(t *testing.T) {
	d := NewDataset(PowerTitle)
	for i, y := range []float64{4, 1, 3, 2, 5} {
		d.Add(float64(i), y)
	}
	s := d.Summary()
	if s.Count != 5 || s.Mean != 3 || s.Min != 1 || s.Max != 5 || s.Median != 3 {
		t.Fatalf("summary = %+v", s)
	}
	if math.Abs(s.StdDev-math.Sqrt(2.5)) > 1e-12 {
		t.Fatalf("stddev = %v, want sqrt(2.5)", s.StdDev)
	}
}

func TestDatasetSummaryEdgeCases(t *testing.T) {
	if s := NewDataset("empty").Summary(); s != (Summary{}) {
		t.Fatalf("empty summary = %+v", s)
	}
	one := NewDataset("one")
	one.Add(0, 7)
	if s := one.Summary(); s.Count != 1 || s.StdDev != 0 || s.Median != 7 {
		t.Fatalf("single-point summary = %+v", s)
	}
}

func TestInterpolatePower(t *testing.T) {
	got, err := InterpolatePower(5, 10, 20, 11)
	if err != nil || got != 15 {
		t.Fatalf("InterpolatePower = %v, %v, want 15", got, err)
	}
}

func TestInterpolatePowerSweepsRange(t *testing.T) {
	for _, tc := range []struct {
		start, end float64
		levels     uint32
	}{
		{0, 17, 18},
		{-3, 20, 24},
		{1.5, 16.2, 7},
		{10, 10, 4},
	} {
		prev := math.Inf(-1)
		for level := uint32(0); level < tc.levels; level++ {
			got, err := InterpolatePower(uint8(level), tc.start, tc.end, tc.levels)
			if err != nil {
				t.Fatalf("InterpolatePower(%d, %v, %v, %d) error: %v", level, tc.start, tc.end, tc.levels, err)
			}
			if got < prev {
				t.Fatalf("range [%v, %v]: level %d gives %v, below level %d at %v", tc.start, tc.end, level, got, level-1, prev)
			}
			if got < tc.start-1e-12 || got > tc.end+1e-12 {
				t.Fatalf("range [%v, %v]: level %d gives %v outside the range", tc.start, tc.end, level, got)
			}
			switch level {
			case 0:
				if got != tc.start {
					t.Fatalf("range [%v, %v]: lowest level gives %v", tc.start, tc.end, got)
				}
			case tc.levels - 1:
				if math.Abs(got-tc.end) > 1e-12 {
					t.Fatalf("range [%v, %v]: highest level gives %v", tc.start, tc.end, got)
				}
			}
			prev = got
		}
	}
}
