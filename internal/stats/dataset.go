package stats

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Dataset titles as they appear in exported plots.
const (
	ThroughputTitle = "Throughput Mbits/s"
	PowerTitle      = "Average Transmit Power"
)

// Point is one sample keyed by the station's x position.
type Point struct {
	X float64
	Y float64
}

// Dataset is an append-only, titled series of points in emission order.
type Dataset struct {
	Title  string
	Points []Point
}

// NewDataset returns an empty dataset.
func NewDataset(title string) *Dataset {
	return &Dataset{Title: title}
}

// Add appends a point.
func (d *Dataset) Add(x, y float64) {
	d.Points = append(d.Points, Point{X: x, Y: y})
}

// Len returns the number of points.
func (d *Dataset) Len() int { return len(d.Points) }

// Clone returns a deep copy.
func (d *Dataset) Clone() Dataset {
	return Dataset{Title: d.Title, Points: append([]Point(nil), d.Points...)}
}

// Summary describes the distribution of a dataset's Y values.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Median float64
}

// Summary computes descriptive statistics over Y. An empty dataset yields
// the zero Summary.
func (d Dataset) Summary() Summary {
	if len(d.Points) == 0 {
		return Summary{}
	}
	ys := make([]float64, len(d.Points))
	for i, p := range d.Points {
		ys[i] = p.Y
	}
	sort.Float64s(ys)

	s := Summary{
		Count:  len(ys),
		Mean:   stat.Mean(ys, nil),
		Min:    floats.Min(ys),
		Max:    floats.Max(ys),
		Median: stat.Quantile(0.5, stat.Empirical, ys, nil),
	}
	if len(ys) > 1 {
		s.StdDev = stat.StdDev(ys, nil)
	}
	return s
}
