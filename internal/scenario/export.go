package scenario

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/r-mite/nat-mobile/internal/stats"
	"github.com/r-mite/nat-mobile/timectrl"
)

// Plot is one gnuplot figure with its datasets inlined.
type Plot struct {
	Output   string
	Title    string
	XLabel   string
	YLabel   string
	Datasets []stats.Dataset
}

// WriteGnuplot writes p as a self-contained gnuplot script. Each dataset
// is an inline "-" block terminated by "e".
func WriteGnuplot(w io.Writer, p Plot) error {
	ew := &errWriter{w: w}
	ew.printf("set terminal png\n")
	if p.Output != "" {
		ew.printf("set output %q\n", p.Output)
	}
	ew.printf("set title %q\n", p.Title)
	ew.printf("set xlabel %q\n", p.XLabel)
	ew.printf("set ylabel %q\n", p.YLabel)
	if len(p.Datasets) == 0 {
		return ew.err
	}

	ew.printf("plot ")
	for i, d := range p.Datasets {
		if i > 0 {
			ew.printf(", ")
		}
		ew.printf("\"-\" title %q with linespoints", d.Title)
	}
	ew.printf("\n")
	for _, d := range p.Datasets {
		for _, pt := range d.Points {
			ew.printf("%s %s\n", formatFloat(pt.X), formatFloat(pt.Y))
		}
		ew.printf("e\n")
	}
	return ew.err
}

var csvHeader = []string{"time_s", "x_m", "throughput_mbps", "avg_power"}

// WriteCSV writes one row per sample of a station.
func WriteCSV(w io.Writer, samples []stats.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			formatFloat(s.Time.Sub(timectrl.Epoch).Seconds()),
			formatFloat(s.X),
			formatFloat(s.ThroughputMbps),
			formatFloat(s.AvgPower),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export writes every station's plots and samples under dir and returns
// the paths written. Files are named <station>-throughput.plt,
// <station>-power.plt and <station>.csv.
func Export(dir string, res *Result) ([]string, error) {
	if res == nil {
		return nil, fmt.Errorf("result is nil")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var written []string
	for _, st := range res.Stations {
		plots := []struct {
			name string
			plot Plot
		}{
			{st.ID + "-throughput.plt", Plot{
				Output:   st.ID + "-throughput.png",
				Title:    "Throughput (AP to " + st.ID + ") vs position",
				XLabel:   "x position (m)",
				YLabel:   "Throughput (Mbit/s)",
				Datasets: []stats.Dataset{st.Throughput},
			}},
			{st.ID + "-power.plt", Plot{
				Output:   st.ID + "-power.png",
				Title:    "Average transmit power (AP to " + st.ID + ") vs position",
				XLabel:   "x position (m)",
				YLabel:   "Average transmit power",
				Datasets: []stats.Dataset{st.Power},
			}},
		}
		for _, p := range plots {
			path := filepath.Join(dir, p.name)
			if err := writeFile(path, func(w io.Writer) error { return WriteGnuplot(w, p.plot) }); err != nil {
				return written, err
			}
			written = append(written, path)
		}

		path := filepath.Join(dir, st.ID+".csv")
		if err := writeFile(path, func(w io.Writer) error { return WriteCSV(w, st.Samples) }); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
