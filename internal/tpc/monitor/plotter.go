// Package monitor provides post-run summary plots for reconstruction
// output.
package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/larpix-data/tracklet.report/internal/tpc/tracklet"
)

// TrackPlotter accumulates summary values of accepted tracks over a run
// and renders distribution plots after the run finishes.
type TrackPlotter struct {
	mu      sync.Mutex
	enabled bool

	outputDir string
	lengths   plotter.Values
	thetas    plotter.Values
	nhits     plotter.Values
}

// NewTrackPlotter creates an idle plotter; call Start to enable it.
func NewTrackPlotter() *TrackPlotter {
	return &TrackPlotter{}
}

// Start initializes the plotter for a new run, creating outputDir if
// needed.
func (tp *TrackPlotter) Start(outputDir string) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	tp.outputDir = outputDir
	tp.enabled = true
	tp.lengths = nil
	tp.thetas = nil
	tp.nhits = nil
	return nil
}

// Record accumulates the valid tracks of one batch. A no-op until Start
// has been called.
func (tp *TrackPlotter) Record(table *tracklet.TrackTable) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if !tp.enabled {
		return
	}
	for i := range table.Slots {
		if !table.Valid[i] {
			continue
		}
		t := &table.Slots[i]
		tp.lengths = append(tp.lengths, t.Length)
		tp.thetas = append(tp.thetas, t.Theta)
		tp.nhits = append(tp.nhits, float64(t.NHit))
	}
}

// WritePlots renders the accumulated distributions as PNGs in the
// output directory and disables the plotter.
func (tp *TrackPlotter) WritePlots() error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if !tp.enabled {
		return nil
	}
	tp.enabled = false

	if len(tp.lengths) == 0 {
		return nil
	}

	plots := []struct {
		name   string
		title  string
		xlabel string
		values plotter.Values
	}{
		{"track_length.png", "Track length", "length (mm)", tp.lengths},
		{"track_theta.png", "Track polar angle", "theta (rad)", tp.thetas},
		{"track_nhit.png", "Hits per track", "nhit", tp.nhits},
	}

	for _, spec := range plots {
		p := plot.New()
		p.Title.Text = spec.title
		p.X.Label.Text = spec.xlabel
		p.Y.Label.Text = "tracks"

		hist, err := plotter.NewHist(spec.values, 32)
		if err != nil {
			return fmt.Errorf("failed to build %s histogram: %w", spec.name, err)
		}
		p.Add(hist)

		out := filepath.Join(tp.outputDir, spec.name)
		if err := p.Save(8*vg.Inch, 5*vg.Inch, out); err != nil {
			return fmt.Errorf("failed to save %s: %w", spec.name, err)
		}
	}

	return nil
}

// NumTracks returns how many tracks have been recorded so far.
func (tp *TrackPlotter) NumTracks() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.lengths)
}
