// Package export writes recorded runs out as plots, CSV and JSON.
package export

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/driveline/internal/sim"
)

var ErrNoRecords = errors.New("export: no records")

var (
	truthColor    = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	estimateColor = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
)

const (
	plotWidth  = 6 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// TrajectoryPlot draws the true and estimated paths over the field, in feet, with the
// start and end points marked.
func TrajectoryPlot(title string, records []sim.Record) (*plot.Plot, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	truth := make(plotter.XYs, len(records))
	estimate := make(plotter.XYs, len(records))
	for i, r := range records {
		truth[i].X, truth[i].Y = r.Truth.Pos.X, r.Truth.Pos.Y
		estimate[i].X, estimate[i].Y = r.Estimated.Pos.X, r.Estimated.Pos.Y
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (ft)"
	p.Y.Label.Text = "y (ft)"
	p.Add(plotter.NewGrid())

	truthLine, err := plotter.NewLine(truth)
	if err != nil {
		return nil, err
	}
	truthLine.LineStyle.Width = vg.Points(2)
	truthLine.LineStyle.Color = truthColor

	estLine, err := plotter.NewLine(estimate)
	if err != nil {
		return nil, err
	}
	estLine.LineStyle.Width = vg.Points(1)
	estLine.LineStyle.Color = estimateColor
	estLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}

	ends, err := plotter.NewScatter(plotter.XYs{truth[0], truth[len(truth)-1]})
	if err != nil {
		return nil, err
	}
	ends.GlyphStyle.Radius = vg.Points(3)
	ends.GlyphStyle.Color = truthColor

	p.Add(truthLine, estLine, ends)
	p.Legend.Add("truth", truthLine)
	p.Legend.Add("odometry", estLine)
	p.Legend.Top = true

	// Equal axis ranges keep the field from being stretched.
	span := max(p.X.Max-p.X.Min, p.Y.Max-p.Y.Min, 1)
	cx, cy := (p.X.Max+p.X.Min)/2, (p.Y.Max+p.Y.Min)/2
	p.X.Min, p.X.Max = cx-span/2, cx+span/2
	p.Y.Min, p.Y.Max = cy-span/2, cy+span/2
	return p, nil
}

// WriteTrajectory renders the trajectory plot to w in the given format ("png", "svg",
// "pdf" and the other formats gonum/plot supports).
func WriteTrajectory(w io.Writer, format, title string, records []sim.Record) error {
	p, err := TrajectoryPlot(title, records)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, format)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveTrajectory writes the trajectory plot to path; the format follows the extension.
func SaveTrajectory(path, title string, records []sim.Record) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return fmt.Errorf("export: %s has no file extension", path)
	}
	p, err := TrajectoryPlot(title, records)
	if err != nil {
		return err
	}
	return p.Save(plotWidth, plotHeight, path)
}
