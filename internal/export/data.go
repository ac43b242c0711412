package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/san-kum/driveline/internal/sim"
	"github.com/san-kum/driveline/internal/storage"
)

type Pose struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	HeadingDeg float64 `json:"heading_deg"`
}

type Sample struct {
	Time      float64    `json:"time"`
	Estimated Pose       `json:"estimated"`
	Truth     Pose       `json:"truth"`
	Power     [4]float64 `json:"power"`
}

type Document struct {
	Run     *storage.RunMetadata `json:"run,omitempty"`
	Steps   int                  `json:"steps"`
	Samples []Sample             `json:"samples"`
}

func NewDocument(meta *storage.RunMetadata, records []sim.Record) Document {
	doc := Document{
		Run:     meta,
		Steps:   len(records),
		Samples: make([]Sample, len(records)),
	}
	for i, r := range records {
		doc.Samples[i] = Sample{
			Time:      r.Time,
			Estimated: Pose{X: r.Estimated.Pos.X, Y: r.Estimated.Pos.Y, HeadingDeg: r.Estimated.HeadingDegrees()},
			Truth:     Pose{X: r.Truth.Pos.X, Y: r.Truth.Pos.Y, HeadingDeg: r.Truth.HeadingDegrees()},
			Power:     r.Power,
		}
	}
	return doc
}

func WriteJSON(w io.Writer, meta *storage.RunMetadata, records []sim.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(meta, records))
}

// WriteCSV writes one row per record with the position error appended.
func WriteCSV(w io.Writer, records []sim.Record) error {
	cw := csv.NewWriter(w)
	header := []string{
		"time", "est_x", "est_y", "est_heading_deg",
		"true_x", "true_y", "true_heading_deg", "position_error",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for _, r := range records {
		row := []string{
			f(r.Time),
			f(r.Estimated.Pos.X), f(r.Estimated.Pos.Y), f(r.Estimated.HeadingDegrees()),
			f(r.Truth.Pos.X), f(r.Truth.Pos.Y), f(r.Truth.HeadingDegrees()),
			f(r.PositionError()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
