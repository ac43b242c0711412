// Package storage keeps recorded simulator runs on disk, one directory per run holding
// metadata.json and poses.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/sim"
	"github.com/san-kum/driveline/internal/tracking"
)

var (
	ErrRunNotFound  = errors.New("storage: run not found")
	ErrAmbiguousRun = errors.New("storage: run id prefix is ambiguous")
)

const (
	metadataFile = "metadata.json"
	posesFile    = "poses.csv"
)

var posesHeader = []string{
	"time",
	"est_x", "est_y", "est_heading_deg",
	"true_x", "true_y", "true_heading_deg",
	"power_fl", "power_fr", "power_bl", "power_br",
}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Scenario   string             `json:"scenario"`
	Preset     string             `json:"preset,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Layout     string             `json:"layout"`
	Integrator string             `json:"integrator"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Completed  bool               `json:"completed"`
	Error      string             `json:"error,omitempty"`
	Faults     int64              `json:"faults"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Save writes a new run and returns its generated ID. The ID and timestamp of meta
// are filled in.
func (s *Store) Save(meta RunMetadata, records []sim.Record) (string, error) {
	meta.ID = uuid.NewString()
	meta.Timestamp = time.Now()
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writePoses(filepath.Join(runDir, posesFile), records); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writePoses(path string, records []sim.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(posesHeader); err != nil {
		return err
	}

	format := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for _, r := range records {
		row := []string{
			format(r.Time),
			format(r.Estimated.Pos.X), format(r.Estimated.Pos.Y), format(r.Estimated.HeadingDegrees()),
			format(r.Truth.Pos.X), format(r.Truth.Pos.Y), format(r.Truth.HeadingDegrees()),
		}
		for _, p := range r.Power {
			row = append(row, format(p))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.readMetadata(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

// Resolve expands a unique prefix of a run ID to the full ID.
func (s *Store) Resolve(prefix string) (string, error) {
	if prefix == "" {
		return "", ErrRunNotFound
	}
	if _, err := os.Stat(filepath.Join(s.baseDir, prefix, metadataFile)); err == nil {
		return prefix, nil
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	var match string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%w: %s", ErrAmbiguousRun, prefix)
		}
		match = entry.Name()
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	}
	return match, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	id, err := s.Resolve(runID)
	if err != nil {
		return nil, err
	}
	return s.readMetadata(id)
}

func (s *Store) readMetadata(id string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadRecords reads back the sampled poses of a run.
func (s *Store) LoadRecords(runID string) ([]sim.Record, error) {
	id, err := s.Resolve(runID)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(s.baseDir, id, posesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(posesHeader)

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", posesFile, err)
	}
	if len(rows) < 2 {
		return []sim.Record{}, nil
	}

	records := make([]sim.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		var v [11]float64
		for j, field := range row {
			if v[j], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("storage: %s row %d: %w", posesFile, i+2, err)
			}
		}
		rec := sim.Record{
			Time:      v[0],
			Estimated: tracking.Pose{Pos: geom.Vec(v[1], v[2]), Heading: geom.DegToRad(v[3])},
			Truth:     tracking.Pose{Pos: geom.Vec(v[4], v[5]), Heading: geom.DegToRad(v[6])},
		}
		copy(rec.Power[:], v[7:])
		records = append(records, rec)
	}
	return records, nil
}
