// Package tracking estimates the robot's field pose from three tracking wheels and a
// heading sensor, and shares it through a [Store].
package tracking

import (
	"sync"

	"github.com/san-kum/driveline/internal/geom"
)

// Pose is a position in feet and a heading in radians, CCW from the field's +x axis.
// Heading is not wrapped; it winds up as the robot turns.
type Pose struct {
	Pos     geom.Vector2
	Heading float64
}

// Forward returns the unit vector along the robot's forward axis in field coordinates.
func (p Pose) Forward() geom.Vector2 {
	return geom.Polar(1, p.Heading)
}

func (p Pose) HeadingDegrees() float64 { return geom.RadToDeg(p.Heading) }

// Store holds the current pose estimate. The estimator is its only writer; any number
// of readers take snapshots. Position and heading are always read and written together.
type Store struct {
	mu   sync.RWMutex
	pose Pose
}

func NewStore(initial Pose) *Store {
	return &Store{pose: initial}
}

func (s *Store) Snapshot() Pose {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose
}

func (s *Store) Update(pos geom.Vector2, heading float64) {
	s.mu.Lock()
	s.pose = Pose{Pos: pos, Heading: heading}
	s.mu.Unlock()
}

func (s *Store) Set(p Pose) { s.Update(p.Pos, p.Heading) }
