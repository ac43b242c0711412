package telemetry

import "sync"

// Recorder keeps every sample and fault in memory.
type Recorder struct {
	mu      sync.Mutex
	samples []Sample
	faults  []Fault
}

func NewRecorder() *Recorder {
	return &Recorder{
		samples: make([]Sample, 0, 256),
		faults:  make([]Fault, 0),
	}
}

func (r *Recorder) PublishPose(s Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func (r *Recorder) Warn(f Fault) {
	r.mu.Lock()
	r.faults = append(r.faults, f)
	r.mu.Unlock()
}

// Samples returns a copy of the recorded poses.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

func (r *Recorder) Faults() []Fault {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Fault, len(r.faults))
	copy(out, r.faults)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.samples = r.samples[:0]
	r.faults = r.faults[:0]
	r.mu.Unlock()
}
