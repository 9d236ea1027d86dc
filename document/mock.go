package document

import (
	"time"

	"github.com/google/uuid"
)

// Message is one (kind, payload) pair of a document stream in raw form.
type Message struct {
	Kind string
	Doc  map[string]interface{}
}

// Synthetic generates a well-formed single-run document stream without any
// acquisition hardware.  It serves the same purpose the mock device types
// serve for real instruments: exercising consumers end to end.
type Synthetic struct {
	// PlanName is the plan recorded in the start document
	PlanName string

	// ScanID is the scan number of the run
	ScanID int

	// Points is the number of events to generate
	Points int

	// Motor and Detector name the two columns of the primary stream
	Motor, Detector string

	// Time is the epoch time of the start document.  The zero value means
	// the current wall-clock time.
	Time float64
}

// Documents returns the full stream: start, one primary descriptor, Points
// events with the motor swept over [0, Points) and a detector readback,
// and a successful stop.
func (s Synthetic) Documents() []Message {
	if s.PlanName == "" {
		s.PlanName = "rel_scan"
	}
	if s.Points <= 0 {
		s.Points = 5
	}
	if s.Motor == "" {
		s.Motor = "m1"
	}
	if s.Detector == "" {
		s.Detector = "scaler1"
	}
	t0 := s.Time
	if t0 == 0 {
		t0 = float64(time.Now().Unix())
	}
	runUID := uuid.New().String()
	descUID := uuid.New().String()

	msgs := []Message{{
		Kind: KindStart.String(),
		Doc: map[string]interface{}{
			"uid":       runUID,
			"time":      t0,
			"scan_id":   s.ScanID,
			"plan_name": s.PlanName,
			"plan_args": map[string]interface{}{
				"num": s.Points,
			},
			"detectors": []interface{}{s.Detector},
			"motors":    []interface{}{s.Motor},
		},
	}, {
		Kind: KindDescriptor.String(),
		Doc: map[string]interface{}{
			"uid":       descUID,
			"run_start": runUID,
			"name":      "primary",
			"data_keys": map[string]interface{}{
				s.Motor:    map[string]interface{}{"dtype": "number"},
				s.Detector: map[string]interface{}{"dtype": "number"},
			},
		},
	}}

	for i := 0; i < s.Points; i++ {
		// triangle response peaked at the middle of the sweep
		peak := s.Points / 2
		counts := 100 * (peak - abs(i-peak) + 1)
		msgs = append(msgs, Message{
			Kind: KindEvent.String(),
			Doc: map[string]interface{}{
				"descriptor": descUID,
				"time":       t0 + float64(i) + 0.5,
				"seq_num":    i + 1,
				"data": map[string]interface{}{
					s.Motor:    float64(i),
					s.Detector: float64(counts),
				},
			},
		})
	}

	msgs = append(msgs, Message{
		Kind: KindStop.String(),
		Doc: map[string]interface{}{
			"uid":         uuid.New().String(),
			"run_start":   runUID,
			"time":        t0 + float64(s.Points),
			"exit_status": "success",
			"num_events":  map[string]interface{}{"primary": s.Points},
		},
	})
	return msgs
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
