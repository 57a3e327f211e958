package trainer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ptcoach/ptcoach/pkg/landmark"
)

// captureFile is the on-disk JSON shape of a recorded reference capture:
// a sequence of frames, each a flat list of 33 {x,y,z,visibility} points.
type captureFile struct {
	LandmarkNames []string          `json:"landmark_names,omitempty"`
	QualityScore  *float64          `json:"quality_score,omitempty"`
	Frames        []captureJSONFrame `json:"frames"`
}

type captureJSONFrame struct {
	TimestampMS int64                `json:"timestamp_ms"`
	Landmarks   []captureJSONPoint   `json:"landmarks"`
}

type captureJSONPoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// LoadCapture reads a recorded reference capture (one JSON document holding
// a sequence of raw pose frames) from path.
func LoadCapture(path string) ([]landmark.RawFrame, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trainer: reading capture %s: %w", path, err)
	}
	var cf captureFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("trainer: parsing capture %s: %w", path, err)
	}

	frames := make([]landmark.RawFrame, len(cf.Frames))
	for i, jf := range cf.Frames {
		var rf landmark.RawFrame
		rf.TimestampMS = jf.TimestampMS
		count := len(jf.Landmarks)
		if count > landmark.Count {
			count = landmark.Count
		}
		for j := 0; j < count; j++ {
			p := jf.Landmarks[j]
			rf.Points[j] = landmark.Point{X: p.X, Y: p.Y, Z: p.Z, Visibility: p.Visibility}
		}
		frames[i] = rf
	}
	return frames, nil
}
