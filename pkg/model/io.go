package model

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ptcoach/ptcoach/pkg/landmark"
)

// Save writes a into two files: base+".bin" (ref_norm, ref_features_scaled,
// feat_mean, and feat_std, packed as little-endian float32 tensors) and
// base+".meta.json" (every scalar and label field). Splitting bulk numeric
// data from metadata keeps the JSON side human-readable while the
// trajectory stays compact, the same division teacher's VMC sender draws
// between framed binary payloads and structured fields.
func Save(base string, a *Artifact) error {
	if err := Validate(a); err != nil {
		return err
	}
	if err := saveBin(base+".bin", a); err != nil {
		return fmt.Errorf("model: saving %s.bin: %w", base, err)
	}
	if err := saveMeta(base+".meta.json", a); err != nil {
		return fmt.Errorf("model: saving %s.meta.json: %w", base, err)
	}
	return nil
}

// Load reads base+".bin" and base+".meta.json" and reassembles the
// artifact, validating the result before returning it.
func Load(base string) (*Artifact, error) {
	meta, err := loadMeta(base + ".meta.json")
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s.meta.json: %v", ErrModelLoadFailure, base, err)
	}
	a, err := loadBin(base+".bin", meta)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s.bin: %v", ErrModelLoadFailure, base, err)
	}
	if err := Validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

// metaFile is the JSON-serializable projection of Artifact's scalar and
// label fields. RefNorm, RefFeaturesScaled, FeatMean, and FeatStd live in
// the binary blob, which carries its own N and D header; FeatDim records
// the same feature width for human readers and is not consulted on load.
type metaFile struct {
	ExerciseKey         string `json:"exercise_key"`
	ExerciseDisplayName string `json:"exercise_display_name"`
	NumFrames           int    `json:"num_frames"`
	FeatDim             int    `json:"feat_dim"`
	FeatureLandmarks    []int  `json:"feature_landmarks"`
	CorrectionLandmarks []int  `json:"correction_landmarks"`

	DistanceCalibration  PercentileTriple `json:"distance_calibration"`
	KneeAngleCalibration KneeCalibration  `json:"knee_angle_calibration"`

	CorrectionTolerance map[int]Tolerance `json:"correction_tolerance"`
}

func saveMeta(path string, a *Artifact) error {
	m := metaFile{
		ExerciseKey:          string(a.ExerciseKey),
		ExerciseDisplayName:  a.ExerciseDisplayName,
		NumFrames:            len(a.RefNorm),
		FeatDim:              len(a.FeatMean),
		DistanceCalibration:  a.DistanceCalibration,
		KneeAngleCalibration: a.KneeAngleCalibration,
		CorrectionTolerance:  make(map[int]Tolerance, len(a.CorrectionTolerance)),
	}
	for _, idx := range a.FeatureLandmarks {
		m.FeatureLandmarks = append(m.FeatureLandmarks, int(idx))
	}
	for _, idx := range a.CorrectionLandmarks {
		m.CorrectionLandmarks = append(m.CorrectionLandmarks, int(idx))
	}
	for idx, tol := range a.CorrectionTolerance {
		m.CorrectionTolerance[int(idx)] = tol
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func loadMeta(path string) (metaFile, error) {
	var m metaFile
	f, err := os.Open(path)
	if err != nil {
		return m, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return m, err
	}
	return m, nil
}

func saveBin(path string, a *Artifact) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	n := len(a.RefNorm)
	d := len(a.FeatMean)
	if err := writeU32(w, uint32(n)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(d)); err != nil {
		return err
	}
	for _, frame := range a.RefNorm {
		for _, bp := range frame {
			if err := writeF32(w, bp.X); err != nil {
				return err
			}
			if err := writeF32(w, bp.Y); err != nil {
				return err
			}
			if err := writeF32(w, bp.Z); err != nil {
				return err
			}
		}
	}
	for _, row := range a.RefFeaturesScaled {
		for _, v := range row {
			if err := writeF32(w, v); err != nil {
				return err
			}
		}
	}
	for _, v := range a.FeatMean {
		if err := writeF32(w, v); err != nil {
			return err
		}
	}
	for _, v := range a.FeatStd {
		if err := writeF32(w, v); err != nil {
			return err
		}
	}
	return w.Flush()
}

func loadBin(path string, meta metaFile) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	d, err := readU32(r)
	if err != nil {
		return nil, err
	}

	refNorm := make([]landmark.Normalized, n)
	for i := range refNorm {
		for idx := 0; idx < landmark.Count; idx++ {
			x, err := readF32(r)
			if err != nil {
				return nil, err
			}
			y, err := readF32(r)
			if err != nil {
				return nil, err
			}
			z, err := readF32(r)
			if err != nil {
				return nil, err
			}
			refNorm[i][idx] = landmark.BodyPoint{X: x, Y: y, Z: z}
		}
	}

	refFeatures := make([][]float64, n)
	for i := range refFeatures {
		row := make([]float64, d)
		for j := range row {
			v, err := readF32(r)
			if err != nil {
				return nil, err
			}
			row[j] = v
		}
		refFeatures[i] = row
	}

	featMean := make([]float64, d)
	for i := range featMean {
		v, err := readF32(r)
		if err != nil {
			return nil, err
		}
		featMean[i] = v
	}
	featStd := make([]float64, d)
	for i := range featStd {
		v, err := readF32(r)
		if err != nil {
			return nil, err
		}
		featStd[i] = v
	}

	a := &Artifact{
		ExerciseKey:          landmark.ExerciseKey(meta.ExerciseKey),
		ExerciseDisplayName:  meta.ExerciseDisplayName,
		RefNorm:              refNorm,
		RefFeaturesScaled:    refFeatures,
		FeatMean:             featMean,
		FeatStd:              featStd,
		DistanceCalibration:  meta.DistanceCalibration,
		KneeAngleCalibration: meta.KneeAngleCalibration,
		CorrectionTolerance:  make(map[landmark.Index]Tolerance, len(meta.CorrectionTolerance)),
	}
	for _, v := range meta.FeatureLandmarks {
		a.FeatureLandmarks = append(a.FeatureLandmarks, landmark.Index(v))
	}
	for _, v := range meta.CorrectionLandmarks {
		a.CorrectionLandmarks = append(a.CorrectionLandmarks, landmark.Index(v))
	}
	for idx, tol := range meta.CorrectionTolerance {
		a.CorrectionTolerance[landmark.Index(idx)] = tol
	}
	return a, nil
}

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeF32(w io.Writer, v float64) error {
	return binary.Write(w, binary.LittleEndian, float32(v))
}

func readF32(r io.Reader) (float64, error) {
	var v float32
	err := binary.Read(r, binary.LittleEndian, &v)
	return float64(v), err
}
