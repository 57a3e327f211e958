package trainer

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ptcoach/ptcoach/pkg/landmark"
	"github.com/ptcoach/ptcoach/pkg/model"
)

// EnsureModels scans dataDir for "<exercise>_reference.json" captures and
// trains any model missing from modelsDir, returning the base path
// (without .bin/.meta.json suffix) of every exercise with an available
// model. Already-trained models are left untouched. Grounded on the
// reference implementation's ensure_models_exist startup convenience.
func EnsureModels(dataDir, modelsDir string, log *zap.Logger) (map[landmark.ExerciseKey]string, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("trainer: creating models dir: %w", err)
	}

	available := make(map[landmark.ExerciseKey]string)
	for key, spec := range landmark.Registry {
		capturePath := filepath.Join(dataDir, string(key)+"_reference.json")
		if _, err := os.Stat(capturePath); err != nil {
			log.Debug("no reference capture, skipping", zap.String("exercise", string(key)), zap.String("path", capturePath))
			continue
		}

		base := filepath.Join(modelsDir, string(key)+"_reference_model")
		if modelFilesExist(base) {
			log.Debug("model already trained", zap.String("exercise", string(key)))
			available[key] = base
			continue
		}

		log.Info("training model", zap.String("exercise", string(key)), zap.String("capture", capturePath))
		frames, err := LoadCapture(capturePath)
		if err != nil {
			log.Warn("failed to load capture", zap.String("exercise", string(key)), zap.Error(err))
			continue
		}
		artifact, err := Train(frames, spec)
		if err != nil {
			log.Warn("failed to train model", zap.String("exercise", string(key)), zap.Error(err))
			continue
		}
		if err := model.Save(base, artifact); err != nil {
			log.Warn("failed to save model", zap.String("exercise", string(key)), zap.Error(err))
			continue
		}
		available[key] = base
	}
	return available, nil
}

func modelFilesExist(base string) bool {
	if _, err := os.Stat(base + ".bin"); err != nil {
		return false
	}
	if _, err := os.Stat(base + ".meta.json"); err != nil {
		return false
	}
	return true
}
