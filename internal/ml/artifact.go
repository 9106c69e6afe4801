package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fraud-detector/internal/features"

	"github.com/rs/zerolog/log"
)

// ModelMetadata describes the trained artifact. It is read from an
// optional model_metadata.json next to the model file.
type ModelMetadata struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	Features     []string  `json:"features"`
	Algorithm    string    `json:"algorithm,omitempty"`
	AUCROC       float64   `json:"auc_roc,omitempty"`
	F1Score      float64   `json:"f1_score,omitempty"`
	TrainingRows int       `json:"training_rows,omitempty"`
}

// LoaderConfig selects and configures the classifier backend.
type LoaderConfig struct {
	// Path is a .json linear model, an http(s) model server URL, or a
	// joblib pickle served through Python.
	Path       string
	PythonPath string
	Timeout    time.Duration
}

// Artifact is the loaded, read-only model handle shared by all requests.
type Artifact struct {
	classifier Classifier
	metadata   ModelMetadata
	path       string
	modifiedAt time.Time
	loadedAt   time.Time
}

// Load loads the artifact once at process start. Every failure wraps
// ErrArtifactLoad.
func Load(ctx context.Context, cfg LoaderConfig) (*Artifact, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: empty model path", ErrArtifactLoad)
	}

	a := &Artifact{path: cfg.Path, loadedAt: time.Now()}

	if isRemote(cfg.Path) {
		c, err := NewRemoteClassifier(ctx, cfg.Path, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
		}
		a.classifier = c
		a.metadata = defaultMetadata("remote")
		return a, nil
	}

	info, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}
	a.modifiedAt = info.ModTime()

	md, err := loadModelMetadata(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: model metadata: %v", ErrArtifactLoad, err)
	}
	if md == nil {
		log.Warn().Str("model_path", cfg.Path).Msg("no model metadata, assuming default feature order")
	} else if err := checkFeatureOrder(md.Features); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}

	switch strings.ToLower(filepath.Ext(cfg.Path)) {
	case ".json":
		m, err := LoadLinearModel(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
		}
		a.classifier = m
		if md == nil {
			d := defaultMetadata(m.Version)
			md = &d
			md.Algorithm = "logistic regression"
		} else if md.Version == "" {
			md.Version = m.Version
		}
	default:
		c, err := NewPythonClassifier(ctx, cfg.Path, cfg.PythonPath, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
		}
		a.classifier = c
		if md == nil {
			d := defaultMetadata("unknown")
			md = &d
		}
	}

	a.metadata = *md
	return a, nil
}

// NewArtifact wraps an already constructed classifier, e.g. a test double.
func NewArtifact(c Classifier, md ModelMetadata) *Artifact {
	if len(md.Features) == 0 {
		md.Features = append([]string(nil), features.Columns...)
	}
	return &Artifact{classifier: c, metadata: md, loadedAt: time.Now()}
}

// Classifier returns the loaded classifier.
func (a *Artifact) Classifier() Classifier { return a.classifier }

// Metadata returns a copy of the model metadata.
func (a *Artifact) Metadata() ModelMetadata {
	md := a.metadata
	md.Features = append([]string(nil), a.metadata.Features...)
	return md
}

func (a *Artifact) Path() string        { return a.path }
func (a *Artifact) LoadedAt() time.Time { return a.loadedAt }

// ModifiedAt is the artifact file's mtime; zero for remote models.
func (a *Artifact) ModifiedAt() time.Time { return a.modifiedAt }

// Close releases resources held by the classifier backend.
func (a *Artifact) Close() error {
	if c, ok := a.classifier.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func isRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

func defaultMetadata(version string) ModelMetadata {
	return ModelMetadata{
		Version:  version,
		Features: append([]string(nil), features.Columns...),
	}
}

// checkFeatureOrder rejects artifacts trained on a different schema.
func checkFeatureOrder(trained []string) error {
	if len(trained) == 0 {
		return nil
	}
	if len(trained) != len(features.Columns) {
		return fmt.Errorf("feature order mismatch: model expects %d columns, deriver produces %d", len(trained), len(features.Columns))
	}
	for i, name := range trained {
		if name != features.Columns[i] {
			return fmt.Errorf("feature order mismatch at column %d: model expects %q, deriver produces %q", i, name, features.Columns[i])
		}
	}
	return nil
}

// loadModelMetadata returns nil metadata when no sidecar exists. A sidecar
// that exists but cannot be decoded is an error.
func loadModelMetadata(modelPath string) (*ModelMetadata, error) {
	dir := filepath.Dir(modelPath)
	primary := filepath.Join(dir, "model_metadata.json")

	if md, err := decodeMetadata(primary); err == nil {
		return md, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Fallback: pick the newest metadata file by timestamp suffix
	matches, err := filepath.Glob(filepath.Join(dir, "model_metadata_*.json"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Strings(matches)
	return decodeMetadata(matches[len(matches)-1])
}

func decodeMetadata(path string) (*ModelMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var md ModelMetadata
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &md, nil
}
