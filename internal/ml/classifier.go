// Package ml provides the inference side of the fraud detector: the
// classifier interface, the artifact loaders (pure-Go linear model, Python
// pickle runner, remote model server) and the Service that validates and
// instruments every prediction.
//
// A classifier is loaded once at startup into an immutable Artifact and
// shared read-only by all request handlers.
package ml

import (
	"context"
	"errors"
	"time"

	"fraud-detector/internal/features"
)

var (
	// ErrArtifactLoad is returned when the model artifact cannot be loaded.
	// The server cannot start without a model.
	ErrArtifactLoad = errors.New("model artifact load failed")
	// ErrInvalidPrediction is returned when a classifier answers outside {0,1} / [0,1].
	ErrInvalidPrediction = errors.New("invalid prediction")
)

// defaultModelTimeout bounds a single out-of-process prediction when the
// caller sets no timeout.
const defaultModelTimeout = 5 * time.Second

// Classifier is a pre-trained binary fraud classifier. Implementations must be
// safe for concurrent use.
type Classifier interface {
	// Predict returns 1 for fraudulent and 0 for legitimate.
	Predict(ctx context.Context, tx features.Enriched) (int, error)

	// PredictProbability returns the probability of the fraudulent class.
	PredictProbability(ctx context.Context, tx features.Enriched) (float64, error)
}

// Scorer is implemented by classifiers that can return label and
// probability in a single round-trip.
type Scorer interface {
	Score(ctx context.Context, tx features.Enriched) (label int, probability float64, err error)
}

// Explainer is implemented by classifiers that can attribute their score
// to individual inputs.
type Explainer interface {
	Explain(tx features.Enriched) []Contribution
}

// Contribution is one input's share of a score.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Weight  float64 `json:"weight"`
	Impact  float64 `json:"impact"`
}

// Label is the predicted class.
type Label int

const (
	Legitimate Label = 0
	Fraudulent Label = 1
)

func (l Label) String() string {
	if l == Fraudulent {
		return "fraudulent"
	}
	return "legitimate"
}

// PredictionResult is produced once per request and returned to the caller.
type PredictionResult struct {
	Label        Label
	Probability  float64
	ModelVersion string
	Latency      time.Duration
}

// IsFraud reports whether the transaction was classified as fraudulent.
func (r PredictionResult) IsFraud() bool {
	return r.Label == Fraudulent
}

func score(ctx context.Context, c Classifier, tx features.Enriched) (int, float64, error) {
	if s, ok := c.(Scorer); ok {
		return s.Score(ctx, tx)
	}
	label, err := c.Predict(ctx, tx)
	if err != nil {
		return 0, 0, err
	}
	prob, err := c.PredictProbability(ctx, tx)
	if err != nil {
		return 0, 0, err
	}
	return label, prob, nil
}
