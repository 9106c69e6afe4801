package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"fraud-detector/internal/features"
)

// LinearFormat is the format tag of a JSON linear model artifact.
const LinearFormat = "logistic-v1"

// LinearModel is a logistic regression exported to JSON. It gives a
// pure-Go path for serving without a Python runtime.
type LinearModel struct {
	Format      string             `json:"format"`
	Version     string             `json:"version"`
	Intercept   float64            `json:"intercept"`
	Weights     map[string]float64 `json:"weights"`
	TypeWeights map[string]float64 `json:"type_weights"`
	Threshold   float64            `json:"threshold"`
}

// LoadLinearModel reads and validates a JSON linear model.
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read linear model: %w", err)
	}

	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse linear model: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *LinearModel) validate() error {
	if m.Format != LinearFormat {
		return fmt.Errorf("unsupported model format %q, want %q", m.Format, LinearFormat)
	}
	if m.Threshold == 0 {
		m.Threshold = 0.5
	}
	if m.Threshold <= 0 || m.Threshold >= 1 {
		return fmt.Errorf("threshold must be in (0, 1), got %f", m.Threshold)
	}
	for name, w := range m.Weights {
		if !features.IsNumericColumn(name) {
			return fmt.Errorf("weight for unknown column %q", name)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight for %q is not finite", name)
		}
	}
	// Score looks type weights up by canonical code, so aliases are re-keyed.
	canonical := make(map[string]float64, len(m.TypeWeights))
	for name, w := range m.TypeWeights {
		t, err := features.ParseType(name)
		if err != nil {
			return fmt.Errorf("type weight: %w", err)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("type weight for %q is not finite", name)
		}
		if _, dup := canonical[string(t)]; dup {
			return fmt.Errorf("duplicate type weight for %s", t)
		}
		canonical[string(t)] = w
	}
	m.TypeWeights = canonical
	return nil
}

// Predict implements Classifier.
func (m *LinearModel) Predict(ctx context.Context, tx features.Enriched) (int, error) {
	label, _, err := m.Score(ctx, tx)
	return label, err
}

// PredictProbability implements Classifier.
func (m *LinearModel) PredictProbability(ctx context.Context, tx features.Enriched) (float64, error) {
	_, prob, err := m.Score(ctx, tx)
	return prob, err
}

// Score implements Scorer.
func (m *LinearModel) Score(_ context.Context, tx features.Enriched) (int, float64, error) {
	z := m.Intercept + m.TypeWeights[string(tx.Type)]
	values := tx.Numeric()
	// column order keeps the sum reproducible
	for _, name := range features.Columns[1:] {
		if w, ok := m.Weights[name]; ok {
			z += w * values[name]
		}
	}

	prob := sigmoid(z)
	if math.IsNaN(prob) {
		return 0, 0, fmt.Errorf("linear model produced NaN for %s transaction", tx.Type)
	}

	label := 0
	if prob > m.Threshold {
		label = 1
	}
	return label, prob, nil
}

// sigmoid converts a score to a probability
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// Explain implements Explainer: each term of the logit, including the
// transaction type term when it carries a weight.
func (m *LinearModel) Explain(tx features.Enriched) []Contribution {
	values := tx.Numeric()
	out := make([]Contribution, 0, len(m.Weights)+1)
	if w, ok := m.TypeWeights[string(tx.Type)]; ok {
		out = append(out, Contribution{Feature: "type=" + string(tx.Type), Value: 1, Weight: w, Impact: w})
	}
	for _, name := range features.Columns[1:] {
		if w, ok := m.Weights[name]; ok {
			out = append(out, Contribution{Feature: name, Value: values[name], Weight: w, Impact: w * values[name]})
		}
	}
	return out
}
