package ml

import (
	"fmt"
	"math"

	"fraud-detector/internal/features"
)

// FrameRequest is the wire format sent to out-of-process classifiers:
// a single-row frame with the training column names.
type FrameRequest struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// FrameResponse mirrors sklearn's predict / predict_proba output.
type FrameResponse struct {
	Predictions   []int       `json:"predictions"`
	Probabilities [][]float64 `json:"probabilities"`
	Error         string      `json:"error,omitempty"`
}

func newFrameRequest(tx features.Enriched) FrameRequest {
	return FrameRequest{
		Columns: features.Columns,
		Rows:    [][]any{tx.Row()},
	}
}

// single extracts the label and positive-class probability of a one-row response.
func (r FrameResponse) single() (int, float64, error) {
	if r.Error != "" {
		return 0, 0, fmt.Errorf("classifier error: %s", r.Error)
	}
	if len(r.Predictions) != 1 {
		return 0, 0, fmt.Errorf("expected 1 prediction, got %d", len(r.Predictions))
	}
	if len(r.Probabilities) != 1 || len(r.Probabilities[0]) != 2 {
		return 0, 0, fmt.Errorf("expected 1x2 probabilities, got %v", r.Probabilities)
	}

	prob := r.Probabilities[0][1]
	if math.IsNaN(prob) {
		return 0, 0, fmt.Errorf("probability is NaN")
	}
	return r.Predictions[0], prob, nil
}
