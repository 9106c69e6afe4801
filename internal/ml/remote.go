package ml

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fraud-detector/internal/features"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// RemoteClassifier calls an external model server speaking the
// FrameRequest/FrameResponse JSON protocol on POST /predict.
type RemoteClassifier struct {
	base string
	rest *resty.Client
}

// NewRemoteClassifier creates the client and checks GET /health once.
func NewRemoteClassifier(ctx context.Context, baseURL string, timeout time.Duration) (*RemoteClassifier, error) {
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}
	r := resty.New()
	r.SetTimeout(timeout)
	r.SetHeader("Accept", "application/json")

	c := &RemoteClassifier{base: strings.TrimRight(baseURL, "/"), rest: r}

	resp, err := c.rest.R().SetContext(ctx).Get(c.base + "/health")
	if err != nil {
		return nil, fmt.Errorf("model server health check: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("model server unhealthy: %s", resp.Status())
	}

	log.Info().Str("model_url", c.base).Msg("remote model server reachable")
	return c, nil
}

// Predict implements Classifier.
func (c *RemoteClassifier) Predict(ctx context.Context, tx features.Enriched) (int, error) {
	label, _, err := c.Score(ctx, tx)
	return label, err
}

// PredictProbability implements Classifier.
func (c *RemoteClassifier) PredictProbability(ctx context.Context, tx features.Enriched) (float64, error) {
	_, prob, err := c.Score(ctx, tx)
	return prob, err
}

// Score implements Scorer.
func (c *RemoteClassifier) Score(ctx context.Context, tx features.Enriched) (int, float64, error) {
	result := &FrameResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(newFrameRequest(tx)).
		SetResult(result).
		SetError(result).
		Post(c.base + "/predict")
	if err != nil {
		return 0, 0, fmt.Errorf("model server request: %w", err)
	}
	if resp.IsError() {
		if result.Error != "" {
			return 0, 0, fmt.Errorf("model server: %s: %s", resp.Status(), result.Error)
		}
		return 0, 0, fmt.Errorf("model server: %s", resp.Status())
	}
	return result.single()
}
