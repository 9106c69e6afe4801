package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"fraud-detector/internal/features"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the service
type MetricsInterface interface {
	MLPredictionsInc()
	MLFraudInc()
	MLFailuresInc()
	MLTimeoutsInc()
	MLLatencyObserve(float64)
	MLPredictionScoresObserve(float64)
	MLModelAgeSet(float64)
}

// Service is the inference adapter used by request handlers. It holds the
// immutable artifact plus lock-free counters, so it can be shared freely.
type Service struct {
	artifact *Artifact
	metrics  MetricsInterface
	drift    *DriftMonitor

	startTime    time.Time
	predictions  atomic.Int64
	errors       atomic.Int64
	fraud        atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
	lastError    atomic.Value // string
}

// HealthStatus is reported on /health.
type HealthStatus struct {
	Healthy         bool      `json:"healthy"`
	LastCheck       time.Time `json:"last_check"`
	ModelLoaded     bool      `json:"model_loaded"`
	ModelVersion    string    `json:"model_version"`
	AverageLatency  float64   `json:"average_latency_ms"`
	PredictionCount int64     `json:"prediction_count"`
	FraudCount      int64     `json:"fraud_count"`
	ErrorRate       float64   `json:"error_rate"`
	LastError       string    `json:"last_error,omitempty"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
}

// NewService wraps a loaded artifact. metrics may be nil.
func NewService(artifact *Artifact, metrics MetricsInterface) *Service {
	s := &Service{
		artifact:  artifact,
		metrics:   metrics,
		startTime: time.Now(),
	}

	if metrics != nil && artifact != nil && !artifact.ModifiedAt().IsZero() {
		metrics.MLModelAgeSet(time.Since(artifact.ModifiedAt()).Seconds())
	}

	return s
}

// WithDriftMonitor attaches a drift monitor fed with every classified
// transaction. Call it before the service is shared.
func (s *Service) WithDriftMonitor(d *DriftMonitor) *Service {
	s.drift = d
	return s
}

// Drift returns the attached drift monitor, possibly nil.
func (s *Service) Drift() *DriftMonitor { return s.drift }

// Artifact returns the model handle the service was built with.
func (s *Service) Artifact() *Artifact { return s.artifact }

// Classify runs the classifier on an enriched record and validates its answer.
func (s *Service) Classify(ctx context.Context, tx features.Enriched) (PredictionResult, error) {
	start := time.Now()

	if s == nil || s.artifact == nil || s.artifact.classifier == nil {
		return PredictionResult{}, fmt.Errorf("classifier not loaded")
	}

	if err := ctx.Err(); err != nil {
		return PredictionResult{}, err
	}

	label, prob, err := score(ctx, s.artifact.classifier, tx)
	latency := time.Since(start)
	s.observeLatency(latency)

	if err != nil {
		s.recordError(err)
		if errors.Is(err, context.DeadlineExceeded) && s.metrics != nil {
			s.metrics.MLTimeoutsInc()
		}
		return PredictionResult{}, fmt.Errorf("classify %s transaction: %w", tx.Type, err)
	}

	if err := validatePrediction(label, prob); err != nil {
		s.recordError(err)
		return PredictionResult{}, err
	}

	s.predictions.Add(1)
	if s.metrics != nil {
		s.metrics.MLPredictionsInc()
		s.metrics.MLPredictionScoresObserve(prob)
	}
	if label == int(Fraudulent) {
		s.fraud.Add(1)
		if s.metrics != nil {
			s.metrics.MLFraudInc()
		}
	}

	s.drift.Observe(tx)

	log.Debug().
		Str("type", string(tx.Type)).
		Float64("amount", tx.Amount).
		Int("label", label).
		Float64("probability", prob).
		Dur("latency", latency).
		Msg("transaction classified")

	return PredictionResult{
		Label:        Label(label),
		Probability:  prob,
		ModelVersion: s.artifact.metadata.Version,
		Latency:      latency,
	}, nil
}

// TopFactors returns the n inputs with the largest absolute impact on the
// score, or nil when the classifier cannot explain itself.
func (s *Service) TopFactors(tx features.Enriched, n int) []Contribution {
	if s == nil || s.artifact == nil || n <= 0 {
		return nil
	}
	ex, ok := s.artifact.classifier.(Explainer)
	if !ok {
		return nil
	}

	contribs := ex.Explain(tx)
	sort.SliceStable(contribs, func(i, j int) bool {
		return math.Abs(contribs[i].Impact) > math.Abs(contribs[j].Impact)
	})

	top := contribs[:0]
	for _, c := range contribs {
		if c.Impact == 0 {
			continue
		}
		top = append(top, c)
		if len(top) == n {
			break
		}
	}
	if len(top) == 0 {
		return nil
	}
	return top
}

// Health returns the current health status.
func (s *Service) Health() HealthStatus {
	predictions := s.predictions.Load()
	errs := s.errors.Load()

	var avgLatency float64
	if attempts := predictions + errs; attempts > 0 {
		avgLatency = float64(s.totalLatency.Load()) / float64(attempts) / float64(time.Millisecond)
	}

	var errorRate float64
	if attempts := predictions + errs; attempts > 0 {
		errorRate = float64(errs) / float64(attempts)
	}

	lastErr, _ := s.lastError.Load().(string)
	modelLoaded := s.artifact != nil && s.artifact.classifier != nil

	status := HealthStatus{
		Healthy:         modelLoaded && errorRate < 0.1,
		LastCheck:       time.Now(),
		ModelLoaded:     modelLoaded,
		AverageLatency:  avgLatency,
		PredictionCount: predictions,
		FraudCount:      s.fraud.Load(),
		ErrorRate:       errorRate,
		LastError:       lastErr,
		UptimeSeconds:   time.Since(s.startTime).Seconds(),
	}
	if modelLoaded {
		status.ModelVersion = s.artifact.metadata.Version
	}
	return status
}

func validatePrediction(label int, prob float64) error {
	if label != int(Legitimate) && label != int(Fraudulent) {
		return fmt.Errorf("%w: label %d not in {0,1}", ErrInvalidPrediction, label)
	}
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return fmt.Errorf("%w: probability %f outside [0,1]", ErrInvalidPrediction, prob)
	}
	return nil
}

func (s *Service) observeLatency(d time.Duration) {
	s.totalLatency.Add(int64(d))
	if s.metrics != nil {
		s.metrics.MLLatencyObserve(d.Seconds())
	}
}

func (s *Service) recordError(err error) {
	s.errors.Add(1)
	s.lastError.Store(err.Error())
	if s.metrics != nil {
		s.metrics.MLFailuresInc()
	}
	log.Error().Err(err).Msg("prediction failed")
}
