package ml

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"fraud-detector/internal/features"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	fraud            int
	failures         int
	timeouts         int
	latencySum       float64
	latencyCount     int
	modelAge         float64
	predictionScores []float64
	drift            map[string]float64
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLFraudInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fraud++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLTimeoutsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
	m.latencyCount++
}

func (m *MockMetrics) MLPredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLDriftSet(feature string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drift == nil {
		m.drift = make(map[string]float64)
	}
	m.drift[feature] = score
}

// fakeClassifier returns fixed answers and records what it saw.
type fakeClassifier struct {
	mu       sync.Mutex
	label    int
	prob     float64
	err      error
	received []features.Enriched
}

func (f *fakeClassifier) Predict(_ context.Context, tx features.Enriched) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, tx)
	return f.label, f.err
}

func (f *fakeClassifier) PredictProbability(_ context.Context, _ features.Enriched) (float64, error) {
	return f.prob, f.err
}

func (f *fakeClassifier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func sampleEnriched() features.Enriched {
	return features.Derive(features.Raw{
		Type:           features.CashOut,
		Amount:         1000,
		OldBalanceOrig: 10000,
		NewBalanceOrig: 9000,
	})
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
