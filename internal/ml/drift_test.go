package ml

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"fraud-detector/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func txWithAmount(amount float64) features.Enriched {
	return features.Derive(features.Raw{
		Type:           features.Payment,
		Amount:         amount,
		OldBalanceOrig: amount * 10,
		NewBalanceOrig: amount * 9,
	})
}

func feed(d *DriftMonitor, rng *rand.Rand, n int, mean, spread float64) {
	for i := 0; i < n; i++ {
		d.Observe(txWithAmount(mean + rng.Float64()*spread))
	}
}

func TestDriftMonitor_Disabled(t *testing.T) {
	var nilMonitor *DriftMonitor
	assert.False(t, nilMonitor.Enabled())
	nilMonitor.Observe(sampleEnriched())
	assert.Nil(t, nilMonitor.Scores())
	assert.Equal(t, DriftReport{}, nilMonitor.Report())

	d := NewDriftMonitor(DriftConfig{}, nil)
	d.Observe(sampleEnriched())
	assert.False(t, d.Report().Enabled)
	assert.Nil(t, d.Detect())
}

func TestDriftMonitor_Defaults(t *testing.T) {
	d := NewDriftMonitor(DriftConfig{Enabled: true}, nil)
	assert.Equal(t, 1000, d.cfg.WindowSize)
	assert.Equal(t, 0.2, d.cfg.AlertThreshold)
	assert.Equal(t, time.Hour, d.cfg.AlertCooldown)
	assert.Equal(t, []DriftMethod{PopulationStabilityIndex}, d.cfg.Methods)
	assert.Len(t, d.featureNames, len(features.Columns)-1)
}

func TestDriftMonitor_BaselineWarmup(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d := NewDriftMonitor(DriftConfig{Enabled: true, WindowSize: 100}, nil)

	feed(d, rng, 99, 1000, 500)
	r := d.Report()
	assert.False(t, r.BaselineReady)
	assert.Equal(t, int64(99), r.BaselineSamples)
	assert.Zero(t, r.CurrentSamples)

	feed(d, rng, 1, 1000, 500)
	feed(d, rng, 10, 1000, 500)
	r = d.Report()
	assert.True(t, r.BaselineReady)
	assert.Equal(t, int64(100), r.BaselineSamples)
	assert.Equal(t, int64(10), r.CurrentSamples)
	// too few live samples to score
	assert.Zero(t, r.Scores["amount"])
}

func TestDriftMonitor_Scores(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	metrics := &MockMetrics{}
	d := NewDriftMonitor(DriftConfig{Enabled: true, WindowSize: 500}, metrics)

	feed(d, rng, 500, 1000, 500)
	feed(d, rng, 500, 1000, 500)
	stable := d.Scores()
	assert.Less(t, stable["amount"], 0.1)

	d.Reset()
	feed(d, rng, 500, 50000, 5000)
	shifted := d.Scores()
	assert.Greater(t, shifted["amount"], 1.0)
	assert.Greater(t, shifted["log_amount"], 1.0)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Len(t, metrics.drift, len(features.Columns)-1)
	assert.Equal(t, shifted["amount"], metrics.drift["amount"])
}

func TestDriftMonitor_DetectCooldown(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	d := NewDriftMonitor(DriftConfig{
		Enabled:    true,
		WindowSize: 1000,
		Methods:    []DriftMethod{PopulationStabilityIndex, KolmogorovSmirnov, StatisticalMoments},
	}, nil)

	feed(d, rng, 1000, 1000, 500)
	feed(d, rng, 1000, 1000, 500)
	assert.Empty(t, d.Detect(), "same distribution must not alert")

	d.Reset()
	feed(d, rng, 1000, 80000, 1000)
	alerts := d.Detect()
	require.NotEmpty(t, alerts)

	methods := map[DriftMethod]bool{}
	for _, a := range alerts {
		methods[a.Method] = true
		assert.Greater(t, a.Score, a.Threshold)
		assert.Contains(t, []string{"medium", "high", "critical"}, a.Severity)
		assert.Contains(t, a.Recommendation, a.Feature)
	}
	assert.True(t, methods[PopulationStabilityIndex])
	assert.True(t, methods[KolmogorovSmirnov])

	assert.Empty(t, d.Detect(), "cooldown suppresses repeated alerts")
}

// memBaselines is an in-memory BaselineStore.
type memBaselines struct {
	data    []byte
	saves   int
	loadErr error
}

func (m *memBaselines) SaveBaseline(data []byte) error {
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

func (m *memBaselines) LoadBaseline() ([]byte, error) {
	return m.data, m.loadErr
}

func TestDriftMonitor_BaselineRoundTrip(t *testing.T) {
	store := &memBaselines{}
	rng := rand.New(rand.NewSource(11))

	first := NewDriftMonitor(DriftConfig{Enabled: true, WindowSize: 50, Store: store}, nil)
	feed(first, rng, 60, 1000, 500)
	require.Equal(t, 1, store.saves, "baseline should be saved once captured")

	second := NewDriftMonitor(DriftConfig{Enabled: true, WindowSize: 50, Store: store}, nil)
	r := second.Report()
	assert.True(t, r.BaselineReady)
	assert.Equal(t, int64(50), r.BaselineSamples)
	assert.Zero(t, r.CurrentSamples)
}

func TestDriftMonitor_BadBaseline(t *testing.T) {
	tests := []struct {
		name  string
		store *memBaselines
	}{
		{"missing features", &memBaselines{data: []byte(`{"features":{}}`)}},
		{"not json", &memBaselines{data: []byte(`nope`)}},
		{"load error", &memBaselines{loadErr: errors.New("disk gone")}},
		{"null feature", &memBaselines{data: []byte(`{"features":{"amount":null}}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDriftMonitor(DriftConfig{Enabled: true, WindowSize: 40, Store: tt.store}, nil)
			assert.False(t, d.Report().BaselineReady)
		})
	}
}

func TestDriftMonitor_ReportKeepsDetectedAlerts(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	d := NewDriftMonitor(DriftConfig{Enabled: true, WindowSize: 200}, nil)

	feed(d, rng, 200, 1000, 500)
	feed(d, rng, 200, 60000, 1000)

	alerts := d.Detect()
	require.NotEmpty(t, alerts)

	report := d.Report()
	assert.Equal(t, alerts, report.Alerts)

	// the periodic check is still in cooldown, the endpoint keeps showing the alerts
	assert.Empty(t, d.Detect())
	assert.Equal(t, alerts, d.Report().Alerts)
}

func TestDriftMonitor_ResetClearsAlerts(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	d := NewDriftMonitor(DriftConfig{Enabled: true, WindowSize: 200}, nil)

	feed(d, rng, 200, 1000, 500)
	feed(d, rng, 200, 60000, 1000)
	require.NotEmpty(t, d.Detect())

	d.Reset()
	r := d.Report()
	assert.Empty(t, r.Alerts)
	assert.Zero(t, r.CurrentSamples)
	assert.True(t, r.BaselineReady, "baseline survives a reset")

	feed(d, rng, 200, 60000, 1000)
	assert.NotEmpty(t, d.Detect(), "reset also clears the cooldown")
}

func TestDistribution_SkipsNonFinite(t *testing.T) {
	dist := newDistribution(10)
	dist.add(math.Inf(-1), 10)
	dist.add(math.NaN(), 10)
	dist.add(-5, 10)
	dist.add(7, 10)
	dist.add(math.Inf(1), 10)

	assert.Equal(t, int64(2), dist.SampleCount)
	assert.Equal(t, []float64{-5, 7}, dist.Samples)
	assert.Equal(t, -5.0, dist.Min)
	assert.Equal(t, 7.0, dist.Max)
	assert.Equal(t, 1.0, dist.Mean)
}

func TestDriftMonitor_BaselineWithOverflow(t *testing.T) {
	store := &memBaselines{}
	rng := rand.New(rand.NewSource(13))
	d := NewDriftMonitor(DriftConfig{Enabled: true, WindowSize: 40, Store: store}, nil)

	feed(d, rng, 35, 1000, 500)
	for i := 0; i < 5; i++ {
		// balances near MaxFloat64 push error_balance_orig to -Inf
		d.Observe(features.Derive(features.Raw{
			Type:           features.Transfer,
			Amount:         math.MaxFloat64,
			NewBalanceOrig: math.MaxFloat64,
		}))
	}
	require.True(t, d.Report().BaselineReady)
	require.Equal(t, 1, store.saves, "baseline with overflowing features must still be saved")

	restored := NewDriftMonitor(DriftConfig{Enabled: true, WindowSize: 40, Store: store}, nil)
	assert.True(t, restored.Report().BaselineReady)
}

func TestKSStatistic(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	assert.Zero(t, ksStatistic(a, a))
	assert.Equal(t, 1.0, ksStatistic(a, []float64{10, 11, 12}))
	assert.Zero(t, ksStatistic(nil, a))
}

func TestPSI(t *testing.T) {
	same := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.InDelta(t, 0, psi(same, same), 1e-12)
	assert.Zero(t, psi([]float64{5, 5}, []float64{5, 5}))
	assert.Greater(t, psi(same, []float64{100, 101, 102}), 1.0)
}

func TestService_ObservesDrift(t *testing.T) {
	d := NewDriftMonitor(DriftConfig{Enabled: true, WindowSize: 40}, nil)
	svc := NewService(NewArtifact(&fakeClassifier{prob: 0.1}, ModelMetadata{}), nil).WithDriftMonitor(d)

	for i := 0; i < 5; i++ {
		_, err := svc.Classify(t.Context(), sampleEnriched())
		require.NoError(t, err)
	}
	assert.Same(t, d, svc.Drift())
	assert.Equal(t, int64(5), svc.Drift().Report().BaselineSamples)
}
