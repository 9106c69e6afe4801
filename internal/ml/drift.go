package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"fraud-detector/internal/features"

	"github.com/rs/zerolog/log"
)

// minDriftSamples is the smallest window either side needs before scoring.
const minDriftSamples = 30

// DriftMethod is a statistic used to compare two feature distributions.
type DriftMethod string

const (
	KolmogorovSmirnov        DriftMethod = "kolmogorov_smirnov"
	PopulationStabilityIndex DriftMethod = "population_stability_index"
	StatisticalMoments       DriftMethod = "statistical_moments"
)

// DriftMetrics receives per-feature PSI scores.
type DriftMetrics interface {
	MLDriftSet(feature string, score float64)
}

// BaselineStore persists an encoded baseline. LoadBaseline returns nil
// data when nothing has been saved yet.
type BaselineStore interface {
	SaveBaseline(data []byte) error
	LoadBaseline() ([]byte, error)
}

// DriftConfig configures the drift monitor.
type DriftConfig struct {
	Enabled bool
	// Store holds a previously captured baseline. When it is empty (or nil)
	// the first WindowSize live transactions become the baseline and are
	// saved there.
	Store          BaselineStore
	WindowSize     int
	AlertThreshold float64
	AlertCooldown  time.Duration
	Methods        []DriftMethod
}

// Distribution holds running statistics plus a sliding sample window
// for one feature. Only the samples are persisted; the statistics are
// rebuilt from them on load.
type Distribution struct {
	Mean        float64   `json:"-"`
	StdDev      float64   `json:"-"`
	Min         float64   `json:"-"`
	Max         float64   `json:"-"`
	SampleCount int64     `json:"sample_count"`
	Samples     []float64 `json:"samples"`

	m2 float64
}

// DriftAlert is raised when a feature's score exceeds the threshold.
type DriftAlert struct {
	Timestamp      time.Time   `json:"timestamp"`
	Feature        string      `json:"feature"`
	Method         DriftMethod `json:"method"`
	Score          float64     `json:"score"`
	Threshold      float64     `json:"threshold"`
	Severity       string      `json:"severity"`
	Recommendation string      `json:"recommendation"`
}

// DriftReport is the snapshot served on the drift endpoint.
type DriftReport struct {
	Enabled         bool               `json:"enabled"`
	BaselineSamples int64              `json:"baseline_samples"`
	CurrentSamples  int64              `json:"current_samples"`
	BaselineReady   bool               `json:"baseline_ready"`
	Scores          map[string]float64 `json:"psi_scores"`
	Alerts          []DriftAlert       `json:"alerts"`
}

// DriftMonitor compares the live distribution of each numeric model input
// against a baseline. It is safe for concurrent use.
type DriftMonitor struct {
	mu sync.RWMutex

	cfg           DriftConfig
	featureNames  []string
	baseline      map[string]*Distribution
	current       map[string]*Distribution
	baselineReady bool
	baselineSeen  int
	lastAlert     time.Time
	alerts        []DriftAlert
	metrics       DriftMetrics
}

// NewDriftMonitor creates a monitor over the numeric columns. metrics may be nil.
func NewDriftMonitor(cfg DriftConfig, metrics DriftMetrics) *DriftMonitor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 1000
	}
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = 0.2
	}
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = time.Hour
	}
	if len(cfg.Methods) == 0 {
		cfg.Methods = []DriftMethod{PopulationStabilityIndex}
	}

	d := &DriftMonitor{
		cfg:          cfg,
		featureNames: append([]string(nil), features.Columns[1:]...),
		baseline:     make(map[string]*Distribution),
		current:      make(map[string]*Distribution),
		metrics:      metrics,
	}
	for _, name := range d.featureNames {
		d.baseline[name] = newDistribution(cfg.WindowSize)
		d.current[name] = newDistribution(cfg.WindowSize)
	}

	if cfg.Enabled && cfg.Store != nil {
		if err := d.loadBaseline(); err != nil {
			log.Warn().Err(err).Msg("Failed to load drift baseline, learning from live traffic")
		}
	}

	return d
}

func newDistribution(window int) *Distribution {
	return &Distribution{
		Samples: make([]float64, 0, window),
	}
}

// Enabled reports whether the monitor records anything.
func (d *DriftMonitor) Enabled() bool {
	return d != nil && d.cfg.Enabled
}

// Observe records one enriched transaction.
func (d *DriftMonitor) Observe(tx features.Enriched) {
	if !d.Enabled() {
		return
	}

	values := tx.Numeric()

	d.mu.Lock()
	target := d.current
	if !d.baselineReady {
		target = d.baseline
		d.baselineSeen++
	}
	for _, name := range d.featureNames {
		target[name].add(values[name], d.cfg.WindowSize)
	}

	justFilled := false
	if !d.baselineReady && d.baselineSeen >= d.cfg.WindowSize {
		d.baselineReady = true
		justFilled = true
	}
	d.mu.Unlock()

	if justFilled {
		log.Info().Int("samples", d.cfg.WindowSize).Msg("Drift baseline captured from live traffic")
		if err := d.saveBaseline(); err != nil {
			log.Warn().Err(err).Msg("Failed to save drift baseline")
		}
	}
}

// Scores returns the PSI per feature and publishes it to metrics.
// Features without enough samples score 0.
func (d *DriftMonitor) Scores() map[string]float64 {
	if !d.Enabled() {
		return nil
	}

	d.mu.RLock()
	scores := make(map[string]float64, len(d.featureNames))
	for _, name := range d.featureNames {
		b, c := d.baseline[name], d.current[name]
		if !d.baselineReady || len(c.Samples) < minDriftSamples || len(b.Samples) < minDriftSamples {
			scores[name] = 0
			continue
		}
		scores[name] = finiteOrZero(psi(b.Samples, c.Samples))
	}
	d.mu.RUnlock()

	if d.metrics != nil {
		for name, s := range scores {
			d.metrics.MLDriftSet(name, s)
		}
	}
	return scores
}

// Detect runs every configured method and returns alerts above threshold.
// Alerts are rate limited by AlertCooldown; the latest non-empty set is kept
// for Report.
func (d *DriftMonitor) Detect() []DriftAlert {
	if !d.Enabled() {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.baselineReady || time.Since(d.lastAlert) < d.cfg.AlertCooldown {
		return nil
	}

	var alerts []DriftAlert
	for _, name := range d.featureNames {
		b, c := d.baseline[name], d.current[name]
		if len(c.Samples) < minDriftSamples || len(b.Samples) < minDriftSamples {
			continue
		}
		for _, method := range d.cfg.Methods {
			score, ok := driftScore(method, b, c)
			if !ok || math.IsNaN(score) || math.IsInf(score, 0) || score <= d.cfg.AlertThreshold {
				continue
			}
			sev := severity(score, d.cfg.AlertThreshold)
			alerts = append(alerts, DriftAlert{
				Timestamp:      time.Now(),
				Feature:        name,
				Method:         method,
				Score:          score,
				Threshold:      d.cfg.AlertThreshold,
				Severity:       sev,
				Recommendation: recommendation(sev, name),
			})
		}
	}

	if len(alerts) > 0 {
		d.lastAlert = time.Now()
		d.alerts = alerts
		for _, a := range alerts {
			log.Warn().
				Str("feature", a.Feature).
				Str("method", string(a.Method)).
				Float64("score", a.Score).
				Str("severity", a.Severity).
				Msg("Feature drift detected")
		}
	}
	return alerts
}

// Report returns a snapshot of sample counts, scores and the most recent
// alerts raised by Detect. It does not run detection itself.
func (d *DriftMonitor) Report() DriftReport {
	if !d.Enabled() {
		return DriftReport{}
	}

	scores := d.Scores()

	d.mu.RLock()
	defer d.mu.RUnlock()
	first := d.featureNames[0]
	return DriftReport{
		Enabled:         true,
		BaselineSamples: d.baseline[first].SampleCount,
		CurrentSamples:  d.current[first].SampleCount,
		BaselineReady:   d.baselineReady,
		Scores:          scores,
		Alerts:          append([]DriftAlert(nil), d.alerts...),
	}
}

// Reset clears the live window, the stored alerts and the alert cooldown.
// The baseline is kept.
func (d *DriftMonitor) Reset() {
	if !d.Enabled() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range d.featureNames {
		d.current[name] = newDistribution(d.cfg.WindowSize)
	}
	d.alerts = nil
	d.lastAlert = time.Time{}
}

// add updates the running moments (Welford) and the sliding window.
// Non-finite values are skipped.
func (dist *Distribution) add(v float64, window int) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	dist.SampleCount++
	delta := v - dist.Mean
	dist.Mean += delta / float64(dist.SampleCount)
	dist.m2 += delta * (v - dist.Mean)
	if dist.SampleCount > 1 {
		dist.StdDev = math.Sqrt(dist.m2 / float64(dist.SampleCount-1))
	}

	if dist.SampleCount == 1 || v < dist.Min {
		dist.Min = v
	}
	if dist.SampleCount == 1 || v > dist.Max {
		dist.Max = v
	}

	if len(dist.Samples) >= window {
		dist.Samples = dist.Samples[1:]
	}
	dist.Samples = append(dist.Samples, v)
}

func driftScore(method DriftMethod, baseline, current *Distribution) (float64, bool) {
	switch method {
	case KolmogorovSmirnov:
		return ksStatistic(baseline.Samples, current.Samples), true
	case PopulationStabilityIndex:
		return psi(baseline.Samples, current.Samples), true
	case StatisticalMoments:
		return momentsShift(baseline, current), true
	}
	return 0, false
}

// ksStatistic is the two-sample Kolmogorov-Smirnov D statistic.
func ksStatistic(baseline, current []float64) float64 {
	if len(baseline) == 0 || len(current) == 0 {
		return 0
	}
	a := sortedCopy(baseline)
	b := sortedCopy(current)

	maxDiff := 0.0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		x := math.Min(a[i], b[j])
		for i < len(a) && a[i] <= x {
			i++
		}
		for j < len(b) && b[j] <= x {
			j++
		}
		diff := math.Abs(float64(i)/float64(len(a)) - float64(j)/float64(len(b)))
		if diff > maxDiff {
			maxDiff = diff
		}
	}
	return maxDiff
}

// psi is the Population Stability Index over ten equal-width bins.
func psi(baseline, current []float64) float64 {
	const numBins = 10
	// keeps empty bins from producing infinite terms
	const eps = 1e-4

	if len(baseline) == 0 || len(current) == 0 {
		return 0
	}
	minB, maxB := minMax(baseline)
	minC, maxC := minMax(current)
	lo, hi := math.Min(minB, minC), math.Max(maxB, maxC)
	if hi == lo {
		return 0
	}

	bb := histogram(baseline, lo, hi, numBins)
	cb := histogram(current, lo, hi, numBins)

	total := 0.0
	for i := 0; i < numBins; i++ {
		p := math.Max(bb[i]/float64(len(baseline)), eps)
		q := math.Max(cb[i]/float64(len(current)), eps)
		total += (q - p) * math.Log(q/p)
	}
	return total
}

// momentsShift compares normalized mean and standard deviation changes.
func momentsShift(baseline, current *Distribution) float64 {
	meanShift := math.Abs(baseline.Mean-current.Mean) / (1 + math.Abs(baseline.Mean))
	stdShift := math.Abs(baseline.StdDev-current.StdDev) / (1 + baseline.StdDev)
	return (meanShift + stdShift) / 2
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func histogram(samples []float64, lo, hi float64, bins int) []float64 {
	width := (hi - lo) / float64(bins)
	out := make([]float64, bins)
	for _, s := range samples {
		i := int((s - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		if i < 0 {
			i = 0
		}
		out[i]++
	}
	return out
}

func sortedCopy(s []float64) []float64 {
	out := append([]float64(nil), s...)
	sort.Float64s(out)
	return out
}

func minMax(s []float64) (float64, float64) {
	lo, hi := s[0], s[0]
	for _, v := range s[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func severity(score, threshold float64) string {
	switch {
	case score > threshold*3:
		return "critical"
	case score > threshold*2:
		return "high"
	default:
		return "medium"
	}
}

func recommendation(sev, feature string) string {
	switch sev {
	case "critical":
		return fmt.Sprintf("Feature %q shows severe drift. Retrain the model on recent transactions.", feature)
	case "high":
		return fmt.Sprintf("Feature %q shows significant drift. Schedule a retraining.", feature)
	default:
		return fmt.Sprintf("Feature %q shows moderate drift. Keep monitoring.", feature)
	}
}

type baselineFile struct {
	CreatedAt time.Time                `json:"created_at"`
	Features  map[string]*Distribution `json:"features"`
}

func (d *DriftMonitor) saveBaseline() error {
	if d.cfg.Store == nil {
		return nil
	}

	d.mu.RLock()
	data, err := json.Marshal(baselineFile{CreatedAt: time.Now().UTC(), Features: d.baseline})
	d.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode drift baseline: %w", err)
	}
	return d.cfg.Store.SaveBaseline(data)
}

func (d *DriftMonitor) loadBaseline() error {
	data, err := d.cfg.Store.LoadBaseline()
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var bf baselineFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return fmt.Errorf("parse drift baseline: %w", err)
	}

	for _, name := range d.featureNames {
		dist, ok := bf.Features[name]
		if !ok || dist == nil || len(dist.Samples) < minDriftSamples {
			return fmt.Errorf("drift baseline missing samples for %q", name)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range d.featureNames {
		dist := newDistribution(d.cfg.WindowSize)
		for _, v := range bf.Features[name].Samples {
			dist.add(v, d.cfg.WindowSize)
		}
		d.baseline[name] = dist
	}
	d.baselineReady = true
	return nil
}
