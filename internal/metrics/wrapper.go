package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the narrow interfaces used by the ml
// and web packages.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLPredictionsInc()                   { w.m.MLPredictions.Inc() }
func (w *MetricsWrapper) MLFraudInc()                         { w.m.MLFraudFlagged.Inc() }
func (w *MetricsWrapper) MLFailuresInc()                      { w.m.MLFailures.Inc() }
func (w *MetricsWrapper) MLTimeoutsInc()                      { w.m.MLTimeouts.Inc() }
func (w *MetricsWrapper) MLLatencyObserve(v float64)          { w.m.MLLatency.Observe(v) }
func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) { w.m.MLPredictionScores.Observe(v) }
func (w *MetricsWrapper) MLModelAgeSet(v float64)             { w.m.MLModelAge.Set(v) }

// MLDriftSet publishes one feature's drift score.
func (w *MetricsWrapper) MLDriftSet(feature string, score float64) {
	w.m.MLFeatureDrift.WithLabelValues(feature).Set(score)
}

func (w *MetricsWrapper) UnknownTypeInc()  { w.m.UnknownTypes.Inc() }
func (w *MetricsWrapper) InvalidInputInc() { w.m.InvalidInputs.Inc() }

// HTTPObserve records one served request.
func (w *MetricsWrapper) HTTPObserve(route, method string, status int, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}
