package ml

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"fraud-detector/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLinearModel() *LinearModel {
	return &LinearModel{
		Format:    LinearFormat,
		Version:   "lin-test",
		Intercept: -4,
		Weights: map[string]float64{
			"is_zero_balance_orig": 3,
			"error_balance_orig":   -0.001,
			"log_amount":           0.1,
		},
		TypeWeights: map[string]float64{"TRANSFER": 1.5, "CASH_OUT": 1},
		Threshold:   0.5,
	}
}

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, sigmoid(0), 1e-12)
	assert.Greater(t, sigmoid(10), 0.99)
	assert.Less(t, sigmoid(-10), 0.01)
}

func TestLinearModel_Score(t *testing.T) {
	m := testLinearModel()
	ctx := context.Background()

	legit := sampleEnriched()
	label, prob, err := m.Score(ctx, legit)
	require.NoError(t, err)

	// z = -4 + 1 (CASH_OUT) + 0 + 0 + 0.1*log1p(1000)
	want := sigmoid(-3 + 0.1*math.Log1p(1000))
	assert.InDelta(t, want, prob, 1e-12)
	assert.Equal(t, 0, label)

	drained := features.Derive(features.Raw{
		Type:           features.Transfer,
		Amount:         181000,
		OldBalanceOrig: 181000,
		NewBalanceOrig: 0,
	})
	label, prob, err = m.Score(ctx, drained)
	require.NoError(t, err)
	assert.Equal(t, 1, label)
	assert.Greater(t, prob, 0.5)

	p, err := m.PredictProbability(ctx, drained)
	require.NoError(t, err)
	assert.Equal(t, prob, p)
	l, err := m.Predict(ctx, drained)
	require.NoError(t, err)
	assert.Equal(t, 1, l)
}

func TestLinearModel_Deterministic(t *testing.T) {
	m := testLinearModel()
	tx := sampleEnriched()

	_, first, err := m.Score(context.Background(), tx)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, again, err := m.Score(context.Background(), tx)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestLoadLinearModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	writeJSON(t, path, testLinearModel())

	m, err := LoadLinearModel(path)
	require.NoError(t, err)
	assert.Equal(t, "lin-test", m.Version)
	assert.Equal(t, 0.5, m.Threshold)
}

func TestLoadLinearModel_DefaultThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	m := testLinearModel()
	m.Threshold = 0
	writeJSON(t, path, m)

	loaded, err := LoadLinearModel(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, loaded.Threshold)
}

func TestLoadLinearModel_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *LinearModel)
	}{
		{"wrong format", func(m *LinearModel) { m.Format = "onnx" }},
		{"unknown column", func(m *LinearModel) { m.Weights["velocity"] = 1 }},
		{"unknown type", func(m *LinearModel) { m.TypeWeights["WITHDRAWAL"] = 1 }},
		{"threshold too high", func(m *LinearModel) { m.Threshold = 1 }},
		{"negative threshold", func(m *LinearModel) { m.Threshold = -0.2 }},
		{"duplicate type alias", func(m *LinearModel) { m.TypeWeights["transfert"] = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testLinearModel()
			tt.mutate(m)
			path := filepath.Join(t.TempDir(), "model.json")
			writeJSON(t, path, m)

			_, err := LoadLinearModel(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadLinearModel_TypeAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	writeJSON(t, path, &LinearModel{
		Format:      LinearFormat,
		Version:     "aliases",
		TypeWeights: map[string]float64{"PAIEMENT": 5, "transfer": 5},
	})

	m, err := LoadLinearModel(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"PAYMENT": 5, "TRANSFER": 5}, m.TypeWeights)

	for _, typ := range []features.TransactionType{features.Payment, features.Transfer} {
		_, prob, err := m.Score(context.Background(), features.Derive(features.Raw{Type: typ}))
		require.NoError(t, err)
		assert.InDelta(t, 0.9933, prob, 1e-4, "weight for %s must count", typ)
	}

	_, prob, err := m.Score(context.Background(), features.Derive(features.Raw{Type: features.CashIn}))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, prob, 1e-12)
}

func TestLoadLinearModel_MissingFile(t *testing.T) {
	_, err := LoadLinearModel(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLinearModel_Explain(t *testing.T) {
	m := testLinearModel()
	tx := features.Derive(features.Raw{Type: features.Transfer, Amount: 181, OldBalanceOrig: 181})

	contribs := m.Explain(tx)
	require.Len(t, contribs, 4)
	assert.Equal(t, Contribution{Feature: "type=TRANSFER", Value: 1, Weight: 1.5, Impact: 1.5}, contribs[0])

	byName := map[string]Contribution{}
	for _, c := range contribs {
		byName[c.Feature] = c
	}
	assert.Equal(t, 3.0, byName["is_zero_balance_orig"].Impact)
	assert.InDelta(t, 0.1*math.Log1p(181), byName["log_amount"].Impact, 1e-12)
	assert.Zero(t, byName["error_balance_orig"].Impact)
}

func TestService_TopFactors(t *testing.T) {
	svc := NewService(NewArtifact(testLinearModel(), ModelMetadata{}), nil)
	tx := features.Derive(features.Raw{Type: features.Transfer, Amount: 181, OldBalanceOrig: 181})

	top := svc.TopFactors(tx, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "is_zero_balance_orig", top[0].Feature)
	assert.Equal(t, "type=TRANSFER", top[1].Feature)

	all := svc.TopFactors(tx, 10)
	assert.Len(t, all, 3, "zero impact terms are dropped")

	opaque := NewService(NewArtifact(&fakeClassifier{}, ModelMetadata{}), nil)
	assert.Nil(t, opaque.TopFactors(tx, 3))
	assert.Nil(t, svc.TopFactors(tx, 0))
}
