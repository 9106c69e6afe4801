package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"fraud-detector/internal/features"
	"fraud-detector/internal/ml"

	"github.com/rs/zerolog/log"
)

const (
	maxBodyBytes   = 1 << 16
	topFactorCount = 3
)

// PredictRequest is the body of POST /api/v1/predict.
type PredictRequest struct {
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	OldBalanceOrig float64 `json:"old_balance_origin"`
	NewBalanceOrig float64 `json:"new_balance_origin"`
	OldBalanceDest float64 `json:"old_balance_dest"`
	NewBalanceDest float64 `json:"new_balance_dest"`
}

// PredictResponse is returned by POST /api/v1/predict.
type PredictResponse struct {
	Label        string            `json:"label"`
	IsFraud      bool              `json:"is_fraud"`
	Probability  float64           `json:"probability"`
	ModelVersion string            `json:"model_version"`
	Features     features.Enriched `json:"features"`
	TopFactors   []ml.Contribution `json:"top_factors,omitempty"`
}

// ModelResponse is returned by GET /api/v1/model.
type ModelResponse struct {
	ml.ModelMetadata
	Path     string `json:"path"`
	LoadedAt string `json:"loaded_at"`
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, s.newPage(defaultForm()))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		page := s.newPage(defaultForm())
		page.Error = "Could not read the submitted form."
		s.render(w, http.StatusBadRequest, page)
		return
	}

	form := formFromRequest(r)
	page := s.newPage(form)

	raw, err := form.raw()
	if err != nil {
		s.countRejection(err)
		page.Error = err.Error()
		s.render(w, http.StatusBadRequest, page)
		return
	}

	enriched := features.Derive(raw)
	res, err := s.svc.Classify(r.Context(), enriched)
	if err != nil {
		log.Error().Err(err).Str("request_id", RequestIDFrom(r.Context())).Msg("Form classification failed")
		page.Error = "The model could not score this transaction. Please try again."
		s.render(w, http.StatusInternalServerError, page)
		return
	}

	page.Result = newResultView(res, s.svc.TopFactors(enriched, topFactorCount))
	s.render(w, http.StatusOK, page)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.metrics.InvalidInputInc()
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	raw, err := req.raw()
	if err != nil {
		s.countRejection(err)
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	enriched := features.Derive(raw)
	res, err := s.svc.Classify(r.Context(), enriched)
	if err != nil {
		log.Error().Err(err).Str("request_id", RequestIDFrom(r.Context())).Msg("API classification failed")
		WriteError(w, http.StatusInternalServerError, "classification failed")
		return
	}

	WriteJSON(w, http.StatusOK, PredictResponse{
		Label:        res.Label.String(),
		IsFraud:      res.IsFraud(),
		Probability:  res.Probability,
		ModelVersion: res.ModelVersion,
		Features:     enriched,
		TopFactors:   s.svc.TopFactors(enriched, topFactorCount),
	})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	a := s.svc.Artifact()
	if a == nil {
		WriteError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	WriteJSON(w, http.StatusOK, ModelResponse{
		ModelMetadata: a.Metadata(),
		Path:          a.Path(),
		LoadedAt:      a.LoadedAt().UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.svc.Drift().Report())
}

func (s *Server) handleDriftReset(w http.ResponseWriter, r *http.Request) {
	drift := s.svc.Drift()
	if !drift.Enabled() {
		WriteError(w, http.StatusConflict, "drift monitoring is disabled")
		return
	}
	drift.Reset()
	log.Info().Str("request_id", RequestIDFrom(r.Context())).Msg("Drift window reset")
	WriteJSON(w, http.StatusOK, drift.Report())
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "not found")
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.svc.Health()
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, health)
}

func (s *Server) countRejection(err error) {
	if errors.Is(err, features.ErrUnknownTransactionType) {
		s.metrics.UnknownTypeInc()
		return
	}
	s.metrics.InvalidInputInc()
}

func (req PredictRequest) raw() (features.Raw, error) {
	t, err := features.ParseType(req.Type)
	if err != nil {
		return features.Raw{}, err
	}
	raw := features.Raw{
		Type:           t,
		Amount:         req.Amount,
		OldBalanceOrig: req.OldBalanceOrig,
		NewBalanceOrig: req.NewBalanceOrig,
		OldBalanceDest: req.OldBalanceDest,
		NewBalanceDest: req.NewBalanceDest,
	}
	if err := raw.Validate(); err != nil {
		return features.Raw{}, err
	}
	return raw, nil
}

// formValues keeps the submitted strings so the page can be re-rendered as typed.
type formValues struct {
	Type           string
	Amount         string
	OldBalanceOrig string
	NewBalanceOrig string
	OldBalanceDest string
	NewBalanceDest string
}

func defaultForm() formValues {
	return formValues{
		Type:           string(features.Payment),
		Amount:         "1000",
		OldBalanceOrig: "10000",
		NewBalanceOrig: "9000",
		OldBalanceDest: "0",
		NewBalanceDest: "0",
	}
}

func formFromRequest(r *http.Request) formValues {
	return formValues{
		Type:           r.PostFormValue("type"),
		Amount:         r.PostFormValue("amount"),
		OldBalanceOrig: r.PostFormValue("old_balance_origin"),
		NewBalanceOrig: r.PostFormValue("new_balance_origin"),
		OldBalanceDest: r.PostFormValue("old_balance_dest"),
		NewBalanceDest: r.PostFormValue("new_balance_dest"),
	}
}

func (f formValues) raw() (features.Raw, error) {
	t, err := features.ParseType(f.Type)
	if err != nil {
		return features.Raw{}, err
	}

	raw := features.Raw{Type: t}
	fields := []struct {
		label string
		in    string
		out   *float64
	}{
		{"Amount", f.Amount, &raw.Amount},
		{"Origin balance before", f.OldBalanceOrig, &raw.OldBalanceOrig},
		{"Origin balance after", f.NewBalanceOrig, &raw.NewBalanceOrig},
		{"Destination balance before", f.OldBalanceDest, &raw.OldBalanceDest},
		{"Destination balance after", f.NewBalanceDest, &raw.NewBalanceDest},
	}

	for _, fld := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(fld.in), 64)
		if err != nil {
			return features.Raw{}, fmt.Errorf("%w: %s must be a number", features.ErrInvalidAmount, fld.label)
		}
		if v < 0 {
			return features.Raw{}, fmt.Errorf("%w: %s cannot be negative", features.ErrInvalidAmount, fld.label)
		}
		*fld.out = v
	}

	if err := raw.Validate(); err != nil {
		return features.Raw{}, err
	}
	return raw, nil
}
