package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"fraud-detector/internal/features"
	"fraud-detector/internal/ml"

	"github.com/rs/zerolog/log"
)

// recommended follow-ups shown when a transaction is flagged
var fraudActions = []string{
	"Temporarily block the transaction",
	"Contact the customer for verification",
	"Open an investigation",
}

type typeOption struct {
	Value    string
	Label    string
	Selected bool
}

type resultView struct {
	Fraud       bool
	Probability string
	Actions     []string
	Factors     []factorView
}

type factorView struct {
	Feature string
	Impact  string
}

type modelView struct {
	Version      string
	Algorithm    string
	TrainingRows string
	AUCROC       string
	F1Score      string
}

type pageData struct {
	Types  []typeOption
	Form   formValues
	Error  string
	Result *resultView
	Model  modelView
}

func (s *Server) newPage(form formValues) pageData {
	selected, err := features.ParseType(form.Type)
	if err != nil {
		selected = features.Payment
	}

	opts := make([]typeOption, 0, 4)
	for _, t := range features.Types() {
		opts = append(opts, typeOption{
			Value:    string(t),
			Label:    features.DisplayName(t),
			Selected: t == selected,
		})
	}

	var md ml.ModelMetadata
	if a := s.svc.Artifact(); a != nil {
		md = a.Metadata()
	}

	return pageData{
		Types: opts,
		Form:  form,
		Model: newModelView(md),
	}
}

func newResultView(res ml.PredictionResult, factors []ml.Contribution) *resultView {
	v := &resultView{
		Fraud:       res.IsFraud(),
		Probability: formatPercent(res.Probability),
	}
	if v.Fraud {
		v.Actions = fraudActions
	}
	for _, f := range factors {
		v.Factors = append(v.Factors, factorView{
			Feature: f.Feature,
			Impact:  fmt.Sprintf("%+.3f", f.Impact),
		})
	}
	return v
}

func newModelView(md ml.ModelMetadata) modelView {
	v := modelView{
		Version:   md.Version,
		Algorithm: md.Algorithm,
	}
	if md.TrainingRows > 0 {
		v.TrainingRows = formatRows(md.TrainingRows)
	}
	if md.AUCROC > 0 {
		v.AUCROC = formatPercent(md.AUCROC)
	}
	if md.F1Score > 0 {
		v.F1Score = formatPercent(md.F1Score)
	}
	return v
}

// formatPercent renders a probability as a percentage with one decimal.
func formatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

func formatRows(n int) string {
	switch {
	case n >= 1_000_000:
		return strings.TrimSuffix(fmt.Sprintf("%.1f", float64(n)/1e6), ".0") + "M+"
	case n >= 1_000:
		return strings.TrimSuffix(fmt.Sprintf("%.1f", float64(n)/1e3), ".0") + "K+"
	default:
		return fmt.Sprintf("%d", n)
	}
}

func (s *Server) render(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		log.Error().Err(err).Msg("Failed to render page")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <title>Bank Fraud Detection</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: Arial, sans-serif; max-width: 760px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .card { background: white; border-radius: 8px; padding: 20px; margin-bottom: 20px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .grid { display: grid; grid-template-columns: repeat(2, 1fr); gap: 12px 20px; }
        label { display: block; font-size: 0.9em; color: #555; margin-bottom: 4px; }
        input, select { width: 100%; padding: 8px; box-sizing: border-box; }
        button { width: 100%; padding: 12px; margin-top: 16px; background: #1f6feb; color: white; border: 0; border-radius: 6px; font-size: 1em; cursor: pointer; }
        .error { background: #fdecea; color: #b71c1c; padding: 12px; border-radius: 6px; }
        .fraud { background: #fdecea; border-left: 6px solid #d32f2f; }
        .legit { background: #e8f5e9; border-left: 6px solid #2e7d32; }
        .metric { font-size: 2em; font-weight: bold; }
        footer { text-align: center; color: gray; font-size: 0.9em; padding: 2rem 0; }
    </style>
</head>
<body>
    <h1>Bank Fraud Detection</h1>
    <p>Enter the transaction details below and click <strong>Analyze</strong>.</p>

    {{if .Error}}<div class="error" role="alert">{{.Error}}</div>{{end}}

    <form class="card" method="post" action="/analyze">
        <h3>Transaction</h3>
        <div class="grid">
            <div>
                <label for="type">Transaction type</label>
                <select id="type" name="type">
                    {{range .Types}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>
                    {{end}}
                </select>
            </div>
            <div>
                <label for="amount">Amount</label>
                <input id="amount" name="amount" type="number" min="0" step="100" value="{{.Form.Amount}}">
            </div>
        </div>

        <h3>Origin account</h3>
        <div class="grid">
            <div>
                <label for="old_balance_origin">Balance before</label>
                <input id="old_balance_origin" name="old_balance_origin" type="number" min="0" step="1000" value="{{.Form.OldBalanceOrig}}">
            </div>
            <div>
                <label for="new_balance_origin">Balance after</label>
                <input id="new_balance_origin" name="new_balance_origin" type="number" min="0" step="1000" value="{{.Form.NewBalanceOrig}}">
            </div>
        </div>

        <h3>Destination account</h3>
        <div class="grid">
            <div>
                <label for="old_balance_dest">Balance before</label>
                <input id="old_balance_dest" name="old_balance_dest" type="number" min="0" step="1000" value="{{.Form.OldBalanceDest}}">
            </div>
            <div>
                <label for="new_balance_dest">Balance after</label>
                <input id="new_balance_dest" name="new_balance_dest" type="number" min="0" step="1000" value="{{.Form.NewBalanceDest}}">
            </div>
        </div>

        <button type="submit">Analyze transaction</button>
    </form>

    {{with .Result}}
    <div class="card {{if .Fraud}}fraud{{else}}legit{{end}}" id="result">
        <h3>Analysis result</h3>
        <div>Fraud probability</div>
        <div class="metric" id="probability">{{.Probability}}</div>
        {{if .Fraud}}
        <p><strong>ALERT: this transaction is predicted FRAUDULENT</strong></p>
        <p>Recommended actions:</p>
        <ul>
            {{range .Actions}}<li>{{.}}</li>
            {{end}}
        </ul>
        {{else}}
        <p><strong>This transaction is predicted LEGITIMATE</strong></p>
        <p>The transaction can be authorized.</p>
        {{end}}
        {{if .Factors}}
        <p>Main factors:</p>
        <ul id="factors">
            {{range .Factors}}<li>{{.Feature}} ({{.Impact}})</li>
            {{end}}
        </ul>
        {{end}}
    </div>
    {{end}}

    <footer>
        <p><strong>Bank Fraud Detection</strong></p>
        {{with .Model}}
        <p>{{if .Algorithm}}{{.Algorithm}}{{else}}Machine learning classifier{{end}}{{if .Version}} | model {{.Version}}{{end}}</p>
        {{if or .TrainingRows .AUCROC .F1Score}}
        <p>{{if .TrainingRows}}Trained on {{.TrainingRows}} transactions{{end}}{{if .AUCROC}} | AUC-ROC: {{.AUCROC}}{{end}}{{if .F1Score}} | F1-Score: {{.F1Score}}{{end}}</p>
        {{end}}
        {{end}}
    </footer>
</body>
</html>
`
