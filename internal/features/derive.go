package features

import "math"

// LargeTransactionThreshold is the strict lower bound for large_transaction.
const LargeTransactionThreshold = 200000.0

// Columns is the model's input schema in training order.
var Columns = []string{
	"type",
	"amount",
	"oldbalanceOrg",
	"newbalanceOrig",
	"oldbalanceDest",
	"newbalanceDest",
	"balance_diff_orig",
	"balance_diff_dest",
	"amount_to_oldbalance_orig",
	"amount_to_oldbalance_dest",
	"error_balance_orig",
	"error_balance_dest",
	"is_zero_balance_orig",
	"is_zero_balance_dest",
	"large_transaction",
	"log_amount",
	"log_oldbalance_orig",
	"log_oldbalance_dest",
}

// Enriched is a Raw transaction plus the derived features. Values are
// produced by Derive and never modified afterwards.
type Enriched struct {
	Raw

	BalanceDiffOrig        float64 `json:"balance_diff_orig"`
	BalanceDiffDest        float64 `json:"balance_diff_dest"`
	AmountToOldBalanceOrig float64 `json:"amount_to_oldbalance_orig"`
	AmountToOldBalanceDest float64 `json:"amount_to_oldbalance_dest"`
	ErrorBalanceOrig       float64 `json:"error_balance_orig"`
	ErrorBalanceDest       float64 `json:"error_balance_dest"`
	IsZeroBalanceOrig      int     `json:"is_zero_balance_orig"`
	IsZeroBalanceDest      int     `json:"is_zero_balance_dest"`
	LargeTransaction       int     `json:"large_transaction"`
	LogAmount              float64 `json:"log_amount"`
	LogOldBalanceOrig      float64 `json:"log_oldbalance_orig"`
	LogOldBalanceDest      float64 `json:"log_oldbalance_dest"`
}

// Derive computes the engineered features. The +1 in the ratio
// denominators and log1p must match the training pipeline exactly.
func Derive(r Raw) Enriched {
	e := Enriched{Raw: r}

	e.BalanceDiffOrig = r.OldBalanceOrig - r.NewBalanceOrig
	e.BalanceDiffDest = r.NewBalanceDest - r.OldBalanceDest

	e.AmountToOldBalanceOrig = r.Amount / (r.OldBalanceOrig + 1)
	e.AmountToOldBalanceDest = r.Amount / (r.OldBalanceDest + 1)

	e.ErrorBalanceOrig = e.BalanceDiffOrig - r.Amount
	e.ErrorBalanceDest = e.BalanceDiffDest - r.Amount

	e.IsZeroBalanceOrig = indicator(r.NewBalanceOrig == 0)
	e.IsZeroBalanceDest = indicator(r.OldBalanceDest == 0)
	e.LargeTransaction = indicator(r.Amount > LargeTransactionThreshold)

	e.LogAmount = math.Log1p(r.Amount)
	e.LogOldBalanceOrig = math.Log1p(r.OldBalanceOrig)
	e.LogOldBalanceDest = math.Log1p(r.OldBalanceDest)

	return e
}

// Row returns the record values in Columns order; the type code is a string.
func (e Enriched) Row() []any {
	row := make([]any, 0, len(Columns))
	row = append(row, string(e.Type))
	for _, c := range Columns[1:] {
		row = append(row, e.value(c))
	}
	return row
}

// Numeric returns every numeric column keyed by name.
func (e Enriched) Numeric() map[string]float64 {
	out := make(map[string]float64, len(Columns)-1)
	for _, c := range Columns[1:] {
		out[c] = e.value(c)
	}
	return out
}

func (e Enriched) value(column string) float64 {
	switch column {
	case "amount":
		return e.Amount
	case "oldbalanceOrg":
		return e.OldBalanceOrig
	case "newbalanceOrig":
		return e.NewBalanceOrig
	case "oldbalanceDest":
		return e.OldBalanceDest
	case "newbalanceDest":
		return e.NewBalanceDest
	case "balance_diff_orig":
		return e.BalanceDiffOrig
	case "balance_diff_dest":
		return e.BalanceDiffDest
	case "amount_to_oldbalance_orig":
		return e.AmountToOldBalanceOrig
	case "amount_to_oldbalance_dest":
		return e.AmountToOldBalanceDest
	case "error_balance_orig":
		return e.ErrorBalanceOrig
	case "error_balance_dest":
		return e.ErrorBalanceDest
	case "is_zero_balance_orig":
		return float64(e.IsZeroBalanceOrig)
	case "is_zero_balance_dest":
		return float64(e.IsZeroBalanceDest)
	case "large_transaction":
		return float64(e.LargeTransaction)
	case "log_amount":
		return e.LogAmount
	case "log_oldbalance_orig":
		return e.LogOldBalanceOrig
	case "log_oldbalance_dest":
		return e.LogOldBalanceDest
	}
	return math.NaN()
}

// IsNumericColumn reports whether name is one of the numeric model columns.
func IsNumericColumn(name string) bool {
	for _, c := range Columns[1:] {
		if c == name {
			return true
		}
	}
	return false
}

func indicator(b bool) int {
	if b {
		return 1
	}
	return 0
}
