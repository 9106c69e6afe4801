// Package features turns a raw transaction into the enriched record the
// fraud classifier was trained on.
package features

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrUnknownTransactionType is returned for a type outside the four canonical codes.
	ErrUnknownTransactionType = errors.New("unknown transaction type")
	// ErrInvalidAmount is returned by Raw.Validate for negative or non-finite values.
	ErrInvalidAmount = errors.New("invalid amount")
)

// TransactionType is one of the canonical type codes the classifier expects.
type TransactionType string

const (
	Payment  TransactionType = "PAYMENT"
	Transfer TransactionType = "TRANSFER"
	CashOut  TransactionType = "CASH_OUT"
	CashIn   TransactionType = "CASH_IN"
)

var typeOrder = []TransactionType{Payment, Transfer, CashOut, CashIn}

// labels accepted on input; the French names come from the original form
var typeAliases = map[string]TransactionType{
	"PAYMENT":   Payment,
	"TRANSFER":  Transfer,
	"CASH_OUT":  CashOut,
	"CASH_IN":   CashIn,
	"PAIEMENT":  Payment,
	"TRANSFERT": Transfer,
	"RETRAIT":   CashOut,
	"DEPOT":     CashIn,
	"DÉPÔT":     CashIn,
}

var displayNames = map[TransactionType]string{
	Payment:  "Payment",
	Transfer: "Transfer",
	CashOut:  "Cash out",
	CashIn:   "Cash in",
}

// Types returns the canonical codes in display order.
func Types() []TransactionType {
	out := make([]TransactionType, len(typeOrder))
	copy(out, typeOrder)
	return out
}

// ParseType maps a canonical code or a legacy display name to its canonical code.
func ParseType(s string) (TransactionType, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if t, ok := typeAliases[key]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTransactionType, s)
}

// DisplayName returns the human label for t, or the code itself if unknown.
func DisplayName(t TransactionType) string {
	if name, ok := displayNames[t]; ok {
		return name
	}
	return string(t)
}

// Raw is a transaction as entered by the user.
type Raw struct {
	Type           TransactionType `json:"type"`
	Amount         float64         `json:"amount"`
	OldBalanceOrig float64         `json:"old_balance_origin"`
	NewBalanceOrig float64         `json:"new_balance_origin"`
	OldBalanceDest float64         `json:"old_balance_dest"`
	NewBalanceDest float64         `json:"new_balance_dest"`
}

// Validate enforces the caller contract: amount and balances must be
// finite and non-negative. Derive itself never calls it.
func (r Raw) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"amount", r.Amount},
		{"old_balance_origin", r.OldBalanceOrig},
		{"new_balance_origin", r.NewBalanceOrig},
		{"old_balance_dest", r.OldBalanceDest},
		{"new_balance_dest", r.NewBalanceDest},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidAmount, f.name)
		}
		if f.value < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %.2f", ErrInvalidAmount, f.name, f.value)
		}
	}
	return nil
}
