package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"fraud-detector/internal/cfg"
	"fraud-detector/internal/common"
	"fraud-detector/internal/features"
	"fraud-detector/internal/ml"

	"github.com/rs/zerolog/log"
)

// Exit codes
const (
	exitOK        = 0
	exitUsage     = 2
	exitLoad      = 3
	exitClassify  = 4
	exitBadOutput = 5
)

type options struct {
	modelPath  string
	pythonPath string
	timeout    time.Duration
	asJSON     bool
	logLevel   string

	txType         string
	amount         float64
	oldBalanceOrig float64
	newBalanceOrig float64
	oldBalanceDest float64
	newBalanceDest float64
}

type output struct {
	Label        string            `json:"label"`
	IsFraud      bool              `json:"is_fraud"`
	Probability  float64           `json:"probability"`
	ModelVersion string            `json:"model_version"`
	Features     features.Enriched `json:"features"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scoretx", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.modelPath, "model", envOr(common.EnvModelPath, common.DefaultModelPath), "Model artifact: .pkl, .json or http(s) URL")
	fs.StringVar(&o.pythonPath, "python", os.Getenv(common.EnvPythonPath), "Python interpreter for pickled models")
	fs.DurationVar(&o.timeout, "timeout", 5*time.Second, "Per-prediction timeout")
	fs.BoolVar(&o.asJSON, "json", false, "Print the result as JSON")
	fs.StringVar(&o.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	fs.StringVar(&o.txType, "type", "PAYMENT", "Transaction type: PAYMENT, TRANSFER, CASH_OUT, CASH_IN")
	fs.Float64Var(&o.amount, "amount", 1000, "Transaction amount")
	fs.Float64Var(&o.oldBalanceOrig, "old-orig", 10000, "Origin balance before the transaction")
	fs.Float64Var(&o.newBalanceOrig, "new-orig", 9000, "Origin balance after the transaction")
	fs.Float64Var(&o.oldBalanceDest, "old-dest", 0, "Destination balance before the transaction")
	fs.Float64Var(&o.newBalanceDest, "new-dest", 0, "Destination balance after the transaction")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg.SetupLogging(cfg.Settings{LogLevel: o.logLevel, LogFormat: common.LogFormatConsole}, stderr)

	t, err := features.ParseType(o.txType)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	raw := features.Raw{
		Type:           t,
		Amount:         o.amount,
		OldBalanceOrig: o.oldBalanceOrig,
		NewBalanceOrig: o.newBalanceOrig,
		OldBalanceDest: o.oldBalanceDest,
		NewBalanceDest: o.newBalanceDest,
	}
	if err := raw.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	enriched := features.Derive(raw)

	ctx := context.Background()
	artifact, err := ml.Load(ctx, ml.LoaderConfig{Path: o.modelPath, PythonPath: o.pythonPath, Timeout: o.timeout})
	if err != nil {
		log.Error().Err(err).Str("model_path", o.modelPath).Msg("model artifact load failed")
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitLoad
	}
	defer artifact.Close()

	res, err := ml.NewService(artifact, nil).Classify(ctx, enriched)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitClassify
	}

	out := output{
		Label:        res.Label.String(),
		IsFraud:      res.IsFraud(),
		Probability:  res.Probability,
		ModelVersion: res.ModelVersion,
		Features:     enriched,
	}

	if o.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitBadOutput
		}
		return exitOK
	}

	printText(stdout, out)
	return exitOK
}

func printText(w io.Writer, out output) {
	fmt.Fprintln(w, "=== Derived features ===")
	numeric := out.Features.Numeric()
	fmt.Fprintf(w, "%-28s %s\n", "type", out.Features.Type)
	for _, col := range features.Columns[1:] {
		fmt.Fprintf(w, "%-28s %.6f\n", col, numeric[col])
	}

	fmt.Fprintln(w, "\n=== Result ===")
	fmt.Fprintf(w, "Model version:       %s\n", out.ModelVersion)
	fmt.Fprintf(w, "Fraud probability:   %.1f%%\n", out.Probability*100)
	if out.IsFraud {
		fmt.Fprintln(w, "Prediction:          FRAUDULENT")
	} else {
		fmt.Fprintln(w, "Prediction:          LEGITIMATE")
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
