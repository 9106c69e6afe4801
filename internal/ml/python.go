package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"fraud-detector/internal/features"

	"github.com/rs/zerolog/log"
)

// ErrPythonNotFound is returned when no interpreter with joblib and pandas is available.
var ErrPythonNotFound = errors.New("no suitable Python 3 executable found")

// PythonClassifier serves a joblib-pickled sklearn pipeline by running an
// inference script per request. The pickle is never parsed in Go.
type PythonClassifier struct {
	modelPath  string
	pythonPath string
	scriptDir  string
	scriptPath string
	timeout    time.Duration
}

// NewPythonClassifier resolves an interpreter, writes the inference script to
// a private temp dir and health-checks the artifact with a sample transaction.
func NewPythonClassifier(ctx context.Context, modelPath, pythonPath string, timeout time.Duration) (*PythonClassifier, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}

	if pythonPath == "" {
		found, err := findPython()
		if err != nil {
			return nil, err
		}
		pythonPath = found
	}

	scriptDir, err := os.MkdirTemp("", "fraud-inference-")
	if err != nil {
		return nil, fmt.Errorf("create script dir: %w", err)
	}
	scriptPath := filepath.Join(scriptDir, "joblib_inference.py")
	if err := createInferenceScript(scriptPath); err != nil {
		os.RemoveAll(scriptDir)
		return nil, fmt.Errorf("write inference script: %w", err)
	}

	p := &PythonClassifier{
		modelPath:  modelPath,
		pythonPath: pythonPath,
		scriptDir:  scriptDir,
		scriptPath: scriptPath,
		timeout:    timeout,
	}

	if err := p.healthCheck(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("model health check: %w", err)
	}

	log.Info().
		Str("model_path", modelPath).
		Str("python_path", pythonPath).
		Msg("pickled model loaded")

	return p, nil
}

// Predict implements Classifier.
func (p *PythonClassifier) Predict(ctx context.Context, tx features.Enriched) (int, error) {
	label, _, err := p.Score(ctx, tx)
	return label, err
}

// PredictProbability implements Classifier.
func (p *PythonClassifier) PredictProbability(ctx context.Context, tx features.Enriched) (float64, error) {
	_, prob, err := p.Score(ctx, tx)
	return prob, err
}

// Score implements Scorer with a single interpreter run.
func (p *PythonClassifier) Score(ctx context.Context, tx features.Enriched) (int, float64, error) {
	reqJSON, err := json.Marshal(newFrameRequest(tx))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.pythonPath, p.scriptPath, p.modelPath)
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return 0, 0, fmt.Errorf("prediction timeout after %v: %w", p.timeout, context.DeadlineExceeded)
	}

	// the script reports its own failures as JSON on stdout
	var resp FrameResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		if runErr != nil {
			log.Error().
				Err(runErr).
				Str("python_path", p.pythonPath).
				Str("model_path", p.modelPath).
				Str("stderr", stderr.String()).
				Msg("python inference execution failed")
			return 0, 0, fmt.Errorf("python inference failed: %w, stderr: %s", runErr, strings.TrimSpace(stderr.String()))
		}
		return 0, 0, fmt.Errorf("failed to parse response: %w, stdout: %s", err, stdout.String())
	}

	label, prob, err := resp.single()
	if err != nil {
		log.Error().
			Err(err).
			Str("stderr", stderr.String()).
			Str("type", string(tx.Type)).
			Msg("python inference returned error")
		return 0, 0, err
	}

	log.Debug().
		Int("prediction", label).
		Float64("probability", prob).
		Msg("prediction successful")

	return label, prob, nil
}

// Close removes the generated inference script.
func (p *PythonClassifier) Close() error {
	if p.scriptDir == "" {
		return nil
	}
	err := os.RemoveAll(p.scriptDir)
	p.scriptDir = ""
	return err
}

func (p *PythonClassifier) healthCheck(ctx context.Context) error {
	sample := features.Derive(features.Raw{
		Type:           features.CashOut,
		Amount:         1000,
		OldBalanceOrig: 10000,
		NewBalanceOrig: 9000,
	})
	_, _, err := p.Score(ctx, sample)
	return err
}

func findPython() (string, error) {
	var candidates []string

	if venvPath := os.Getenv("VIRTUAL_ENV"); venvPath != "" {
		candidates = append(candidates,
			filepath.Join(venvPath, "bin", "python3"),
			filepath.Join(venvPath, "bin", "python"),
			filepath.Join(venvPath, "Scripts", "python.exe"),
		)
	}

	if execPath, err := os.Executable(); err == nil {
		root := filepath.Dir(filepath.Dir(execPath))
		candidates = append(candidates,
			filepath.Join(root, "venv", "bin", "python3"),
			filepath.Join(root, ".venv", "bin", "python3"),
		)
	}

	for _, name := range []string{"python3", "python", "python3.12", "python3.11", "python3.10"} {
		if path, err := exec.LookPath(name); err == nil {
			candidates = append(candidates, path)
		}
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		cmd := exec.Command(candidate, "-c", "import sys, joblib, pandas; print('Python', sys.version)")
		if output, err := cmd.Output(); err == nil && strings.Contains(string(output), "Python 3") {
			log.Info().Str("python_path", candidate).Msg("using Python interpreter")
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: install Python 3 with joblib, pandas and scikit-learn or set PYTHON_PATH", ErrPythonNotFound)
}

func createInferenceScript(scriptPath string) error {
	script := `#!/usr/bin/env python3
"""Runs one prediction against a joblib-pickled classifier."""
import json
import sys

try:
    import joblib
    import pandas as pd
except ImportError as e:
    print(json.dumps({"error": "missing dependency: %s" % e}))
    sys.exit(1)


def main():
    if len(sys.argv) != 2:
        print(json.dumps({"error": "usage: joblib_inference.py <model_path>"}))
        sys.exit(1)

    try:
        request = json.load(sys.stdin)
        frame = pd.DataFrame(request["rows"], columns=request["columns"])
        model = joblib.load(sys.argv[1])

        predictions = [int(p) for p in model.predict(frame)]
        probabilities = model.predict_proba(frame).tolist()

        print(json.dumps({"predictions": predictions, "probabilities": probabilities}))
    except Exception as e:
        print(json.dumps({"error": str(e)}))
        sys.exit(1)


if __name__ == "__main__":
    main()
`

	return os.WriteFile(scriptPath, []byte(script), 0o755)
}
