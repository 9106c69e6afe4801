package common

// Environment variable keys
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvDotEnvFile     = "DOTENV_FILE"
	EnvModelPath      = "MODEL_PATH"
	EnvModelTimeout   = "MODEL_TIMEOUT"
	EnvPythonPath     = "PYTHON_PATH"
	EnvHTTPPort       = "HTTP_PORT"
	EnvReadTimeout    = "READ_TIMEOUT"
	EnvWriteTimeout   = "WRITE_TIMEOUT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
	EnvMetricsEnabled = "METRICS_ENABLED"

	EnvDriftEnabled      = "DRIFT_ENABLED"
	EnvDriftWindow       = "DRIFT_WINDOW"
	EnvDriftBaselinePath = "DRIFT_BASELINE_PATH"
	EnvDriftThreshold    = "DRIFT_THRESHOLD"
)

// Configuration defaults
const (
	DefaultDotEnvFile     = ".env"
	DefaultModelPath      = "models/fraud_detection_model_improved.pkl"
	DefaultModelTimeout   = "5s"
	DefaultHTTPPort       = 8501
	DefaultReadTimeout    = "10s"
	DefaultWriteTimeout   = "30s"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultMetricsEnabled = true

	DefaultDriftEnabled   = false
	DefaultDriftWindow    = 1000
	DefaultDriftThreshold = 0.2
)

// Log formats
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Common error messages
const (
	ErrMsgModelPathRequired = "model path is required"
)

// Validation constants
const (
	MinHTTPPort = 1024
	MaxHTTPPort = 65535

	MinDriftWindow = 100
	MaxDriftWindow = 100000
)
