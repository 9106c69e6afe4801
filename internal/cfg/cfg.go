package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"fraud-detector/internal/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelPath      string
	ModelTimeout   time.Duration
	PythonPath     string
	HTTPPort       int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool

	DriftEnabled      bool
	DriftWindow       int
	DriftBaselinePath string
	DriftThreshold    float64
}

type ConfigFile struct {
	Model struct {
		Path       string `yaml:"path"`
		Timeout    string `yaml:"timeout"`
		PythonPath string `yaml:"pythonPath"`
	} `yaml:"model"`

	Server struct {
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"readTimeout"`
		WriteTimeout string `yaml:"writeTimeout"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Metrics struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"metrics"`

	Drift struct {
		Enabled      bool    `yaml:"enabled"`
		Window       int     `yaml:"window"`
		BaselinePath string  `yaml:"baselinePath"`
		Threshold    float64 `yaml:"threshold"`
	} `yaml:"drift"`
}

// Addr returns the listen address for the HTTP server.
func (s Settings) Addr() string {
	return ":" + strconv.Itoa(s.HTTPPort)
}

func Load() (Settings, error) {
	if err := loadDotEnv(); err != nil {
		return Settings{}, err
	}

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

// loadDotEnv populates the environment from a .env file without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv() error {
	path := getEnvOrDefault(common.EnvDotEnvFile, common.DefaultDotEnvFile)
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	metricsEnabled := common.DefaultMetricsEnabled
	if config.Metrics.Enabled != nil {
		metricsEnabled = *config.Metrics.Enabled
	}

	// Environment variables take precedence over the file
	settings := Settings{
		ModelPath:      getEnvOrDefault(common.EnvModelPath, orDefault(config.Model.Path, common.DefaultModelPath)),
		ModelTimeout:   getDurationFromEnvOrConfig(common.EnvModelTimeout, config.Model.Timeout, common.DefaultModelTimeout),
		PythonPath:     getEnvOrDefault(common.EnvPythonPath, config.Model.PythonPath),
		HTTPPort:       getIntFromEnvOrConfig(common.EnvHTTPPort, config.Server.Port, common.DefaultHTTPPort),
		ReadTimeout:    getDurationFromEnvOrConfig(common.EnvReadTimeout, config.Server.ReadTimeout, common.DefaultReadTimeout),
		WriteTimeout:   getDurationFromEnvOrConfig(common.EnvWriteTimeout, config.Server.WriteTimeout, common.DefaultWriteTimeout),
		LogLevel:       strings.ToLower(getEnvOrDefault(common.EnvLogLevel, orDefault(config.Logging.Level, common.DefaultLogLevel))),
		LogFormat:      strings.ToLower(getEnvOrDefault(common.EnvLogFormat, orDefault(config.Logging.Format, common.DefaultLogFormat))),
		MetricsEnabled: getBoolOrDefault(common.EnvMetricsEnabled, metricsEnabled),

		DriftEnabled:      getBoolOrDefault(common.EnvDriftEnabled, config.Drift.Enabled),
		DriftWindow:       getIntFromEnvOrConfig(common.EnvDriftWindow, config.Drift.Window, common.DefaultDriftWindow),
		DriftBaselinePath: getEnvOrDefault(common.EnvDriftBaselinePath, config.Drift.BaselinePath),
		DriftThreshold:    getFloatFromEnvOrConfig(common.EnvDriftThreshold, config.Drift.Threshold, common.DefaultDriftThreshold),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelPath:      getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ModelTimeout:   getDurationOrDefault(common.EnvModelTimeout, mustDuration(common.DefaultModelTimeout)),
		PythonPath:     os.Getenv(common.EnvPythonPath), // optional, discovered when empty
		HTTPPort:       getIntOrDefault(common.EnvHTTPPort, common.DefaultHTTPPort),
		ReadTimeout:    getDurationOrDefault(common.EnvReadTimeout, mustDuration(common.DefaultReadTimeout)),
		WriteTimeout:   getDurationOrDefault(common.EnvWriteTimeout, mustDuration(common.DefaultWriteTimeout)),
		LogLevel:       strings.ToLower(getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel)),
		LogFormat:      strings.ToLower(getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat)),
		MetricsEnabled: getBoolOrDefault(common.EnvMetricsEnabled, common.DefaultMetricsEnabled),

		DriftEnabled:      getBoolOrDefault(common.EnvDriftEnabled, common.DefaultDriftEnabled),
		DriftWindow:       getIntOrDefault(common.EnvDriftWindow, common.DefaultDriftWindow),
		DriftBaselinePath: os.Getenv(common.EnvDriftBaselinePath),
		DriftThreshold:    getFloatFromEnvOrConfig(common.EnvDriftThreshold, 0, common.DefaultDriftThreshold),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("invalid default duration %q: %v", s, err))
	}
	return d
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getDurationFromEnvOrConfig(key, configValue, defaultValue string) time.Duration {
	if env := os.Getenv(key); env != "" {
		if d, err := time.ParseDuration(env); err == nil {
			return d
		}
	}
	if d, err := time.ParseDuration(configValue); err == nil {
		return d
	}
	return mustDuration(defaultValue)
}

// validateSettings performs range validation of configuration values
func validateSettings(settings *Settings) error {
	if strings.TrimSpace(settings.ModelPath) == "" {
		return errors.New(common.ErrMsgModelPathRequired)
	}

	if settings.ModelTimeout < 100*time.Millisecond || settings.ModelTimeout > 2*time.Minute {
		return fmt.Errorf("model timeout must be between 100ms and 2m, got %v", settings.ModelTimeout)
	}
	if settings.ReadTimeout < time.Second || settings.ReadTimeout > 5*time.Minute {
		return fmt.Errorf("read timeout must be between 1s and 5m, got %v", settings.ReadTimeout)
	}
	if settings.WriteTimeout < time.Second || settings.WriteTimeout > 5*time.Minute {
		return fmt.Errorf("write timeout must be between 1s and 5m, got %v", settings.WriteTimeout)
	}
	if settings.WriteTimeout < settings.ModelTimeout {
		return fmt.Errorf("write timeout %v must not be shorter than model timeout %v", settings.WriteTimeout, settings.ModelTimeout)
	}

	if settings.HTTPPort < common.MinHTTPPort || settings.HTTPPort > common.MaxHTTPPort {
		return fmt.Errorf("HTTP port must be between %d and %d, got %d", common.MinHTTPPort, common.MaxHTTPPort, settings.HTTPPort)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil || settings.LogLevel == "" {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}
	switch settings.LogFormat {
	case common.LogFormatConsole, common.LogFormatJSON:
	default:
		return fmt.Errorf("log format must be %q or %q, got %q", common.LogFormatConsole, common.LogFormatJSON, settings.LogFormat)
	}

	if settings.DriftEnabled {
		if settings.DriftWindow < common.MinDriftWindow || settings.DriftWindow > common.MaxDriftWindow {
			return fmt.Errorf("drift window must be between %d and %d, got %d", common.MinDriftWindow, common.MaxDriftWindow, settings.DriftWindow)
		}
		if settings.DriftThreshold <= 0 || settings.DriftThreshold > 10 {
			return fmt.Errorf("drift threshold must be in (0, 10], got %g", settings.DriftThreshold)
		}
	}

	return nil
}
