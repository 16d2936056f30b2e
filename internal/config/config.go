package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openctemio/cklmerge/pkg/checklist"
	"github.com/openctemio/cklmerge/pkg/logger"
)

// Merge strategies.
const (
	StrategySinglePass = "single-pass"
	StrategySequential = "sequential"
)

// DefaultOpenComment is written into Open findings when no comment is configured.
const DefaultOpenComment = "The  macbook is not controlled via any device management software  and hence " +
	"the rule cannot be enforced remotely via a Government controlled remote configuration."

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CKLMERGE_"

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `json:"log" yaml:"log"`
	Merge   MergeConfig   `json:"merge" yaml:"merge"`
	Open    OpenConfig    `json:"open" yaml:"open"`
	IO      IOConfig      `json:"io" yaml:"io"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"loglevel"`
	Format string `json:"format" yaml:"format" validate:"logformat"`
}

// MergeConfig controls how CSV comments are merged.
type MergeConfig struct {
	// Strategy is "single-pass" (one sweep over the checklist) or
	// "sequential" (one pass per identifier).
	Strategy string `json:"strategy" yaml:"strategy" validate:"oneof=single-pass sequential"`

	// EscapeXML escapes &, < and > in comments before they are written.
	EscapeXML bool `json:"escape_xml" yaml:"escape_xml"`
}

// OpenConfig controls the fixed comment stamped into matching findings.
type OpenConfig struct {
	Comment string `json:"comment" yaml:"comment"`
	Status  string `json:"status" yaml:"status" validate:"cklstatus"`
}

// IOConfig bounds reading sources and fan-out across files.
type IOConfig struct {
	MaxInputBytes       int64   `json:"max_input_bytes" yaml:"max_input_bytes" validate:"gt=0"`
	MaxCompressionRatio float64 `json:"max_compression_ratio" yaml:"max_compression_ratio" validate:"gte=0"`
	Workers             int     `json:"workers" yaml:"workers" validate:"gte=1,lte=64"`
}

// MetricsConfig controls where run metrics are exported.
type MetricsConfig struct {
	// Textfile, when set, receives metrics in the Prometheus text format.
	Textfile string `json:"textfile" yaml:"textfile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Merge: MergeConfig{
			Strategy: StrategySinglePass,
		},
		Open: OpenConfig{
			Comment: DefaultOpenComment,
			Status:  checklist.StatusOpen,
		},
		IO: IOConfig{
			MaxInputBytes:       256 * 1024 * 1024,
			MaxCompressionRatio: 100,
			Workers:             4,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cklmerge", "config.yaml")
}

// Load builds the configuration from defaults, the YAML file at path, and
// CKLMERGE_* environment variables, in that order of precedence from lowest
// to highest. A missing file at the default path is not an error; a missing
// file that was asked for explicitly is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Merge.Strategy = getEnv("MERGE_STRATEGY", c.Merge.Strategy)
	c.Merge.EscapeXML = getEnvBool("MERGE_ESCAPE_XML", c.Merge.EscapeXML)
	c.Open.Comment = getEnv("OPEN_COMMENT", c.Open.Comment)
	c.Open.Status = getEnv("OPEN_STATUS", c.Open.Status)
	c.IO.MaxInputBytes = getEnvInt64("IO_MAX_INPUT_BYTES", c.IO.MaxInputBytes)
	c.IO.MaxCompressionRatio = getEnvFloat("IO_MAX_COMPRESSION_RATIO", c.IO.MaxCompressionRatio)
	c.IO.Workers = getEnvInt("IO_WORKERS", c.IO.Workers)
	c.Metrics.Textfile = getEnv("METRICS_TEXTFILE", c.Metrics.Textfile)
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field" yaml:"field"`
	Message string `json:"message" yaml:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("invalid config: ")
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// oneOfTags backs custom "one of" validation tags with the lists owned by the
// packages that interpret the values.
var oneOfTags = map[string][]string{
	"loglevel":  logger.ValidLevels,
	"logformat": logger.ValidFormats,
	"cklstatus": checklist.Statuses,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	for tag, allowed := range oneOfTags {
		allowed := allowed
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return slices.Contains(allowed, fl.Field().String())
		})
	}
	return v
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fe.Namespace(),
			Message: messageFor(fe),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	if allowed, ok := oneOfTags[fe.Tag()]; ok {
		return fmt.Sprintf("must be one of [%s], got %q", strings.Join(allowed, " "), fmt.Sprint(fe.Value()))
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
