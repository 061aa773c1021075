package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"counterfact/app"
	"counterfact/internal"
	"counterfact/internal/errors"
	"counterfact/internal/gcomp"
	"counterfact/internal/ope"

	"github.com/go-playground/validator/v10"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Log        LogConfig
	Evaluation EvaluationSettings
	Data       DataConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port            string        `validate:"required,numeric"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// DatabaseConfig holds database connection settings. An empty URL runs
// without persistence.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int `validate:"gte=1"`
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `validate:"oneof=ERROR WARN INFO DEBUG TRACE"`
}

// EvaluationSettings holds the pipeline defaults
type EvaluationSettings struct {
	Alpha           float64 `validate:"gt=0,lt=1"`
	Bootstrap       int     `validate:"gte=2,lte=10000"`
	Seed            int64
	Model           string  `validate:"oneof=linear rf gbm"`
	Estimator       string  `validate:"oneof=ips snips dr"`
	CVFolds         int     `validate:"gte=2,lte=20"`
	GoPassRate      float64 `validate:"gt=0,lte=1"`
	CanaryPassRate  float64 `validate:"gt=0,lte=1,ltefield=GoPassRate"`
	Strict          bool
	AutoPassMissing bool
	Workers         int `validate:"gte=0"`
}

// DataConfig holds dataset loading settings
type DataConfig struct {
	Dir       string
	CacheSize int           `validate:"gte=0"`
	CacheTTL  time.Duration `validate:"gte=0"`
}

var validate = validator.New()

// Load reads configuration from environment variables and validates it.
// Malformed or out-of-range values fail with CONFIG_INVALID rather than
// falling back to defaults.
func Load() (*Config, error) {
	env := &envReader{}
	config := &Config{
		Server: ServerConfig{
			Port:            env.str("PORT", "8080"),
			ShutdownTimeout: env.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:          env.str("DATABASE_URL", ""),
			MaxOpenConns: env.int("DB_MAX_OPEN_CONNS", 10),
		},
		Log: LogConfig{
			Level: strings.ToUpper(env.str("LOG_LEVEL", "INFO")),
		},
		Evaluation: EvaluationSettings{
			Alpha:           env.float("EVAL_ALPHA", 0.05),
			Bootstrap:       env.int("EVAL_BOOTSTRAP", 100),
			Seed:            int64(env.int("EVAL_SEED", 42)),
			Model:           strings.ToLower(env.str("EVAL_MODEL", string(gcomp.FamilyLinear))),
			Estimator:       strings.ToLower(env.str("EVAL_ESTIMATOR", string(ope.MethodDR))),
			CVFolds:         env.int("EVAL_CV_FOLDS", 5),
			GoPassRate:      env.float("EVAL_GO_PASS_RATE", 0.70),
			CanaryPassRate:  env.float("EVAL_CANARY_PASS_RATE", 0.50),
			Strict:          env.bool("SPEC_STRICT", false),
			AutoPassMissing: env.bool("GATES_AUTO_PASS_MISSING", false),
			Workers:         env.int("EVAL_WORKERS", 0),
		},
		Data: DataConfig{
			Dir:       env.str("DATASET_DIR", ""),
			CacheSize: env.int("DATASET_CACHE_SIZE", 16),
			CacheTTL:  env.duration("DATASET_CACHE_TTL", 10*time.Minute),
		},
	}
	if len(env.errs) > 0 {
		return nil, errors.ConfigInvalid(strings.Join(env.errs, "; "))
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
			}
			return errors.ConfigInvalid(strings.Join(msgs, "; "))
		}
		return errors.ConfigInvalid(err.Error())
	}
	return nil
}

// LogLevel returns the parsed log level
func (c *Config) LogLevel() internal.LogLevel {
	return internal.ParseLogLevel(c.Log.Level)
}

// EvaluationConfig converts the settings into the pipeline's option struct
func (c *Config) EvaluationConfig(codeVersion string) app.EvaluationConfig {
	cfg := app.DefaultEvaluationConfig()
	e := c.Evaluation

	cfg.Estimator = ope.Method(e.Estimator)
	cfg.Alpha = e.Alpha
	cfg.GComp.Family = gcomp.Family(e.Model)
	cfg.GComp.Bootstrap = e.Bootstrap
	cfg.GComp.Alpha = e.Alpha
	cfg.GComp.Seed = e.Seed
	cfg.GComp.Model.Seed = e.Seed
	cfg.GComp.CVFolds = e.CVFolds
	cfg.GComp.Workers = e.Workers
	cfg.Battery.AutoPassMissing = e.AutoPassMissing
	cfg.Engine.GoPassRate = e.GoPassRate
	cfg.Engine.CanaryPassRate = e.CanaryPassRate
	cfg.Strict = e.Strict
	if codeVersion != "" {
		cfg.CodeVersion = codeVersion
	}
	return cfg
}

// envReader parses environment variables and collects every malformed value
type envReader struct {
	errs []string
}

func (r *envReader) fail(key, value, kind string) {
	r.errs = append(r.errs, fmt.Sprintf("%s=%q is not a valid %s", key, value, kind))
}

func (r *envReader) str(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func (r *envReader) int(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, value, "integer")
		return defaultValue
	}
	return v
}

func (r *envReader) float(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.fail(key, value, "number")
		return defaultValue
	}
	return v
}

func (r *envReader) bool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		r.fail(key, value, "boolean")
		return defaultValue
	}
	return v
}

func (r *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, value, "duration")
		return defaultValue
	}
	return v
}
