package config

import (
	"os"
	"strconv"
	"time"

	"gohypo/internal/errors"
)

// Config represents the complete application configuration. It is loaded
// once at process start and passed explicitly; there are no hidden
// globals (§6, §9).
type Config struct {
	Database      DatabaseConfig
	Psychometrics PsychometricsConfig
	Server        ServerConfig
}

// DatabaseConfig holds response-store connection settings.
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// ServerConfig holds scheduling/runtime settings for the orchestrator.
type ServerConfig struct {
	HookTimeout time.Duration // per-submission hook budget, default 500ms (§5)
}

// PsychometricsConfig collects every threshold named in spec.md §6: "all
// thresholds are read from a single immutable configuration object loaded
// at process start; no hidden globals."
type PsychometricsConfig struct {
	// §4.B CTT analytics
	MinResponses int // MIN_RESP, default 50

	// §4.C Reliability
	MinSessionsForAlpha int     // default 100
	AlphaThreshold      float64 // AIQ threshold, default 0.70
	MinRetestPairs      int     // default 30
	MinIntervalDays     int     // default 14
	MaxIntervalDays     int     // default 90

	// §4.D Validity
	TooFastSeconds        float64 // default 3
	FastOnHardSeconds     float64 // default 5
	TooSlowSeconds        float64 // default 300
	RushedSessionMeanSecs float64 // default 15
	GuttmanThreshold      float64 // default 0.25
	PersonFitLZThreshold  float64 // default 2.0

	// §4.E IRT calibration
	EMMaxIter          int     // default 100
	EMEpsilon          float64 // convergence delta, default 1e-5
	QuadraturePoints   int     // default 41
	QuadratureMin      float64 // default -4
	QuadratureMax      float64 // default 4
	BootstrapResamples int     // B, default 50
	MaxSEA             float64 // max acceptable SE on discrimination, default 0.3
	MaxSEB             float64 // max acceptable SE on difficulty, default 0.3

	// §4.F CAT engine
	TargetSE             float64 // default 0.30
	MaxItemsPerSession   int     // default 40
	MinItemsPerSession   int     // default 5
	MinDeltaSE           float64 // plateau detection, default 0.01
	MinDeltaSEWindow     int     // over last N items, default 3
	PerDomainExposureCap int     // max times an item may be shown before deprioritized

	// §4.G Readiness
	MinCalibratedItemsPerDomain int     // default 30
	MinItemsPerDifficultyBand   int     // default 8
	EasyBCutoff                 float64 // b < this => easy, default -1
	HardBCutoff                 float64 // b > this => hard, default 1

	// §5 scheduling
	HookTimeout                   time.Duration // default 500ms
	RecalibrationNewRespThreshold int           // weekly trigger, default 5000
	StoreRetryAttempts            int           // default 3
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	dbConfig, err := loadDatabaseConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load database configuration")
	}

	cfg := &Config{
		Database:      *dbConfig,
		Psychometrics: loadPsychometricsConfig(),
		Server:        loadServerConfig(),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return cfg, nil
}

func loadDatabaseConfig() (*DatabaseConfig, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	return &DatabaseConfig{
		URL:     url,
		SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
	}, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		HookTimeout: getEnvDurationOrDefault("HOOK_TIMEOUT", 500*time.Millisecond),
	}
}

func loadPsychometricsConfig() PsychometricsConfig {
	return PsychometricsConfig{
		MinResponses: getEnvIntOrDefault("MIN_RESPONSES", 50),

		MinSessionsForAlpha: getEnvIntOrDefault("MIN_SESSIONS_ALPHA", 100),
		AlphaThreshold:      getEnvFloatOrDefault("ALPHA_THRESHOLD", 0.70),
		MinRetestPairs:      getEnvIntOrDefault("MIN_RETEST_PAIRS", 30),
		MinIntervalDays:     getEnvIntOrDefault("MIN_INTERVAL_DAYS", 14),
		MaxIntervalDays:     getEnvIntOrDefault("MAX_INTERVAL_DAYS", 90),

		TooFastSeconds:        getEnvFloatOrDefault("TOO_FAST_SECONDS", 3),
		FastOnHardSeconds:     getEnvFloatOrDefault("FAST_ON_HARD_SECONDS", 5),
		TooSlowSeconds:        getEnvFloatOrDefault("TOO_SLOW_SECONDS", 300),
		RushedSessionMeanSecs: getEnvFloatOrDefault("RUSHED_SESSION_MEAN_SECONDS", 15),
		GuttmanThreshold:      getEnvFloatOrDefault("GUTTMAN_THRESHOLD", 0.25),
		PersonFitLZThreshold:  getEnvFloatOrDefault("PERSON_FIT_LZ_THRESHOLD", 2.0),

		EMMaxIter:          getEnvIntOrDefault("EM_MAX_ITER", 100),
		EMEpsilon:          getEnvFloatOrDefault("EM_EPSILON", 1e-5),
		QuadraturePoints:   getEnvIntOrDefault("QUADRATURE_POINTS", 41),
		QuadratureMin:      getEnvFloatOrDefault("QUADRATURE_MIN", -4),
		QuadratureMax:      getEnvFloatOrDefault("QUADRATURE_MAX", 4),
		BootstrapResamples: getEnvIntOrDefault("BOOTSTRAP_RESAMPLES", 50),
		MaxSEA:             getEnvFloatOrDefault("MAX_SE_A", 0.3),
		MaxSEB:             getEnvFloatOrDefault("MAX_SE_B", 0.3),

		TargetSE:             getEnvFloatOrDefault("TARGET_SE", 0.30),
		MaxItemsPerSession:   getEnvIntOrDefault("MAX_ITEMS_PER_SESSION", 40),
		MinItemsPerSession:   getEnvIntOrDefault("MIN_ITEMS_PER_SESSION", 5),
		MinDeltaSE:           getEnvFloatOrDefault("MIN_DELTA_SE", 0.01),
		MinDeltaSEWindow:     getEnvIntOrDefault("MIN_DELTA_SE_WINDOW", 3),
		PerDomainExposureCap: getEnvIntOrDefault("PER_DOMAIN_EXPOSURE_CAP", 500),

		MinCalibratedItemsPerDomain: getEnvIntOrDefault("MIN_CALIBRATED_ITEMS_PER_DOMAIN", 30),
		MinItemsPerDifficultyBand:   getEnvIntOrDefault("MIN_ITEMS_PER_DIFFICULTY_BAND", 8),
		EasyBCutoff:                 getEnvFloatOrDefault("EASY_B_CUTOFF", -1),
		HardBCutoff:                 getEnvFloatOrDefault("HARD_B_CUTOFF", 1),

		HookTimeout:                   getEnvDurationOrDefault("HOOK_TIMEOUT", 500*time.Millisecond),
		RecalibrationNewRespThreshold: getEnvIntOrDefault("RECALIBRATION_NEW_RESPONSE_THRESHOLD", 5000),
		StoreRetryAttempts:            getEnvIntOrDefault("STORE_RETRY_ATTEMPTS", 3),
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Database.URL == "" {
		return errors.ConfigInvalid("database URL is required")
	}
	if cfg.Psychometrics.MinResponses <= 0 {
		return errors.ConfigInvalid("MIN_RESPONSES must be positive")
	}
	if cfg.Psychometrics.QuadraturePoints < 2 {
		return errors.ConfigInvalid("QUADRATURE_POINTS must be at least 2")
	}
	if cfg.Psychometrics.TargetSE <= 0 {
		return errors.ConfigInvalid("TARGET_SE must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
