package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load builds the service configuration. Environment variables win over the
// optional config.yaml, which wins over the built-in defaults.
func Load() (*Config, error) {
	v := viper.New()

	// The config file is optional; search the usual locations.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/vigia/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	// VIGIA_-prefixed variables map onto dotted keys.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("VIGIA")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing file is fine; defaults and env cover everything.
	}

	overrideWithEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.configFile = v.ConfigFileUsed()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults seeds every key so Unmarshal always yields a complete Config.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("environment", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("service_name", "vigia")

	// Storage defaults
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.retention_minutes", 120) // 2x the baseline window
	v.SetDefault("storage.valkey.address", "localhost:6379")
	v.SetDefault("storage.valkey.db", 0)

	// Engine defaults
	v.SetDefault("engine.latency_multiplier", 3.0)
	v.SetDefault("engine.error_rate_threshold", 0.2)
	v.SetDefault("engine.min_samples_for_baseline", 10)
	v.SetDefault("engine.analysis_window_minutes", 5)
	v.SetDefault("engine.baseline_window_minutes", 60)
	v.SetDefault("engine.correlation_window_minutes", 5)
	v.SetDefault("engine.incident_ttl_minutes", 30)
	v.SetDefault("engine.tick_interval_seconds", 30)

	// Demo shop defaults
	v.SetDefault("demo.enabled", true)
	v.SetDefault("demo.self_base_url", "")

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Trace-ID"})
	v.SetDefault("cors.exposed_headers", []string{"X-Trace-ID"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 3600)

	// WebSocket defaults
	v.SetDefault("websocket.enabled", true)
	v.SetDefault("websocket.push_interval_seconds", 5)
	v.SetDefault("websocket.ping_interval_seconds", 30)
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.prometheus_enabled", true)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing.sample_ratio", 1.0)

	// Search defaults
	v.SetDefault("search.enabled", true)
	v.SetDefault("search.max_results", 50)
}

// overrideWithEnvVars applies the short unprefixed variables container
// deployments set, on top of whatever the file and VIGIA_ vars provided.
func overrideWithEnvVars(v *viper.Viper) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("port", p)
		}
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		v.Set("environment", env)
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		v.Set("log_level", logLevel)
	}

	if backend := os.Getenv("STORAGE_BACKEND"); backend != "" {
		v.Set("storage.backend", backend)
	}

	if addr := os.Getenv("VALKEY_ADDRESS"); addr != "" {
		v.Set("storage.valkey.address", addr)
		v.Set("storage.backend", "valkey")
	}

	if password := os.Getenv("VALKEY_PASSWORD"); password != "" {
		v.Set("storage.valkey.password", password)
	}

	if tick := os.Getenv("TICK_INTERVAL_SECONDS"); tick != "" {
		if t, err := strconv.Atoi(tick); err == nil {
			v.Set("engine.tick_interval_seconds", t)
		}
	}

	if otlp := os.Getenv("OTLP_ENDPOINT"); otlp != "" {
		v.Set("tracing.otlp_endpoint", otlp)
		v.Set("tracing.enabled", true)
	}
}

// validateConfig rejects configurations the service cannot run with.
func validateConfig(config *Config) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", config.Port)
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLogLevels, config.LogLevel) {
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}

	validEnvironments := []string{"development", "staging", "production", "test"}
	if !contains(validEnvironments, config.Environment) {
		return fmt.Errorf("invalid environment: %s", config.Environment)
	}

	validBackends := []string{"memory", "valkey"}
	if !contains(validBackends, config.Storage.Backend) {
		return fmt.Errorf("invalid storage backend: %s", config.Storage.Backend)
	}

	if config.Storage.Backend == "valkey" && config.Storage.Valkey.Address == "" {
		return fmt.Errorf("valkey address is required when the valkey backend is selected")
	}

	if config.Storage.RetentionMinutes < config.Engine.BaselineWindowMinutes {
		return fmt.Errorf("storage retention (%dm) must cover the baseline window (%dm)",
			config.Storage.RetentionMinutes, config.Engine.BaselineWindowMinutes)
	}

	return validateEngine(&config.Engine)
}

// validateEngine checks the analysis tunables. Reused by the hot-reload path
// so a bad edit to the config file never reaches the analyzer.
func validateEngine(e *EngineConfig) error {
	if e.LatencyMultiplier <= 1 {
		return fmt.Errorf("latency multiplier must be greater than 1, got %v", e.LatencyMultiplier)
	}

	if e.ErrorRateThreshold <= 0 || e.ErrorRateThreshold >= 1 {
		return fmt.Errorf("error rate threshold must be in (0, 1), got %v", e.ErrorRateThreshold)
	}

	if e.MinSamplesForBaseline < 1 {
		return fmt.Errorf("min samples for baseline must be at least 1, got %d", e.MinSamplesForBaseline)
	}

	if e.AnalysisWindowMinutes < 1 || e.BaselineWindowMinutes < 1 {
		return fmt.Errorf("analysis and baseline windows must be at least 1 minute")
	}

	if e.AnalysisWindowMinutes >= e.BaselineWindowMinutes {
		return fmt.Errorf("analysis window (%dm) must be shorter than the baseline window (%dm)",
			e.AnalysisWindowMinutes, e.BaselineWindowMinutes)
	}

	if e.CorrelationWindowMinutes < 1 {
		return fmt.Errorf("correlation window must be at least 1 minute")
	}

	if e.IncidentTTLMinutes < 1 {
		return fmt.Errorf("incident TTL must be at least 1 minute")
	}

	if e.TickIntervalSeconds < 1 {
		return fmt.Errorf("tick interval must be at least 1 second")
	}

	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
