package config

import "time"

type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Demo       DemoConfig       `mapstructure:"demo" yaml:"demo"`
	CORS       CORSConfig       `mapstructure:"cors" yaml:"cors"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket" yaml:"websocket"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Tracing    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search"`

	// configFile is the resolved path of the file Load read; empty when
	// running on defaults and environment only.
	configFile string
}

// ConfigFileUsed reports which config file Load read, if any. The tunables
// watcher uses it to know what to watch.
func (c *Config) ConfigFileUsed() string { return c.configFile }

// StorageConfig selects and configures the telemetry store backend.
type StorageConfig struct {
	Backend          string       `mapstructure:"backend" yaml:"backend"` // memory, valkey
	RetentionMinutes int          `mapstructure:"retention_minutes" yaml:"retention_minutes"`
	Valkey           ValkeyConfig `mapstructure:"valkey" yaml:"valkey"`
}

type ValkeyConfig struct {
	Address  string `mapstructure:"address" yaml:"address"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// EngineConfig carries the analysis tunables. These are the knobs that may
// be hot-reloaded from the config file at runtime; everything else requires
// a restart.
type EngineConfig struct {
	LatencyMultiplier        float64 `mapstructure:"latency_multiplier" yaml:"latency_multiplier"`
	ErrorRateThreshold       float64 `mapstructure:"error_rate_threshold" yaml:"error_rate_threshold"`
	MinSamplesForBaseline    int     `mapstructure:"min_samples_for_baseline" yaml:"min_samples_for_baseline"`
	AnalysisWindowMinutes    int     `mapstructure:"analysis_window_minutes" yaml:"analysis_window_minutes"`
	BaselineWindowMinutes    int     `mapstructure:"baseline_window_minutes" yaml:"baseline_window_minutes"`
	CorrelationWindowMinutes int     `mapstructure:"correlation_window_minutes" yaml:"correlation_window_minutes"`
	IncidentTTLMinutes       int     `mapstructure:"incident_ttl_minutes" yaml:"incident_ttl_minutes"`
	TickIntervalSeconds      int     `mapstructure:"tick_interval_seconds" yaml:"tick_interval_seconds"`
}

// DemoConfig controls the built-in monitored shop endpoints that feed the
// telemetry pipeline.
type DemoConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// SelfBaseURL is the base URL checkout uses to call its sibling
	// endpoints. Empty means derive from the server port at startup.
	SelfBaseURL string `mapstructure:"self_base_url" yaml:"self_base_url"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

type WebSocketConfig struct {
	Enabled             bool `mapstructure:"enabled" yaml:"enabled"`
	PushIntervalSeconds int  `mapstructure:"push_interval_seconds" yaml:"push_interval_seconds"`
	PingIntervalSeconds int  `mapstructure:"ping_interval_seconds" yaml:"ping_interval_seconds"`
	ReadBufferSize      int  `mapstructure:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize     int  `mapstructure:"write_buffer_size" yaml:"write_buffer_size"`
}

type MonitoringConfig struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
	MetricsPath       string `mapstructure:"metrics_path" yaml:"metrics_path"`
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled" yaml:"prometheus_enabled"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

type SearchConfig struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	MaxResults int  `mapstructure:"max_results" yaml:"max_results"`
}

// AnalysisWindow returns the detector window as a duration.
func (e EngineConfig) AnalysisWindow() time.Duration {
	return time.Duration(e.AnalysisWindowMinutes) * time.Minute
}

// BaselineWindow returns the baseline learning window as a duration.
func (e EngineConfig) BaselineWindow() time.Duration {
	return time.Duration(e.BaselineWindowMinutes) * time.Minute
}

// CorrelationWindow returns the anomaly grouping window as a duration.
func (e EngineConfig) CorrelationWindow() time.Duration {
	return time.Duration(e.CorrelationWindowMinutes) * time.Minute
}

// IncidentTTL returns how long incidents stay in the active listing.
func (e EngineConfig) IncidentTTL() time.Duration {
	return time.Duration(e.IncidentTTLMinutes) * time.Minute
}

// TickInterval returns the scheduler period.
func (e EngineConfig) TickInterval() time.Duration {
	return time.Duration(e.TickIntervalSeconds) * time.Second
}

// Retention returns how long the store keeps records before pruning.
func (s StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionMinutes) * time.Minute
}
