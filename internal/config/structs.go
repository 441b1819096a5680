//nolint:lll
package config

// Config represents the complete configuration for the imas matcher.
// It covers every command (match, detect, serve) and is loaded from
// configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Descriptor  DescriptorConfig  `mapstructure:"descriptor" yaml:"descriptor" json:"descriptor"`
	Aggregation AggregationConfig `mapstructure:"aggregation" yaml:"aggregation" json:"aggregation"`
	Plan        PlanConfig        `mapstructure:"plan" yaml:"plan" json:"plan"`
	Extractor   ExtractorConfig   `mapstructure:"extractor" yaml:"extractor" json:"extractor"`
	Matching    MatchingConfig    `mapstructure:"matching" yaml:"matching" json:"matching"`
	Filter      FilterConfig      `mapstructure:"filter" yaml:"filter" json:"filter"`
	Image       ImageConfig       `mapstructure:"image" yaml:"image" json:"image"`
	Parallel    ParallelConfig    `mapstructure:"parallel" yaml:"parallel" json:"parallel"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// DescriptorConfig selects the descriptor family. Norm and Ratio override the
// family presets when set.
type DescriptorConfig struct {
	Family string  `mapstructure:"family" yaml:"family" json:"family"`
	Norm   string  `mapstructure:"norm" yaml:"norm" json:"norm"`
	Ratio  float64 `mapstructure:"ratio" yaml:"ratio" json:"ratio"`
}

// AggregationConfig controls how raw keypoints are merged.
type AggregationConfig struct {
	Radius       float64 `mapstructure:"radius" yaml:"radius" json:"radius"`
	OrderedMerge bool    `mapstructure:"ordered_merge" yaml:"ordered_merge" json:"ordered_merge"`
}

// PlanConfig describes the simulated views. An explicit Tilts list wins over
// MaxTilt/TiltStep; a TiltStep of 0 uses the family's covering radius.
type PlanConfig struct {
	MaxTilt      float64   `mapstructure:"max_tilt" yaml:"max_tilt" json:"max_tilt"`
	TiltStep     float64   `mapstructure:"tilt_step" yaml:"tilt_step" json:"tilt_step"`
	RotationStep float64   `mapstructure:"rotation_step" yaml:"rotation_step" json:"rotation_step"`
	Tilts        []float64 `mapstructure:"tilts" yaml:"tilts,omitempty" json:"tilts,omitempty"`
}

// ExtractorConfig tunes the built-in detector.
type ExtractorConfig struct {
	Threshold    float32 `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	Octaves      int     `mapstructure:"octaves" yaml:"octaves" json:"octaves"`
	MaxKeypoints int     `mapstructure:"max_keypoints" yaml:"max_keypoints" json:"max_keypoints"`
}

// MatchingConfig contains matching engine settings.
type MatchingConfig struct {
	MinMatches      int    `mapstructure:"min_matches" yaml:"min_matches" json:"min_matches"`
	BackgroundLimit int    `mapstructure:"background_limit" yaml:"background_limit" json:"background_limit"`
	Seed            uint32 `mapstructure:"seed" yaml:"seed" json:"seed"`
}

// FilterConfig selects and tunes the robust model filter.
type FilterConfig struct {
	Method          string  `mapstructure:"method" yaml:"method" json:"method"`
	Precision       float64 `mapstructure:"precision" yaml:"precision" json:"precision"`
	Threshold       float64 `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	MaxNFA          float64 `mapstructure:"max_nfa" yaml:"max_nfa" json:"max_nfa"`
	MaxIterations   int     `mapstructure:"max_iterations" yaml:"max_iterations" json:"max_iterations"`
	ConsensusConfig string  `mapstructure:"consensus_config" yaml:"consensus_config" json:"consensus_config"`
}

// ImageConfig contains input image settings.
type ImageConfig struct {
	MaxSize int `mapstructure:"max_size" yaml:"max_size" json:"max_size"`
}

// ParallelConfig contains parallel processing settings.
type ParallelConfig struct {
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format  string `mapstructure:"format" yaml:"format" json:"format"`
	File    string `mapstructure:"file" yaml:"file" json:"file"`
	Overlay string `mapstructure:"overlay" yaml:"overlay" json:"overlay"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig bounds how much work one client may request. Zero
// disables a limit.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int  `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int  `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}
