package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Processing  ProcessingConfig `mapstructure:"processing"`
	Storage     StorageConfig    `mapstructure:"storage"`
	Library     LibraryConfig    `mapstructure:"library"`
	Output      OutputConfig     `mapstructure:"output"`
	Ducking     DuckingConfig    `mapstructure:"ducking"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains status-query API server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	RateLimitRPS    int           `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

// DatabaseConfig contains job store settings
type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	Verbose bool   `mapstructure:"verbose"`
}

// ProcessingConfig contains pipeline and encoder settings. Workers bounds
// the CPU-light stages; RenderSlots is the separate, smaller ceiling for
// concurrent encoder invocations.
type ProcessingConfig struct {
	Workers       int           `mapstructure:"workers"`
	RenderSlots   int           `mapstructure:"render_slots"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	JobTimeout    time.Duration `mapstructure:"job_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	FFmpegPath    string        `mapstructure:"ffmpeg_path"`
	FFprobePath   string        `mapstructure:"ffprobe_path"`
	FFmpegTimeout time.Duration `mapstructure:"ffmpeg_timeout"`
}

// StorageConfig contains the pipeline's directory contract
type StorageConfig struct {
	AssetDir  string `mapstructure:"asset_dir"`
	PlanDir   string `mapstructure:"plan_dir"`
	OutputDir string `mapstructure:"output_dir"`
	TempDir   string `mapstructure:"temp_dir"`
}

// LibraryConfig locates the tagged BGM manifest and the SE clip directory
type LibraryConfig struct {
	BGMManifest string `mapstructure:"bgm_manifest"`
	SEDir       string `mapstructure:"se_dir"`
}

// OutputConfig contains target encode settings
type OutputConfig struct {
	Width              int     `mapstructure:"width"`
	Height             int     `mapstructure:"height"`
	VideoCodec         string  `mapstructure:"video_codec"`
	CRF                int     `mapstructure:"crf"`
	Preset             string  `mapstructure:"preset"`
	AudioCodec         string  `mapstructure:"audio_codec"`
	AudioBitrate       string  `mapstructure:"audio_bitrate"`
	TransitionDuration float64 `mapstructure:"transition_duration"`
}

// DuckingConfig tunes BGM attenuation during speech intervals
type DuckingConfig struct {
	AttenuationDB float64 `mapstructure:"attenuation_db"`
	AttackMs      int     `mapstructure:"attack_ms"`
	ReleaseMs     int     `mapstructure:"release_ms"`
	BGMGain       float64 `mapstructure:"bgm_gain"`
	SEFade        float64 `mapstructure:"se_fade"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
