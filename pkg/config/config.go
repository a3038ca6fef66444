package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	once    sync.Once
	initErr error
)

// Init initializes the configuration system.
// This should be called once at application startup.
func Init() error {
	once.Do(func() {
		// Set default values
		setDefaults()

		// Set up environment variable reading for overrides
		viper.SetEnvPrefix("CLIPFORGE")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		// Load config from fixed location (cleaned for safety)
		configPath := filepath.Clean("./config/settings.yaml")
		viper.SetConfigFile(configPath)

		// Try to read the config file
		if err := viper.ReadInConfig(); err != nil {
			// If the config file doesn't exist, just use defaults and env vars
			if !os.IsNotExist(err) {
				initErr = fmt.Errorf("error reading config file %s: %w", configPath, err)
				return
			}
		}

		// Validate the configuration
		if err := validate(); err != nil {
			initErr = fmt.Errorf("invalid configuration: %w", err)
		}
	})

	return initErr
}

// GetConfig returns the current configuration as a struct.
// Init() must be called before using this.
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetString returns a string config value
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a time.Duration config value
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// validate validates the configuration using Viper values
func validate() error {
	port := viper.GetInt("server.port")
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %d", port)
	}

	if viper.GetString("database.path") == "" {
		fmt.Println("Warning: No database path configured")
	}

	// Auto-correct invalid worker count
	if viper.GetInt("processing.workers") <= 0 {
		viper.Set("processing.workers", 4)
	}

	// Render slots are the binding resource constraint; never allow more
	// render slots than workers.
	slots := viper.GetInt("processing.render_slots")
	if slots <= 0 {
		viper.Set("processing.render_slots", 1)
		slots = 1
	}
	if slots > viper.GetInt("processing.workers") {
		viper.Set("processing.render_slots", viper.GetInt("processing.workers"))
	}

	return nil
}

// Validate validates a Config struct (for testing)
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Processing.Workers <= 0 {
		c.Processing.Workers = 4
	}

	if c.Processing.RenderSlots <= 0 {
		c.Processing.RenderSlots = 1
	}
	if c.Processing.RenderSlots > c.Processing.Workers {
		c.Processing.RenderSlots = c.Processing.Workers
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Environment defaults
	viper.SetDefault("environment", "development")

	// Server defaults (status-query API)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_header_bytes", 1048576)
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("server.rate_limit_burst", 40)

	// Database defaults
	viper.SetDefault("database.path", "./data/clipforge.db")
	viper.SetDefault("database.verbose", false)

	// Processing defaults
	viper.SetDefault("processing.workers", 4)
	viper.SetDefault("processing.render_slots", 1)
	viper.SetDefault("processing.poll_interval", 2*time.Second)
	viper.SetDefault("processing.job_timeout", 30*time.Minute)
	viper.SetDefault("processing.retry_attempts", 3)
	viper.SetDefault("processing.retry_delay", 5*time.Second)
	viper.SetDefault("processing.ffmpeg_path", "ffmpeg")
	viper.SetDefault("processing.ffprobe_path", "ffprobe")
	viper.SetDefault("processing.ffmpeg_timeout", 20*time.Minute)

	// Storage defaults
	viper.SetDefault("storage.asset_dir", "./data/raw")
	viper.SetDefault("storage.plan_dir", "./data/plans")
	viper.SetDefault("storage.output_dir", "./data/output")
	viper.SetDefault("storage.temp_dir", "./tmp")

	// Asset library defaults
	viper.SetDefault("library.bgm_manifest", "./assets/bgm/manifest.json")
	viper.SetDefault("library.se_dir", "./assets/se")

	// Output format defaults: 9:16 vertical at 1080p
	viper.SetDefault("output.width", 1080)
	viper.SetDefault("output.height", 1920)
	viper.SetDefault("output.video_codec", "libx264")
	viper.SetDefault("output.crf", 23)
	viper.SetDefault("output.preset", "veryfast")
	viper.SetDefault("output.audio_codec", "aac")
	viper.SetDefault("output.audio_bitrate", "192k")
	viper.SetDefault("output.transition_duration", 0.5)

	// Ducking defaults
	viper.SetDefault("ducking.attenuation_db", 12.0)
	viper.SetDefault("ducking.attack_ms", 50)
	viper.SetDefault("ducking.release_ms", 300)
	viper.SetDefault("ducking.bgm_gain", 0.35)
	viper.SetDefault("ducking.se_fade", 0.05)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
