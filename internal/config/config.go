package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/amixaam/transcoder-win/pkg/models"
)

// Config holds every knob the pipeline consumes. Components receive the
// sections they need at construction; nothing reads process-wide state.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	ScratchDir string `mapstructure:"scratch_dir"`
	LockFile   string `mapstructure:"lock_file"`

	Encoder  EncoderConfig  `mapstructure:"encoder"`
	Search   SearchConfig   `mapstructure:"search"`
	Sampling SamplingConfig `mapstructure:"sampling"`
	Files    FilesConfig    `mapstructure:"files"`
	Bands    BandsConfig    `mapstructure:"bands"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Paths    PathsConfig    `mapstructure:"paths"`
}

// EncoderConfig selects binaries, encoder ids, and fallback behavior.
type EncoderConfig struct {
	Binary             string   `mapstructure:"binary"`
	ProbeBinary        string   `mapstructure:"probe_binary"`
	Hardware8Bit       string   `mapstructure:"hardware_8bit"`
	Hardware10Bit      string   `mapstructure:"hardware_10bit"`
	Software8Bit       string   `mapstructure:"software_8bit"`
	Software10Bit      string   `mapstructure:"software_10bit"`
	HardwareDecodeFlag string   `mapstructure:"hardware_decode_flag"`
	EnableHardware     bool     `mapstructure:"enable_hardware"`
	ExtraFlags         []string `mapstructure:"extra_flags"`
	BackoffSeconds     float64  `mapstructure:"backoff_seconds"`
}

// SearchConfig bounds the quality search.
type SearchConfig struct {
	LowQuality     float64 `mapstructure:"low_quality"`
	HighQuality    float64 `mapstructure:"high_quality"`
	Granularity    float64 `mapstructure:"granularity"`
	DefaultQuality float64 `mapstructure:"default_quality"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
}

// SamplingConfig controls the short probe encodes.
type SamplingConfig struct {
	Count         int     `mapstructure:"count"`
	LengthSeconds float64 `mapstructure:"length_seconds"`
	DelaySeconds  float64 `mapstructure:"delay_seconds"`
}

// FilesConfig drives file eligibility, cleanup, and naming.
type FilesConfig struct {
	AllowExtensions []string `mapstructure:"allow_extensions"`
	KeepExtensions  []string `mapstructure:"keep_extensions"`
	SkipCodecs      []string `mapstructure:"skip_codecs"`
	ProcessedMarker string   `mapstructure:"processed_marker"`
	OutputExtension string   `mapstructure:"output_extension"`
}

// BandsConfig maps media categories to acceptance bands. Lookup is by
// substring of the category name; unmatched categories use Default.
type BandsConfig struct {
	Default models.BitrateRange            `mapstructure:"default"`
	ByName  map[string]models.BitrateRange `mapstructure:"by_name"`
}

// For returns the band for a category name.
func (b BandsConfig) For(category string) models.BitrateRange {
	lower := strings.ToLower(category)
	for name, band := range b.ByName {
		if strings.Contains(lower, strings.ToLower(name)) {
			return band
		}
	}
	return b.Default
}

// ScheduleConfig is the daily operating window in "HH:MM" local time.
// Identical start and end means the pipeline may run at any hour.
type ScheduleConfig struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// MonitorConfig holds the load thresholds checked between files.
type MonitorConfig struct {
	MaxCPUPercent float64 `mapstructure:"max_cpu_percent"`
	MaxMemPercent float64 `mapstructure:"max_mem_percent"`
}

// NotifyConfig configures the completion webhook. Empty URL disables it.
type NotifyConfig struct {
	WebhookURL     string `mapstructure:"webhook_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PathsConfig maps host paths into the encoder's view of the filesystem,
// for setups where the encoder binary runs under a different OS root.
type PathsConfig struct {
	HostRoot    string `mapstructure:"host_root"`
	EncoderRoot string `mapstructure:"encoder_root"`
}

// Load initializes viper and merges file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("TRANSCODER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("scratch_dir", "")
	v.SetDefault("lock_file", "transcoder-win.lock")

	v.SetDefault("encoder.binary", "HandBrakeCLI")
	v.SetDefault("encoder.probe_binary", "ffprobe")
	v.SetDefault("encoder.hardware_8bit", "nvenc_h265")
	v.SetDefault("encoder.hardware_10bit", "nvenc_h265_10bit")
	v.SetDefault("encoder.software_8bit", "x265")
	v.SetDefault("encoder.software_10bit", "x265_10bit")
	v.SetDefault("encoder.hardware_decode_flag", "nvdec")
	v.SetDefault("encoder.enable_hardware", true)
	v.SetDefault("encoder.backoff_seconds", 3.0)

	v.SetDefault("search.low_quality", 18.0)
	v.SetDefault("search.high_quality", 33.0)
	v.SetDefault("search.granularity", 0.5)
	v.SetDefault("search.default_quality", 24.0)
	v.SetDefault("search.max_attempts", 10)

	v.SetDefault("sampling.count", 4)
	v.SetDefault("sampling.length_seconds", 30.0)
	v.SetDefault("sampling.delay_seconds", 2.0)

	v.SetDefault("files.allow_extensions", []string{".mkv", ".mp4", ".avi", ".m2ts", ".ts", ".wmv"})
	v.SetDefault("files.keep_extensions", []string{".srt", ".ass", ".sub"})
	v.SetDefault("files.skip_codecs", []string{"hevc", "av1"})
	v.SetDefault("files.processed_marker", "_transcoded")
	v.SetDefault("files.output_extension", ".mp4")

	v.SetDefault("bands.default", map[string]any{"min": 2.0, "max": 4.0})
	v.SetDefault("bands.by_name", map[string]any{
		"anime": map[string]any{"min": 1.0, "max": 2.5},
		"shows": map[string]any{"min": 1.5, "max": 3.0},
	})

	v.SetDefault("schedule.start", "00:00")
	v.SetDefault("schedule.end", "00:00")

	v.SetDefault("monitor.max_cpu_percent", 90.0)
	v.SetDefault("monitor.max_mem_percent", 95.0)

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout_seconds", 10)
}

// Validate rejects configurations the search and sampler cannot run with.
func (c *Config) Validate() error {
	if c.Search.LowQuality >= c.Search.HighQuality {
		return fmt.Errorf("search: low_quality %.1f must be below high_quality %.1f",
			c.Search.LowQuality, c.Search.HighQuality)
	}
	if c.Search.Granularity <= 0 {
		return fmt.Errorf("search: granularity must be positive, got %.2f", c.Search.Granularity)
	}
	if c.Search.MaxAttempts <= 0 {
		return fmt.Errorf("search: max_attempts must be positive, got %d", c.Search.MaxAttempts)
	}
	if c.Sampling.Count <= 0 || c.Sampling.LengthSeconds <= 0 {
		return fmt.Errorf("sampling: count and length_seconds must be positive")
	}
	if err := c.Bands.Default.Validate(); err != nil {
		return fmt.Errorf("bands: default: %w", err)
	}
	for name, band := range c.Bands.ByName {
		if err := band.Validate(); err != nil {
			return fmt.Errorf("bands: %s: %w", name, err)
		}
	}
	return nil
}
