package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration, loaded from a YAML file
// with environment variables taking precedence over file values.
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Whisper struct {
		Model     string `yaml:"model"`
		Device    string `yaml:"device"`
		Precision string `yaml:"precision"`
		Threads   int    `yaml:"threads"`
	} `yaml:"whisper"`

	Preprocess struct {
		Enabled  bool `yaml:"enabled"`
		HighPass bool `yaml:"high_pass"`
		Loudnorm bool `yaml:"loudnorm"`
	} `yaml:"preprocess"`

	Separation struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"separation"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Limits struct {
		MaxFileSizeMB     int `yaml:"max_file_size_mb"`
		JobTimeoutSeconds int `yaml:"job_timeout_seconds"`
	} `yaml:"limits"`

	Retention struct {
		ResultTTLMinutes       int `yaml:"result_ttl_minutes"`
		CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
		TempMaxAgeHours        int `yaml:"temp_max_age_hours"`
		ArchiveTTLDays         int `yaml:"archive_ttl_days"`
	} `yaml:"retention"`

	Format struct {
		MaxLineChars      int     `yaml:"max_line_chars"`
		LineGapSeconds    float64 `yaml:"line_gap_seconds"`
		StanzaGapSeconds  float64 `yaml:"stanza_gap_seconds"`
		UppercaseBreak    bool    `yaml:"uppercase_break"`
		UppercaseMinChars int     `yaml:"uppercase_min_chars"`
		UppercaseMinWords int     `yaml:"uppercase_min_words"`
		RepeatThreshold   int     `yaml:"repeat_threshold"`
	} `yaml:"format"`

	Storage struct {
		TempDir   string `yaml:"temp_dir"`
		OutputDir string `yaml:"output_dir"`
		Database  string `yaml:"database"`
	} `yaml:"storage"`

	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`
}

// Load reads the YAML config at path (if it exists), layers a .env file and
// then the process environment on top, applies defaults and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// .env is optional; real environment still wins because godotenv
	// never overwrites variables that are already set.
	_ = godotenv.Load()

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr(&c.Server.Host, "SERVER_HOST")
	envInt(&c.Server.Port, "SERVER_PORT")
	envStr(&c.Log.Level, "LOG_LEVEL")
	envStr(&c.Log.Format, "LOG_FORMAT")
	envStr(&c.Whisper.Model, "WHISPER_MODEL")
	envStr(&c.Whisper.Device, "WHISPER_DEVICE")
	envStr(&c.Whisper.Precision, "WHISPER_PRECISION")
	envInt(&c.Whisper.Threads, "WHISPER_THREADS")
	envBool(&c.Preprocess.Enabled, "PREPROCESS_ENABLED")
	envBool(&c.Preprocess.HighPass, "PREPROCESS_HIGH_PASS")
	envBool(&c.Preprocess.Loudnorm, "PREPROCESS_LOUDNORM")
	envBool(&c.Separation.Enabled, "SEPARATION_ENABLED")
	envInt(&c.Workers.Count, "WORKER_COUNT")
	envInt(&c.Limits.MaxFileSizeMB, "MAX_FILE_SIZE_MB")
	envInt(&c.Limits.JobTimeoutSeconds, "JOB_TIMEOUT_SECONDS")
	envInt(&c.Retention.ResultTTLMinutes, "RESULT_TTL_MINUTES")
	envInt(&c.Retention.CleanupIntervalMinutes, "CLEANUP_INTERVAL_MINUTES")
	envInt(&c.Retention.TempMaxAgeHours, "TEMP_MAX_AGE_HOURS")
	envInt(&c.Retention.ArchiveTTLDays, "ARCHIVE_TTL_DAYS")
	envInt(&c.Format.MaxLineChars, "FORMAT_MAX_LINE_CHARS")
	envFloat(&c.Format.LineGapSeconds, "FORMAT_LINE_GAP_SECONDS")
	envFloat(&c.Format.StanzaGapSeconds, "FORMAT_STANZA_GAP_SECONDS")
	envBool(&c.Format.UppercaseBreak, "FORMAT_UPPERCASE_BREAK")
	envInt(&c.Format.UppercaseMinChars, "FORMAT_UPPERCASE_MIN_CHARS")
	envInt(&c.Format.UppercaseMinWords, "FORMAT_UPPERCASE_MIN_WORDS")
	envInt(&c.Format.RepeatThreshold, "FORMAT_REPEAT_THRESHOLD")
	envStr(&c.Storage.TempDir, "TEMP_DIR")
	envStr(&c.Storage.OutputDir, "OUTPUT_DIR")
	envStr(&c.Storage.Database, "DATABASE_PATH")
	envStr(&c.Redis.URL, "REDIS_URL")
	envStr(&c.GoogleDrive.CredentialsFile, "GDRIVE_CREDENTIALS_FILE")
	envStr(&c.GoogleDrive.TokenFile, "GDRIVE_TOKEN_FILE")
	envStr(&c.GoogleDrive.FolderName, "GDRIVE_FOLDER_NAME")
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Whisper.Model == "" {
		c.Whisper.Model = "small"
	}
	if c.Whisper.Device == "" {
		c.Whisper.Device = "cpu"
	}
	if c.Whisper.Precision == "" {
		c.Whisper.Precision = "fp32"
	}
	if c.Whisper.Threads == 0 {
		c.Whisper.Threads = 4
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = 2
	}
	if c.Limits.MaxFileSizeMB == 0 {
		c.Limits.MaxFileSizeMB = 50
	}
	if c.Limits.JobTimeoutSeconds == 0 {
		c.Limits.JobTimeoutSeconds = 600
	}
	if c.Retention.ResultTTLMinutes == 0 {
		c.Retention.ResultTTLMinutes = 60
	}
	if c.Retention.CleanupIntervalMinutes == 0 {
		c.Retention.CleanupIntervalMinutes = 15
	}
	if c.Retention.TempMaxAgeHours == 0 {
		c.Retention.TempMaxAgeHours = 6
	}
	if c.Retention.ArchiveTTLDays == 0 {
		c.Retention.ArchiveTTLDays = 30
	}
	if c.Format.MaxLineChars == 0 {
		c.Format.MaxLineChars = 60
	}
	if c.Format.LineGapSeconds == 0 {
		c.Format.LineGapSeconds = 0.8
	}
	if c.Format.StanzaGapSeconds == 0 {
		c.Format.StanzaGapSeconds = 2.5
	}
	if c.Format.UppercaseMinChars == 0 {
		c.Format.UppercaseMinChars = 18
	}
	if c.Format.UppercaseMinWords == 0 {
		c.Format.UppercaseMinWords = 4
	}
	if c.Format.RepeatThreshold == 0 {
		c.Format.RepeatThreshold = 2
	}
	if c.Storage.TempDir == "" {
		c.Storage.TempDir = "temp"
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = "outputs"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "lyrix.db"
	}
	if c.GoogleDrive.FolderName == "" {
		c.GoogleDrive.FolderName = "Lyrix"
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Limits.MaxFileSizeMB < 1 {
		return fmt.Errorf("max_file_size_mb must be positive")
	}
	if c.Limits.JobTimeoutSeconds < 1 {
		return fmt.Errorf("job_timeout_seconds must be positive")
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("worker count must be positive")
	}
	if c.Format.MaxLineChars < 1 {
		return fmt.Errorf("max_line_chars must be positive")
	}
	if c.Format.UppercaseMinChars < 1 || c.Format.UppercaseMinWords < 1 {
		return fmt.Errorf("uppercase break thresholds must be positive")
	}
	if c.Format.RepeatThreshold < 1 {
		return fmt.Errorf("repeat_threshold must be positive")
	}
	if c.Format.LineGapSeconds <= 0 || c.Format.StanzaGapSeconds <= 0 {
		return fmt.Errorf("format gap thresholds must be positive")
	}
	if c.Format.StanzaGapSeconds < c.Format.LineGapSeconds {
		return fmt.Errorf("stanza gap threshold must not be below line gap threshold")
	}
	return nil
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
