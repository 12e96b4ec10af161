package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/GintGld/livedash/internal/models"
)

type Config struct {
	Env        string `yaml:"env" json:"env" env:"ENV" env-default:"local"`
	HTTPServer `yaml:"http_server" json:"http_server"`
	Dash       `yaml:"dash" json:"dash"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" json:"address" env:"HTTP_ADDRESS" env-default:"127.0.0.1:51100"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" env:"HTTP_TIMEOUT" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type Dash struct {
	DataDir              string        `yaml:"data_dir" json:"data_dir" env:"DASH_DATA_DIR" env-required:"true"`
	SegmentDuration      int           `yaml:"segment_duration" json:"segment_duration" env:"DASH_SEGMENT_DURATION" env-required:"true"`
	Timescale            int64         `yaml:"timescale" json:"timescale" env:"DASH_TIMESCALE" env-required:"true"`
	MinimumUpdatePeriod  time.Duration `yaml:"minimum_update_period" json:"minimum_update_period" env:"DASH_MINIMUM_UPDATE_PERIOD" env-default:"3m"`
	MinBufferTime        time.Duration `yaml:"min_buffer_time" json:"min_buffer_time" env:"DASH_MIN_BUFFER_TIME" env-default:"4s"`
	TimeShiftBufferDepth time.Duration `yaml:"time_shift_buffer_depth" json:"time_shift_buffer_depth" env:"DASH_TIME_SHIFT_BUFFER_DEPTH" env-default:"3m"`
	MaxSegmentDuration   time.Duration `yaml:"max_segment_duration" json:"max_segment_duration" env:"DASH_MAX_SEGMENT_DURATION" env-default:"2s"`
	UTCTimingURL         string        `yaml:"utc_timing_url" json:"utc_timing_url" env:"DASH_UTC_TIMING_URL"`
}

// MustLoad loads config from the file given by
// flag or env, or from environment only.
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		return MustLoadEnv()
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}

	return &cfg
}

func MustLoadEnv() *Config {
	var cfg Config

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		panic("cannot read config from env: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}

	return &cfg
}

// Validate checks values cleanenv can't check.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("dash.data_dir is empty"))
	}
	if c.SegmentDuration <= 0 {
		errs = append(errs, fmt.Errorf("dash.segment_duration must be positive, got %d", c.SegmentDuration))
	}
	if c.Timescale <= 0 {
		errs = append(errs, fmt.Errorf("dash.timescale must be positive, got %d", c.Timescale))
	}
	if c.TimeShiftBufferDepth < 0 {
		errs = append(errs, fmt.Errorf("dash.time_shift_buffer_depth is negative"))
	}

	return errors.Join(errs...)
}

// StreamConfig returns settings shared by all streams.
func (c *Config) StreamConfig() models.StreamConfig {
	return models.StreamConfig{
		DataDir:              c.DataDir,
		SegmentDuration:      c.SegmentDuration,
		Timescale:            c.Timescale,
		MinimumUpdatePeriod:  c.MinimumUpdatePeriod,
		MinBufferTime:        c.MinBufferTime,
		TimeShiftBufferDepth: c.TimeShiftBufferDepth,
		MaxSegmentDuration:   c.MaxSegmentDuration,
		UTCTimingURL:         c.UTCTimingURL,
	}
}

// fetchConfigPath fetches config path from command line flag or environment variable.
// Priority: flag > env > default.
// Default value is empty string.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
