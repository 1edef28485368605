package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type MediaConfig struct {
	IdealWidth     int     `mapstructure:"ideal_width"`
	IdealHeight    int     `mapstructure:"ideal_height"`
	IdealFrameRate float64 `mapstructure:"ideal_framerate"`
}

type Config struct {
	APIBaseURL   string        `mapstructure:"api_base_url"`
	Room         string        `mapstructure:"room"`
	Role         string        `mapstructure:"role"`
	MarkerPath   string        `mapstructure:"marker_path"`
	RecordingDir string        `mapstructure:"recording_dir"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	Media        MediaConfig   `mapstructure:"media"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("api_base_url", "http://localhost:6080")
	v.SetDefault("role", "broadcaster")
	v.SetDefault("marker_path", "./livecast.db")
	v.SetDefault("recording_dir", "./recordings")
	v.SetDefault("http_timeout", "10s")
	v.SetDefault("media.ideal_width", 1920)
	v.SetDefault("media.ideal_height", 1080)
	v.SetDefault("media.ideal_framerate", 30)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
