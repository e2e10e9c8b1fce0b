package main

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

//go:embed config.yml
var defaultConfig []byte

const (
	configPathEnv = "SKRIPTHOST_CONFIG_PATH"

	modeEmbedded = "embedded"
	modeProcess  = "process"
	modeSocket   = "socket"
)

func envString(name string, value string) string {
	envString := os.Getenv(name)
	if envString == "" {
		return value
	}

	return envString
}

type logConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

type extensionConfig struct {
	Name            string        `mapstructure:"name"`
	Path            string        `mapstructure:"path"`
	Args            []string      `mapstructure:"args"`
	Socket          string        `mapstructure:"socket"`
	AcceptTimeout   time.Duration `mapstructure:"accept_timeout"`
	ReadyTimeout    time.Duration `mapstructure:"ready_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type config struct {
	Name      string          `mapstructure:"name"`
	Mode      string          `mapstructure:"mode"`
	Log       logConfig       `mapstructure:"log"`
	Extension extensionConfig `mapstructure:"extension"`
}

// loadConfig reads path over the embedded defaults, writing the defaults to
// path when the file does not exist yet.
func loadConfig(path string) (config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBuffer(defaultConfig)); err != nil {
		return config{}, fmt.Errorf("failed to read default config: %w", err)
	}

	if err := v.MergeInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := os.WriteFile(path, defaultConfig, 0644); err != nil {
			return config{}, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	switch cfg.Mode {
	case modeEmbedded:
	case modeProcess:
		if cfg.Extension.Path == "" {
			return config{}, errors.New("extension.path is required in process mode")
		}
	case modeSocket:
		if cfg.Extension.Socket == "" {
			return config{}, errors.New("extension.socket is required in socket mode")
		}
	default:
		return config{}, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if cfg.Name == "" || cfg.Extension.Name == "" {
		return config{}, errors.New("name and extension.name must be set")
	}

	return cfg, nil
}

func newLogger(cfg logConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		zapCfg.Level = level
	}

	return zapCfg.Build()
}
