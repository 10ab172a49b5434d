package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coachdeck/livesync/internal/live/gateway"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`
	WebSocket struct {
		WriteTimeoutSec int   `yaml:"write_timeout_sec"`
		ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
		PingIntervalSec int   `yaml:"ping_interval_sec"`
		MaxMessageSize  int64 `yaml:"max_message_size"`
	} `yaml:"websocket"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the yaml config file. A missing file is not an error;
// defaults and env overrides cover everything.
func loadConfig(path string) (*Config, error) {
	var config Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// connectionConfig maps the file config onto the gateway's connection
// settings, keeping the gateway defaults for anything unset.
func connectionConfig(config *Config) gateway.ConnectionConfig {
	cc := gateway.DefaultConnectionConfig()
	if config.WebSocket.WriteTimeoutSec > 0 {
		cc.WriteTimeout = time.Duration(config.WebSocket.WriteTimeoutSec) * time.Second
	}
	if config.WebSocket.ReadTimeoutSec > 0 {
		cc.ReadTimeout = time.Duration(config.WebSocket.ReadTimeoutSec) * time.Second
	}
	if config.WebSocket.PingIntervalSec > 0 {
		cc.PingInterval = time.Duration(config.WebSocket.PingIntervalSec) * time.Second
	}
	if config.WebSocket.MaxMessageSize > 0 {
		cc.MaxMessageSize = config.WebSocket.MaxMessageSize
	}
	return cc
}
