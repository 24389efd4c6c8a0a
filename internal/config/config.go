package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Relay  RelayConfig  `yaml:"relay"`
}

type ServerConfig struct {
	Host           string   `yaml:"host" env:"RELAY_HOST"`
	Port           int      `yaml:"port" env:"RELAY_PORT"`
	AuthToken      string   `yaml:"auth_token" env:"RELAY_AUTH_TOKEN"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"RELAY_ALLOWED_ORIGINS" envSeparator:","`
}

type RelayConfig struct {
	CommandQueueSize int `yaml:"command_queue_size" env:"RELAY_COMMAND_QUEUE_SIZE"`
	BusCapacity      int `yaml:"bus_capacity" env:"RELAY_BUS_CAPACITY"`
	MailboxCapacity  int `yaml:"mailbox_capacity" env:"RELAY_MAILBOX_CAPACITY"`
}

// Load builds the config from defaults, then the yaml file at path (if
// path is non-empty), then RELAY_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: 3000,
			Host: "127.0.0.1",
		},
		Relay: RelayConfig{
			CommandQueueSize: 100,
			BusCapacity:      100,
			MailboxCapacity:  16,
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
