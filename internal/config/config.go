package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Store    StoreConfig    `yaml:"store"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Auth     AuthConfig     `yaml:"auth"`
	Console  ConsoleConfig  `yaml:"console"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

type StoreConfig struct {
	Port int `yaml:"port"`
}

type DispatchConfig struct {
	Port int `yaml:"port"`
}

type AuthConfig struct {
	Secret        string        `yaml:"secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	AdminPassword string        `yaml:"admin_password"`
}

type ConsoleConfig struct {
	StateDir     string        `yaml:"state_dir"`
	StoreURL     string        `yaml:"store_url"`
	DispatchURL  string        `yaml:"dispatch_url"`
	RefreshEvery time.Duration `yaml:"refresh_every"`
}

func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldnt open the file for the configuration: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Port == 0 {
		c.Store.Port = 3000
	}
	if c.Dispatch.Port == 0 {
		c.Dispatch.Port = 3001
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 15 * time.Minute
	}
	if c.Console.RefreshEvery == 0 {
		c.Console.RefreshEvery = 10 * time.Minute
	}
	if c.Console.StateDir == "" {
		c.Console.StateDir = "./state"
	}
	if c.RabbitMQ.VHost == "" {
		c.RabbitMQ.VHost = "/"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Secrets never have to live in config.yaml; env wins when set.
func (c *Config) applyEnv() {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		c.RabbitMQ.Password = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		c.Auth.AdminPassword = v
	}
}
