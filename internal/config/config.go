package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	SMS        SMSConfig        `mapstructure:"sms"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Escalation EscalationConfig `mapstructure:"escalation"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	AckBaseURL     string        `mapstructure:"ack_base_url"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SMSConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	AccountID    string        `mapstructure:"account_id"`
	Token        string        `mapstructure:"token"`
	From         string        `mapstructure:"from"`
	PerOrgLimit  int           `mapstructure:"per_org_limit"`
	PerOrgWindow time.Duration `mapstructure:"per_org_window"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

type DispatcherConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	Concurrency  int           `mapstructure:"concurrency"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type EscalationConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	GraceWindow  time.Duration `mapstructure:"grace_window"`
	BatchSize    int           `mapstructure:"batch_size"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.rate_limit_rps", 100)
	viper.SetDefault("server.rate_limit_burst", 200)
	viper.SetDefault("dispatcher.poll_interval", 15*time.Second)
	viper.SetDefault("dispatcher.send_timeout", 30*time.Second)
	viper.SetDefault("dispatcher.max_attempts", 3)
	viper.SetDefault("dispatcher.backoff_base", time.Second)
	viper.SetDefault("scheduler.poll_interval", time.Hour)
	viper.SetDefault("scheduler.batch_size", 500)
	viper.SetDefault("escalation.poll_interval", time.Minute)
	viper.SetDefault("escalation.grace_window", 4*time.Hour)
	viper.SetDefault("sms.per_org_limit", 60)
	viper.SetDefault("sms.per_org_window", time.Minute)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
