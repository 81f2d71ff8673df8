package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	LogFile     string           `mapstructure:"log_file"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Telegram    TelegramConfig   `mapstructure:"telegram"`
	Processing  ProcessingConfig `mapstructure:"processing"`
	Detector    DetectorConfig   `mapstructure:"detector"`
	Risk        RiskConfig       `mapstructure:"risk"`
	Covariance  CovarianceConfig `mapstructure:"covariance"`
	Replay      ReplayConfig     `mapstructure:"replay"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelegramConfig struct {
	BotToken        string  `mapstructure:"bot_token"`
	ChatID          int64   `mapstructure:"chat_id"`
	AlertsPerMinute float64 `mapstructure:"alerts_per_minute"`
}

// ProcessingConfig mirrors models.ProcessingConfig at the configuration
// surface; values are converted in cmd wiring.
type ProcessingConfig struct {
	MaxLatencyDeltaMs       int64   `mapstructure:"max_latency_delta_ms"`
	MinConfidence           float64 `mapstructure:"min_confidence"`
	MinCorrelation          float64 `mapstructure:"min_correlation"`
	MaxPositionSize         float64 `mapstructure:"max_position_size"`
	EnableExecution         bool    `mapstructure:"enable_execution"`
	JoinStrategy            string  `mapstructure:"join_strategy"`
	ExecutionTimeoutSeconds int     `mapstructure:"execution_timeout_seconds"`
}

type DetectorConfig struct {
	ZScoreThreshold     float64 `mapstructure:"z_score_threshold"`
	MinEdgePercent      float64 `mapstructure:"min_edge_percent"`
	MaxTailRisk         float64 `mapstructure:"max_tail_risk"`
	MinConfidence       float64 `mapstructure:"min_confidence"`
	MinCorrelation      float64 `mapstructure:"min_correlation"`
	BaseStake           float64 `mapstructure:"base_stake"`
	DefaultTimeWeight   float64 `mapstructure:"default_time_weight"`
	GameDurationSeconds float64 `mapstructure:"game_duration_seconds"`
}

type RiskConfig struct {
	BaseStake   float64 `mapstructure:"base_stake"`
	MaxTailRisk float64 `mapstructure:"max_tail_risk"`
	MaxBankroll float64 `mapstructure:"max_bankroll"`
}

type CovarianceConfig struct {
	WindowSize  int `mapstructure:"window_size"`
	MinSamples  int `mapstructure:"min_samples"`
	SeedSamples int `mapstructure:"seed_samples"`
}

// ReplayConfig drives an optional startup replay of stored paired history
// through the pipeline. Replay runs only when GameID is set.
type ReplayConfig struct {
	GameID        string `mapstructure:"game_id"`
	PrimaryMarket string `mapstructure:"primary_market"`
	HedgeMarket   string `mapstructure:"hedge_market"`
	Sport         string `mapstructure:"sport"`
	SampleLimit   int    `mapstructure:"sample_limit"`
	TickDelayMs   int    `mapstructure:"tick_delay_ms"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Processing.MaxLatencyDeltaMs <= 0 {
		return fmt.Errorf("processing.max_latency_delta_ms must be positive, got %d", c.Processing.MaxLatencyDeltaMs)
	}
	if c.Processing.MinConfidence < 0 || c.Processing.MinConfidence > 1 {
		return fmt.Errorf("processing.min_confidence must be in [0, 1], got %f", c.Processing.MinConfidence)
	}
	if c.Processing.MinCorrelation < 0 || c.Processing.MinCorrelation > 1 {
		return fmt.Errorf("processing.min_correlation must be in [0, 1], got %f", c.Processing.MinCorrelation)
	}
	switch c.Processing.JoinStrategy {
	case "lockstep", "buffered":
	default:
		return fmt.Errorf("processing.join_strategy must be lockstep or buffered, got %q", c.Processing.JoinStrategy)
	}
	if c.Covariance.MinSamples < 2 {
		return fmt.Errorf("covariance.min_samples must be at least 2, got %d", c.Covariance.MinSamples)
	}
	if c.Covariance.WindowSize < c.Covariance.MinSamples {
		return fmt.Errorf("covariance.window_size (%d) must be >= covariance.min_samples (%d)",
			c.Covariance.WindowSize, c.Covariance.MinSamples)
	}
	if c.Replay.GameID != "" && (c.Replay.PrimaryMarket == "" || c.Replay.HedgeMarket == "") {
		return fmt.Errorf("replay.primary_market and replay.hedge_market are required when replay.game_id is set")
	}
	return nil
}

// MaxPositionSizeDecimal returns the configured cap as a decimal amount.
func (c *Config) MaxPositionSizeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.Processing.MaxPositionSize)
}

// ExecutionTimeout returns the execution delegate timeout as a duration.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Processing.ExecutionTimeoutSeconds) * time.Second
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_file", "")

	viper.SetDefault("server.port", 8080)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "syntharb")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", 0)
	viper.SetDefault("telegram.alerts_per_minute", 6.0)

	viper.SetDefault("processing.max_latency_delta_ms", 500)
	viper.SetDefault("processing.min_confidence", 0.7)
	viper.SetDefault("processing.min_correlation", 0.7)
	viper.SetDefault("processing.max_position_size", 25000.0)
	viper.SetDefault("processing.enable_execution", false)
	viper.SetDefault("processing.join_strategy", "lockstep")
	viper.SetDefault("processing.execution_timeout_seconds", 5)

	viper.SetDefault("detector.z_score_threshold", 2.5)
	viper.SetDefault("detector.min_edge_percent", 0.005)
	viper.SetDefault("detector.max_tail_risk", 5.0)
	viper.SetDefault("detector.min_confidence", 0.7)
	viper.SetDefault("detector.min_correlation", 0.7)
	viper.SetDefault("detector.base_stake", 1000.0)
	viper.SetDefault("detector.default_time_weight", 0.28)
	viper.SetDefault("detector.game_duration_seconds", 2880.0)

	viper.SetDefault("risk.base_stake", 1000.0)
	viper.SetDefault("risk.max_tail_risk", 5.0)
	viper.SetDefault("risk.max_bankroll", 100000.0)

	viper.SetDefault("covariance.window_size", 120)
	viper.SetDefault("covariance.min_samples", 30)
	viper.SetDefault("covariance.seed_samples", 60)

	viper.SetDefault("replay.game_id", "")
	viper.SetDefault("replay.primary_market", "")
	viper.SetDefault("replay.hedge_market", "")
	viper.SetDefault("replay.sport", "basketball")
	viper.SetDefault("replay.sample_limit", 500)
	viper.SetDefault("replay.tick_delay_ms", 0)
}
