package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type TransferConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	TokenURL         string        `mapstructure:"token_url"`
	ClientID         string        `mapstructure:"client_id"`
	ClientSecret     string        `mapstructure:"client_secret"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	TickBudget       time.Duration `mapstructure:"tick_budget"`
	PageSize         int           `mapstructure:"page_size"`
}

type EmailConfig struct {
	From        string        `mapstructure:"from"`
	SMTPHost    string        `mapstructure:"smtp_host"`
	SMTPPort    int           `mapstructure:"smtp_port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type Config struct {
	DatabaseURL string         `mapstructure:"database_url"`
	ServerPort  string         `mapstructure:"server_port"`
	JWTSecret   string         `mapstructure:"jwt_secret"`
	Transfer    TransferConfig `mapstructure:"transfer"`
	Email       EmailConfig    `mapstructure:"email"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}

	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}

	if config.Transfer.BaseURL == "" {
		log.Fatal("Transfer API base_url must be set in the config file")
	}
	if config.Transfer.TokenURL == "" {
		log.Fatal("Transfer API token_url must be set in the config file")
	}
	if config.Transfer.PollInterval <= 0 {
		config.Transfer.PollInterval = 15 * time.Second
	}
	if config.Transfer.FetchConcurrency <= 0 {
		config.Transfer.FetchConcurrency = 4
	}
	if config.Transfer.RequestTimeout <= 0 {
		config.Transfer.RequestTimeout = 5 * time.Second
	}
	if config.Transfer.TickBudget <= 0 {
		config.Transfer.TickBudget = 30 * time.Second
	}
	if config.Transfer.PageSize <= 0 {
		config.Transfer.PageSize = 100
	}

	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}
	if config.Email.SendTimeout <= 0 {
		config.Email.SendTimeout = 10 * time.Second
	}

	return &config
}
