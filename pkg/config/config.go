package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Wizard    WizardConfig
	Datasets  DatasetsConfig
	Runs      RunsConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	JudgeModel  string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

// WizardConfig drives the step registry and where the wizard record lives.
type WizardConfig struct {
	Steps          []string
	MetadataKey    string
	RemoteTTLHours int
}

type DatasetsConfig struct {
	MaxUploadBytes int
	PreviewRows    int
}

type RunsConfig struct {
	HistoryLimit int
}

type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerMinute int
}

type SecurityConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/eval-wizard")

	viper.SetEnvPrefix("EVAL_WIZARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.SQLite.Path == "" {
		return fmt.Errorf("sqlite path is required")
	}
	if len(c.Wizard.Steps) == 0 {
		return fmt.Errorf("wizard steps must not be empty")
	}
	if c.Wizard.MetadataKey == "" {
		return fmt.Errorf("wizard metadata key is required")
	}
	if c.Datasets.MaxUploadBytes <= 0 {
		return fmt.Errorf("datasets max upload size must be positive")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 20971520)

	viper.SetDefault("sqlite.path", "./data/evaluations.db")

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.judgeModel", "gpt-4")
	viper.SetDefault("llm.temperature", 0.0)
	viper.SetDefault("llm.maxTokens", 512)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("wizard.steps", []string{
		"Select Dataset",
		"Select Model",
		"Configure Metrics",
		"Review",
		"Success",
	})
	viper.SetDefault("wizard.metadataKey", "evaluationMetadata")
	viper.SetDefault("wizard.remoteTTLHours", 0)

	viper.SetDefault("datasets.maxUploadBytes", 10485760)
	viper.SetDefault("datasets.previewRows", 20)

	viper.SetDefault("runs.historyLimit", 100)

	viper.SetDefault("rateLimit.enabled", true)
	viper.SetDefault("rateLimit.maxRequestsPerMinute", 300)

	viper.SetDefault("security.allowedOrigins", []string{"http://localhost:3000"})
	viper.SetDefault("security.isDevelopment", true)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
