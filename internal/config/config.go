package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Anilist   APIConfig       `mapstructure:"anilist"`
	Bangumi   APIConfig       `mapstructure:"bangumi"`
	Mikan     APIConfig       `mapstructure:"mikan"`
	AI        AIConfig        `mapstructure:"ai"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug or release
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Proxy          string `mapstructure:"proxy"`
	UserAgent      string `mapstructure:"user_agent"`
}

// APIConfig 外部接口的地址与限速 (Rate 次 / WindowSeconds 秒)
type APIConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	Rate          int    `mapstructure:"rate"`
	WindowSeconds int    `mapstructure:"window_seconds"`
}

type AIConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type SchedulerConfig struct {
	DefaultCron string `mapstructure:"default_cron"`
}

var AppConfig *Config

// LoadConfig loads into AppConfig.
func LoadConfig(configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 默认值
	v.SetDefault("server.port", 8306)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.path", "data/animerss.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.proxy", "")
	v.SetDefault("http.user_agent", "pokerjest/animerss/1.0 (https://github.com/pokerjest/animerss)")

	v.SetDefault("anilist.endpoint", "https://graphql.anilist.co")
	v.SetDefault("anilist.rate", 90)
	v.SetDefault("anilist.window_seconds", 60)
	v.SetDefault("bangumi.endpoint", "https://api.bgm.tv")
	v.SetDefault("bangumi.rate", 10)
	v.SetDefault("bangumi.window_seconds", 1)
	v.SetDefault("mikan.rate", 5)
	v.SetDefault("mikan.window_seconds", 1)

	v.SetDefault("ai.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout_seconds", 30)

	v.SetDefault("scheduler.default_cron", "*/30 * * * *")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}

	// 环境变量替换 (使用 ANIME_ 前缀)
	// 比如 ANIME_SERVER_PORT=9090
	v.SetEnvPrefix("ANIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay, use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
