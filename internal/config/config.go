package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	LogPretty  bool          `mapstructure:"log_pretty"`

	Chat      ChatConfig      `mapstructure:"chat"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	WebRTC    WebRTCConfig    `mapstructure:"webrtc"`
}

type ChatConfig struct {
	HistoryLimit int `mapstructure:"history_limit"`
	MaxLength    int `mapstructure:"max_length"`
}

type LimitsConfig struct {
	JoinPerInterval int           `mapstructure:"join_per_interval"`
	ChatPerInterval int           `mapstructure:"chat_per_interval"`
	Interval        time.Duration `mapstructure:"interval"`
}

type DirectoryConfig struct {
	// Backend is auto, redis or memory. auto pings redis once at startup.
	Backend   string        `mapstructure:"backend"`
	SocketTTL time.Duration `mapstructure:"socket_ttl"`
	Redis     RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Prefix      string        `mapstructure:"prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Required  bool   `mapstructure:"required"`
}

type WebRTCConfig struct {
	ICEServers []string `mapstructure:"ice_servers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 1066)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", true)

	v.SetDefault("chat.history_limit", 100)
	v.SetDefault("chat.max_length", 2000)

	v.SetDefault("limits.join_per_interval", 10)
	v.SetDefault("limits.chat_per_interval", 30)
	v.SetDefault("limits.interval", "10s")

	v.SetDefault("directory.backend", "auto")
	v.SetDefault("directory.socket_ttl", "24h")
	v.SetDefault("directory.redis.addr", "127.0.0.1:6379")
	v.SetDefault("directory.redis.prefix", "meet")
	v.SetDefault("directory.redis.dial_timeout", "2s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "meet.db")

	v.SetDefault("auth.required", false)

	v.SetDefault("webrtc.ice_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})
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

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("directory", cfg.Directory.Backend).
		Str("database", cfg.Database.Driver).
		Msg("config ready")
	return &cfg, nil
}
