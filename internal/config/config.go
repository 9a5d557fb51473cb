package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Alturino/fitclub/internal/log"
)

type Application struct {
	Env     string `mapstructure:"env"      json:"env"`
	Host    string `mapstructure:"host"     json:"host"`
	LogPath string `mapstructure:"log_path" json:"log_path"`
	Port    int    `mapstructure:"port"     json:"port"`
}

type Backend struct {
	BaseURL string        `mapstructure:"base_url" json:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"  json:"timeout"`
	// consecutive failures before the circuit opens
	MaxFailures uint32        `mapstructure:"max_failures" json:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" json:"open_timeout"`
}

type Session struct {
	CookieName      string        `mapstructure:"cookie_name"      json:"cookie_name"`
	CookieSecure    bool          `mapstructure:"cookie_secure"    json:"cookie_secure"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" json:"refresh_interval"`
	TTL             time.Duration `mapstructure:"ttl"              json:"ttl"`
}

type Cart struct {
	TTL             time.Duration `mapstructure:"ttl"              json:"ttl"`
	DefaultCurrency string        `mapstructure:"default_currency" json:"default_currency"`
}

type Database struct {
	Name           string `mapstructure:"name"            json:"name"`
	Host           string `mapstructure:"host"            json:"host"`
	MigrationPath  string `mapstructure:"migration_path"  json:"migration_path"`
	Password       string `mapstructure:"password"        json:"-"`
	Username       string `mapstructure:"username"        json:"username"`
	MaxConnections int32  `mapstructure:"max_connections" json:"max_connections"`
	MinConnections int32  `mapstructure:"min_connections" json:"min_connections"`
	Port           uint16 `mapstructure:"port"            json:"port"`
}

type Cache struct {
	Host     string `mapstructure:"host"     json:"host"`
	Password string `mapstructure:"password" json:"-"`
	Database int    `mapstructure:"database" json:"database"`
	Port     uint16 `mapstructure:"port"     json:"port"`
}

type Otel struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
}

type Youtube struct {
	ChannelID string        `mapstructure:"channel_id" json:"channel_id"`
	FeedURL   string        `mapstructure:"feed_url"   json:"feed_url"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"  json:"cache_ttl"`
	Timeout   time.Duration `mapstructure:"timeout"    json:"timeout"`
}

type Supabase struct {
	URL     string `mapstructure:"url"      json:"url"`
	AnonKey string `mapstructure:"anon_key" json:"anon_key"`
}

type Config struct {
	Application `mapstructure:"application" json:"application"`
	Backend     `mapstructure:"backend"     json:"backend"`
	Session     `mapstructure:"session"     json:"session"`
	Cart        `mapstructure:"cart"        json:"cart"`
	Database    `mapstructure:"db"          json:"db"`
	Cache       `mapstructure:"cache"       json:"cache"`
	Otel        `mapstructure:"otel"        json:"otel"`
	Youtube     `mapstructure:"youtube"     json:"youtube"`
	Supabase    `mapstructure:"supabase"    json:"supabase"`
}

var (
	once   sync.Once
	config *Config
)

func setDefaults() {
	viper.SetDefault("application.env", "production")
	viper.SetDefault("application.host", "0.0.0.0")
	viper.SetDefault("application.port", 8080)
	viper.SetDefault("application.log_path", "/var/log/fitclub.log")
	viper.SetDefault("backend.timeout", 30*time.Second)
	viper.SetDefault("backend.max_failures", 5)
	viper.SetDefault("backend.open_timeout", 30*time.Second)
	viper.SetDefault("session.cookie_name", "fitclub_session")
	viper.SetDefault("session.refresh_interval", 15*time.Minute)
	viper.SetDefault("session.ttl", 30*24*time.Hour)
	viper.SetDefault("cart.ttl", 7*24*time.Hour)
	viper.SetDefault("cart.default_currency", "CLP")
	viper.SetDefault("db.migration_path", "file://migrations")
	viper.SetDefault("db.max_connections", 10)
	viper.SetDefault("db.min_connections", 2)
	viper.SetDefault("youtube.feed_url", "https://www.youtube.com/feeds/videos.xml")
	viper.SetDefault("youtube.cache_ttl", 10*time.Minute)
	viper.SetDefault("youtube.timeout", 10*time.Second)
}

func InitConfig(c context.Context, filename string) *Config {
	once.Do(func() {
		cfg := Config{}
		logger := zerolog.Ctx(c).
			With().
			Str(log.KeyTag, "main InitConfig").
			Str(log.KeyProcess, "init config").
			Str("filename", filename).
			Logger()

		setDefaults()
		viper.SetConfigName(filename)
		viper.AddConfigPath("./env")
		viper.SetConfigType("yaml")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		logger = logger.With().Str(log.KeyProcess, "reading config").Logger()
		logger.Info().Msg("reading config")
		err := viper.ReadInConfig()
		if err != nil {
			err = fmt.Errorf("error when reading config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		logger.Info().Msg("read config")

		logger = logger.With().Str(log.KeyProcess, "unmarshaling config").Logger()
		logger.Info().Msg("unmarshaling config")
		err = viper.Unmarshal(&cfg)
		if err != nil {
			err = fmt.Errorf("error unmarshaling config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		config = &cfg
		logger = logger.With().Any(log.KeyConfig, cfg).Logger()
		logger.Info().Msg("unmarshalled config")
	})
	return config
}
