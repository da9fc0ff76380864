package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Realtime  RealtimeConfig
	JWT       JWTConfig
	Sync      SyncConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

// BackendConfig points at the persistence layer's REST surface. Row-level
// resources (messages, channel_messages, direct_messages, player_devices,
// channels, channel_subscriptions) live under BaseURL.
type BackendConfig struct {
	BaseURL        string
	AnonKey        string
	RequestTimeout time.Duration
}

// RealtimeConfig describes the MQTT broker carrying row-insert events.
type RealtimeConfig struct {
	Broker               string
	ClientID             string
	Username             string
	Password             string
	QoS                  byte
	KeepAlive            int
	ConnectTimeout       int
	AutoReconnect        bool
	MaxReconnectInterval time.Duration
	TopicPrefix          string
}

type JWTConfig struct {
	Secret string
}

// SyncConfig tunes history loads and reconnect reconciliation.
type SyncConfig struct {
	HistoryLimit       int
	ResyncOnReconnect  bool
	StaleLocationAfter time.Duration
}

type RateLimitConfig struct {
	GeneralRPS   float64
	GeneralBurst int
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(homeDir)
	}
	viper.AutomaticEnv()

	viper.SetDefault("BACKEND_TIMEOUT_SECONDS", 15)
	viper.SetDefault("REALTIME_QOS", 1)
	viper.SetDefault("REALTIME_KEEPALIVE", 30)
	viper.SetDefault("REALTIME_CONNECT_TIMEOUT", 10)
	viper.SetDefault("REALTIME_AUTO_RECONNECT", true)
	viper.SetDefault("REALTIME_MAX_RECONNECT_SECONDS", 60)
	viper.SetDefault("REALTIME_TOPIC_PREFIX", "rt")
	viper.SetDefault("SYNC_HISTORY_LIMIT", 50)
	viper.SetDefault("SYNC_RESYNC_ON_RECONNECT", true)
	viper.SetDefault("SYNC_STALE_LOCATION_MINUTES", 10)

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Printf("Warning: config file not found: %v. Falling back to environment variables only.", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("SERVER_PORT"),
			Host:        viper.GetString("SERVER_HOST"),
			Environment: viper.GetString("ENVIRONMENT"),
		},
		Backend: BackendConfig{
			BaseURL:        viper.GetString("BACKEND_BASE_URL"),
			AnonKey:        viper.GetString("BACKEND_ANON_KEY"),
			RequestTimeout: time.Duration(viper.GetInt("BACKEND_TIMEOUT_SECONDS")) * time.Second,
		},
		Realtime: RealtimeConfig{
			Broker:               viper.GetString("REALTIME_BROKER"),
			ClientID:             viper.GetString("REALTIME_CLIENT_ID"),
			Username:             viper.GetString("REALTIME_USERNAME"),
			Password:             viper.GetString("REALTIME_PASSWORD"),
			QoS:                  byte(viper.GetInt("REALTIME_QOS")),
			KeepAlive:            viper.GetInt("REALTIME_KEEPALIVE"),
			ConnectTimeout:       viper.GetInt("REALTIME_CONNECT_TIMEOUT"),
			AutoReconnect:        viper.GetBool("REALTIME_AUTO_RECONNECT"),
			MaxReconnectInterval: time.Duration(viper.GetInt("REALTIME_MAX_RECONNECT_SECONDS")) * time.Second,
			TopicPrefix:          viper.GetString("REALTIME_TOPIC_PREFIX"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		Sync: SyncConfig{
			HistoryLimit:       viper.GetInt("SYNC_HISTORY_LIMIT"),
			ResyncOnReconnect:  viper.GetBool("SYNC_RESYNC_ON_RECONNECT"),
			StaleLocationAfter: time.Duration(viper.GetInt("SYNC_STALE_LOCATION_MINUTES")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			GeneralRPS:   viper.GetFloat64("RATE_LIMIT_GENERAL_RPS"),
			GeneralBurst: viper.GetInt("RATE_LIMIT_GENERAL_BURST"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   viper.GetStringSlice("CORS_ALLOWED_ORIGINS"),
			AllowedMethods:   viper.GetStringSlice("CORS_ALLOWED_METHODS"),
			AllowedHeaders:   viper.GetStringSlice("CORS_ALLOWED_HEADERS"),
			ExposedHeaders:   viper.GetStringSlice("CORS_EXPOSED_HEADERS"),
			AllowCredentials: viper.GetBool("CORS_ALLOW_CREDENTIALS"),
			MaxAge:           viper.GetInt("CORS_MAX_AGE"),
		},
	}

	return config, nil
}
