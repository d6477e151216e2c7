package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	LiveKit   LiveKitConfig   `mapstructure:"livekit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Client    ClientConfig    `mapstructure:"client"`
}

// RateLimitConfig bounds token requests per browser cookie.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LiveKitConfig holds token signing settings. Empty key or secret makes the
// token endpoint answer 500.
type LiveKitConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	WSURL     string        `mapstructure:"ws_url"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// RedisConfig enables cross-instance room fan-out when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ClientConfig struct {
	ServerURL         string        `mapstructure:"server_url"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	AutoFocus         bool          `mapstructure:"auto_focus"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	NameFile          string        `mapstructure:"name_file"`
	LogFile           string        `mapstructure:"log_file"`
	// DisabledDevices lists track kinds the user refused access to.
	DisabledDevices []string `mapstructure:"disabled_devices"`
}

const DefaultLiveKitURL = "wss://your-livekit-server.com"

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

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

	setDefaults(v)

	v.SetEnvPrefix("ROOMVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the names the original token server used
	_ = v.BindEnv("livekit.api_key", "ROOMVIEW_LIVEKIT_API_KEY", "LIVEKIT_API_KEY")
	_ = v.BindEnv("livekit.api_secret", "ROOMVIEW_LIVEKIT_API_SECRET", "LIVEKIT_API_SECRET")
	_ = v.BindEnv("livekit.ws_url", "ROOMVIEW_LIVEKIT_WS_URL", "LIVEKIT_WS_URL")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("server_url", cfg.Client.ServerURL).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "roomview-dev-secret")
	v.SetDefault("log_level", "info")

	v.SetDefault("rate_limit.requests", 20)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("livekit.api_key", "")
	v.SetDefault("livekit.api_secret", "")
	v.SetDefault("livekit.ws_url", DefaultLiveKitURL)
	v.SetDefault("livekit.token_ttl", "6h")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("client.server_url", "http://localhost:8080")
	v.SetDefault("client.reconcile_interval", "3s")
	v.SetDefault("client.settle_delay", "500ms")
	v.SetDefault("client.auto_focus", false)
	v.SetDefault("client.reconnect_attempts", 5)
	v.SetDefault("client.name_file", "")
	v.SetDefault("client.log_file", "roomview-client.log")
	v.SetDefault("client.disabled_devices", []string{})
}
