package config

import (
	"net"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8000" validate:"min=1000,max=65535"`
	GinMode        string `env:"GIN_MODE"         envDefault:"release" validate:"oneof=debug release test"`
	StaticDir      string `env:"STATIC_DIR"       envDefault:"public"  validate:"required"`

	// DatabaseURL wins over the individual Postgres fields when set.
	DatabaseURL      string `env:"DATABASE_URL"`
	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"chat_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"chat_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"chat_db"`

	RedisEnabled  bool          `env:"REDIS_ENABLED"  envDefault:"false"`
	RedisHost     string        `env:"REDIS_HOST"     envDefault:"localhost"`
	RedisPort     uint16        `env:"REDIS_PORT"     envDefault:"6379" validate:"min=1000,max=65535"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB"       envDefault:"0"    validate:"min=0,max=15"`
	NameCacheTTL  time.Duration `env:"NAME_CACHE_TTL" envDefault:"10m" validate:"gt=0"`

	HistoryLimit  int           `env:"HISTORY_LIMIT"   envDefault:"50"       validate:"min=1,max=1000"`
	MaxImageBytes int64         `env:"MAX_IMAGE_BYTES" envDefault:"26214400" validate:"min=1"`
	WsReadLimit   int64         `env:"WS_READ_LIMIT"   envDefault:"33554432" validate:"gtefield=MaxImageBytes"`
	AuthTimeout   time.Duration `env:"AUTH_TIMEOUT"    envDefault:"10s"      validate:"gt=0"`
}

// PostgresDSN returns the connection string handed to the pgx driver.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   net.JoinHostPort(c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDb,
	}
	return u.String()
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
