package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Crypto     CryptoConfig     `mapstructure:"crypto"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Directory  DirectoryConfig  `mapstructure:"directory"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Log        LogConfig        `mapstructure:"log"`
	Migrations MigrationsConfig `mapstructure:"migrations"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Conn         string        `mapstructure:"conn"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
}

type CryptoConfig struct {
	BidEncryptionKey string `mapstructure:"bid_encryption_key"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DirectoryConfig points at a JSON seed used when Redis is not configured.
type DirectoryConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MigrationsConfig struct {
	Auto bool `mapstructure:"auto"`
}

// Load reads an optional .env, then config.yaml from ./configs or ., then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setDefaults(v)
	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0:8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.timeout", 5*time.Second)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("migrations.auto", true)
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("server.address", "SERVER_ADDRESS")
	v.BindEnv("server.shutdown_timeout", "SHUTDOWN_TIMEOUT")

	v.BindEnv("database.conn", "POSTGRES_CONN")
	v.BindEnv("database.timeout", "STORE_TIMEOUT")

	v.BindEnv("crypto.bid_encryption_key", "BID_ENCRYPTION_KEY")

	v.BindEnv("jwt.secret", "JWT_SECRET")

	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	v.BindEnv("directory.seed_file", "DIRECTORY_SEED_FILE")

	v.BindEnv("nats.url", "NATS_URL")

	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")

	v.BindEnv("migrations.auto", "RUN_MIGRATIONS")
}

// Validate rejects a configuration the server cannot safely start with.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.Conn == "" {
		missing = append(missing, "POSTGRES_CONN")
	}
	if c.Crypto.BidEncryptionKey == "" {
		missing = append(missing, "BID_ENCRYPTION_KEY")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Database.Timeout < 0 {
		return fmt.Errorf("STORE_TIMEOUT must not be negative")
	}
	return nil
}
