package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shrek82/jormx/logger"
	"github.com/shrek82/jormx/proxy"
)

// Config is the file/env configuration of an application using jormx.
type Config struct {
	DB    DBConfig      `mapstructure:"db"`
	Proxy ProxyConfig   `mapstructure:"proxy"`
	Log   logger.Config `mapstructure:"log"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type ProxyConfig struct {
	proxy.Config `mapstructure:",squash"`
	Redis        RedisConfig `mapstructure:"redis"`
}

// RedisConfig enables the shared proxy artifact cache when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DB: DBConfig{Driver: "sqlite3", DSN: ":memory:"},
		Proxy: ProxyConfig{
			Config: proxy.Config{
				Dir:     filepath.Join(os.TempDir(), "jormx-proxies"),
				Package: "proxies",
			},
			Redis: RedisConfig{Prefix: "jormx:proxy:"},
		},
		Log: logger.Config{Level: "info", Format: "text"},
	}
}

// Load reads path (yaml, toml or json) over the defaults. Environment
// variables prefixed JORM_ override file values, e.g. JORM_PROXY_DIR.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("JORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not exist, configPath=%v: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// defaults are registered key by key so AutomaticEnv can see every key.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("db.driver", cfg.DB.Driver)
	v.SetDefault("db.dsn", cfg.DB.DSN)
	v.SetDefault("db.max_open_conns", cfg.DB.MaxOpenConns)
	v.SetDefault("db.max_idle_conns", cfg.DB.MaxIdleConns)
	v.SetDefault("db.conn_max_lifetime", cfg.DB.ConnMaxLifetime)
	v.SetDefault("proxy.dir", cfg.Proxy.Dir)
	v.SetDefault("proxy.package", cfg.Proxy.Package)
	v.SetDefault("proxy.import_path", cfg.Proxy.ImportPath)
	v.SetDefault("proxy.auto_generate", cfg.Proxy.AutoGenerate)
	v.SetDefault("proxy.redis.addr", cfg.Proxy.Redis.Addr)
	v.SetDefault("proxy.redis.password", cfg.Proxy.Redis.Password)
	v.SetDefault("proxy.redis.db", cfg.Proxy.Redis.DB)
	v.SetDefault("proxy.redis.prefix", cfg.Proxy.Redis.Prefix)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size", cfg.Log.MaxSize)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age", cfg.Log.MaxAge)
	v.SetDefault("log.compress", cfg.Log.Compress)
}
