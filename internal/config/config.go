package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 运行时配置 (config.yaml + PARTS_ 前缀环境变量)
// 例: PARTS_DATABASE_DSN 覆盖 database.dsn
type Config struct {
	App       AppConfig      `mapstructure:"app"`
	Log       LogConfig      `mapstructure:"log"`
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Cache     CacheConfig    `mapstructure:"cache"`
	Supplier  SupplierConfig `mapstructure:"supplier"`
	Search    SearchConfig   `mapstructure:"search"`
	Suppliers []SupplierSeed `mapstructure:"suppliers"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"` // development | production
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PurgeCooldown   time.Duration `mapstructure:"purge_cooldown"` // 手动清理缓存的冷却时间
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres | sqlite
	DSN          string `mapstructure:"dsn"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type CacheConfig struct {
	Driver           string        `mapstructure:"driver"` // database | redis | memory
	RedisURL         string        `mapstructure:"redis_url"`
	BrandsTTL        time.Duration `mapstructure:"brands_ttl"`
	ProductsTTL      time.Duration `mapstructure:"products_ttl"`
	AnalogsTTL       time.Duration `mapstructure:"analogs_ttl"`
	CleanupSpec      string        `mapstructure:"cleanup_spec"` // cron (含秒)
	ExpiredRetention time.Duration `mapstructure:"expired_retention"`
	CallLogRetention time.Duration `mapstructure:"call_log_retention"`
}

type SupplierConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	RatePerSecond     float64       `mapstructure:"rate_per_second"`
	Burst             int           `mapstructure:"burst"`
	AnalogConcurrency int           `mapstructure:"analog_concurrency"`
	Debug             bool          `mapstructure:"debug"`
}

type SearchConfig struct {
	Concurrent  bool `mapstructure:"concurrent"`
	AnalogLimit int  `mapstructure:"analog_limit"`
}

// SupplierSeed 启动时按名称写入的供应商
type SupplierSeed struct {
	Name            string  `mapstructure:"name"`
	IsActive        *bool   `mapstructure:"is_active"` // 缺省为启用
	APIType         string  `mapstructure:"api_type"`
	APIURL          string  `mapstructure:"api_url"`
	Login           string  `mapstructure:"login"`
	Password        string  `mapstructure:"password"`
	OfficeID        string  `mapstructure:"office_id"`
	UseOnlineStocks bool    `mapstructure:"use_online_stocks"`
	MarkupPercent   float64 `mapstructure:"markup_percent"`
}

// Load 读取配置，configPath 为空时在当前目录查找 config.yaml (可缺省)
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PARTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// 指定了路径却读不到才算错误
		if !errors.As(err, &notFound) && configPath != "" {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "parts-search")
	v.SetDefault("app.env", "development")
	v.SetDefault("log.level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.purge_cooldown", time.Minute)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "parts_search.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)

	v.SetDefault("cache.driver", "database")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.brands_ttl", 24*time.Hour)
	v.SetDefault("cache.products_ttl", time.Hour)
	v.SetDefault("cache.analogs_ttl", time.Hour)
	v.SetDefault("cache.cleanup_spec", "0 0 * * * *")
	v.SetDefault("cache.expired_retention", 24*time.Hour)
	v.SetDefault("cache.call_log_retention", 30*24*time.Hour)

	v.SetDefault("supplier.timeout", 15*time.Second)
	v.SetDefault("supplier.rate_per_second", 5.0)
	v.SetDefault("supplier.burst", 5)
	v.SetDefault("supplier.analog_concurrency", 4)

	v.SetDefault("search.concurrent", false)
	v.SetDefault("search.analog_limit", 20)
}

// Validate 检查枚举值
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	switch c.Cache.Driver {
	case "database", "redis", "memory":
	default:
		return fmt.Errorf("unsupported cache driver: %q", c.Cache.Driver)
	}
	for i, s := range c.Suppliers {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("suppliers[%d]: name is required", i)
		}
	}
	return nil
}

// IsProduction 生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
