package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "STOREFRONT"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Storage StorageConfig `mapstructure:"storage"`
	Mirror  MirrorConfig  `mapstructure:"mirror"`
	Etcd    EtcdConfig    `mapstructure:"etcd"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type GatewayConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// StorageConfig selects the durable key-value backend behind the order log.
type StorageConfig struct {
	Backend string      `mapstructure:"backend"` // memory | pebble | redis
	Path    string      `mapstructure:"path"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// MirrorConfig controls the remote order mirror. When Enabled is false the
// order log is the only store and orders stay pending.
type MirrorConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Backend  string         `mapstructure:"backend"` // mongodb | dynamodb | mysql
	Timeout  time.Duration  `mapstructure:"timeout"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type DynamoDBConfig struct {
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	Table       string `mapstructure:"table"`
	UserIDIndex string `mapstructure:"user_id_index"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type EtcdConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "storefront-orders")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)

	v.SetDefault("storage.backend", "pebble")
	v.SetDefault("storage.path", "./data/orders")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.key_prefix", "storefront:")

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.backend", "mongodb")
	v.SetDefault("mirror.timeout", 0)
	v.SetDefault("mirror.mongodb.database", "storefront")
	v.SetDefault("mirror.mongodb.collection", "orders")
	v.SetDefault("mirror.dynamodb.region", "us-east-1")
	v.SetDefault("mirror.dynamodb.table", "orders")
	v.SetDefault("mirror.dynamodb.user_id_index", "user_id-index")
	v.SetDefault("mirror.mysql.port", 3306)
	v.SetDefault("mirror.mysql.max_idle_conns", 2)
	v.SetDefault("mirror.mysql.max_open_conns", 10)

	v.SetDefault("etcd.enabled", false)
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.prefix", "/storefront/services/")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})
}

// Load reads the YAML file at configPath. An empty path loads defaults and
// environment overrides only (STOREFRONT_MIRROR_ENABLED=true and so on).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		// Read config file
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "pebble", "redis":
	default:
		return fmt.Errorf("invalid storage.backend %q: must be memory, pebble or redis", c.Storage.Backend)
	}
	if c.Mirror.Enabled {
		switch c.Mirror.Backend {
		case "mongodb", "dynamodb", "mysql":
		default:
			return fmt.Errorf("invalid mirror.backend %q: must be mongodb, dynamodb or mysql", c.Mirror.Backend)
		}
	}
	if c.Mirror.Timeout < 0 {
		return fmt.Errorf("invalid mirror.timeout %s: must not be negative", c.Mirror.Timeout)
	}
	return nil
}

func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}
