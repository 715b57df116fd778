package sessionstore

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend names a session store implementation
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendFile     Backend = "file"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
)

// Config selects and configures a session store
type Config struct {
	Backend Backend `yaml:"backend"`
	// Profile keys the session inside shared backends, so several clients
	// can keep separate sessions in one redis or postgres
	Profile string `yaml:"profile"`

	File     FileConfig     `yaml:"file"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// FileConfig configures the file store
type FileConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// PostgresConfig holds database connection settings
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// DefaultConfig keeps the session in a file under the user's home
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Backend: BackendFile,
		Profile: "default",
		File:    FileConfig{Path: home + "/.nestlink/session.json"},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			KeyPrefix:    "nestlink:session:",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "nestlink",
			Password:        "nestlink",
			Database:        "nestlink",
			MaxConns:        4,
			MinConns:        1,
			MaxConnLifetime: 1 * time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
	}
}

// ApplyEnv overrides fields from NESTLINK_SESSION_* environment variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("NESTLINK_SESSION_BACKEND"); v != "" {
		c.Backend = Backend(v)
	}
	c.Profile = getEnvOrDefault("NESTLINK_SESSION_PROFILE", c.Profile)
	c.File.Path = getEnvOrDefault("NESTLINK_SESSION_FILE", c.File.Path)

	c.Redis.Host = getEnvOrDefault("NESTLINK_REDIS_HOST", c.Redis.Host)
	c.Redis.Password = getEnvOrDefault("NESTLINK_REDIS_PASSWORD", c.Redis.Password)
	port, err := strconv.Atoi(getEnvOrDefault("NESTLINK_REDIS_PORT", strconv.Itoa(c.Redis.Port)))
	if err != nil {
		return fmt.Errorf("invalid NESTLINK_REDIS_PORT: %w", err)
	}
	c.Redis.Port = port

	c.Postgres.Host = getEnvOrDefault("NESTLINK_POSTGRES_HOST", c.Postgres.Host)
	c.Postgres.User = getEnvOrDefault("NESTLINK_POSTGRES_USER", c.Postgres.User)
	c.Postgres.Password = getEnvOrDefault("NESTLINK_POSTGRES_PASSWORD", c.Postgres.Password)
	c.Postgres.Database = getEnvOrDefault("NESTLINK_POSTGRES_DB", c.Postgres.Database)
	pgPort, err := strconv.Atoi(getEnvOrDefault("NESTLINK_POSTGRES_PORT", strconv.Itoa(c.Postgres.Port)))
	if err != nil {
		return fmt.Errorf("invalid NESTLINK_POSTGRES_PORT: %w", err)
	}
	c.Postgres.Port = pgPort
	return nil
}

// Address returns the Redis server address
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConnectionString returns a PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
