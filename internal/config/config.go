package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"taskboard/backend/internal/utils"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Board     BoardConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	Environment string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
	JWTSecret   string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RateLimitConfig struct {
	RequestsPerMin int
	BurstSize      int
}

// BoardConfig holds tunables for the sync engine itself.
type BoardConfig struct {
	DefaultBoardID    string
	SubscribeDebounce time.Duration
	CommitTimeout     time.Duration
	MaxAttachments    int
	ActivityPageSize  int
	WatermarkDir      string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("📋 No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvInt("SERVER_PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			ReadTimeout: getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout: getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			JWTSecret:   getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "task_board"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			MaxRetries:   getEnvInt("REDIS_MAX_RETRIES", 3),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 20),
		},
		Board: BoardConfig{
			DefaultBoardID:    getEnv("BOARD_ID", "00000000-0000-0000-0000-000000000001"),
			SubscribeDebounce: getEnvDuration("BOARD_SUBSCRIBE_DEBOUNCE", 100*time.Millisecond),
			CommitTimeout:     getEnvDuration("BOARD_COMMIT_TIMEOUT", 10*time.Second),
			MaxAttachments:    getEnvInt("BOARD_MAX_ATTACHMENTS", 10),
			ActivityPageSize:  getEnvInt("BOARD_ACTIVITY_PAGE_SIZE", 50),
			WatermarkDir:      getEnv("BOARD_WATERMARK_DIR", "data/watermarks"),
		},
	}

	if cfg.IsProduction() && cfg.Server.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Name, c.Database.SSLMode)
}

func getEnv(key, fallback string) string {
	return utils.GetEnv(key, fallback)
}

func getEnvInt(key string, fallback int) int {
	return utils.GetEnvAsInt(key, fallback)
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	return utils.GetEnvAsDuration(key, fallback)
}
