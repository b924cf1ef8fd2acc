package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Port        string
	LogLevel    string
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	CORS        CORSConfig
	// PublicURL prefixes the share links handed out with share keys.
	PublicURL string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// DSN is the pgx connection string for the database.
func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=disable"
}

type JWTConfig struct {
	Secret    string
	ExpiresIn string
}

// RedisConfig enables the cross-instance hub bridge when URL is set.
type RedisConfig struct {
	URL     string
	Channel string
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	frontend := getEnv("FRONTEND_URL", "http://localhost:3000")
	origins := []string{frontend}
	for _, o := range strings.Split(getEnv("CORS_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" && o != frontend {
			origins = append(origins, o)
		}
	}

	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "3001"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "taskeer"),
			User:     getEnv("DB_USER", "taskeer"),
			Password: getEnv("DB_PASSWORD", "taskeer"),
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", "change-this-secret-in-production"),
			ExpiresIn: getEnv("JWT_EXPIRES_IN", "7d"),
		},
		Redis: RedisConfig{
			URL:     getEnv("REDIS_URL", ""),
			Channel: getEnv("REDIS_CHANNEL", "taskeer:hub"),
		},
		CORS: CORSConfig{
			AllowedOrigins: origins,
		},
		PublicURL: getEnv("PUBLIC_URL", frontend),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
