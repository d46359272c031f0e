package config

import (
	"crypto/rand"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Engine configuration
	WSURL string
	Token string

	// Server configuration
	ServerPort      string
	Environment     string
	FrontendAddress string

	// Database configuration, empty disables the user directory
	DatabaseURL string

	// Redis configuration
	RedisAddress string

	// Kafka configuration, no brokers disables the operation feed
	KafkaBrokers []string
	KafkaTopic   string

	// JWT configuration
	JWTSecret   string
	RequireAuth bool

	// internal secret used by the backend to push sync and alerts
	InternalSecret string

	WorkerPoolSize int
}

// Global application configuration
var AppConfig Config

// LoadConfig loads configuration from .env and environment variables
func LoadConfig() Config {
	// Find .env file
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Try to find .env in parent directories
		envPath = filepath.Join("..", ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			envPath = filepath.Join("..", "..", ".env")
		}
	}

	// Load .env file if it exists
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("COLLAB_WS_URL", "ws://localhost:8080/ws")
	v.SetDefault("COLLAB_TOKEN", "")
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("FRONTEND_ADDRESS", "https://production-frontend.com")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDRESS", "localhost:6379")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "collab.operations")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("REQUIRE_AUTH", false)
	v.SetDefault("INTERNAL_SECRET", "collab-internal-secret")
	v.SetDefault("WORKER_POOL_SIZE", 4)
	v.AutomaticEnv()

	jwtSecret := v.GetString("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateRandomSecret() // Generate a random secret if not declared
		log.Println("Generated random JWT secret")
	}

	poolSize := v.GetInt("WORKER_POOL_SIZE")
	if poolSize < 1 {
		poolSize = 1
	}

	AppConfig = Config{
		WSURL:           v.GetString("COLLAB_WS_URL"),
		Token:           v.GetString("COLLAB_TOKEN"),
		ServerPort:      v.GetString("PORT"),
		Environment:     v.GetString("ENV"),
		FrontendAddress: v.GetString("FRONTEND_ADDRESS"),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		RedisAddress:    v.GetString("REDIS_ADDRESS"),
		KafkaBrokers:    splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:      v.GetString("KAFKA_TOPIC"),
		JWTSecret:       jwtSecret,
		RequireAuth:     v.GetBool("REQUIRE_AUTH"),
		InternalSecret:  v.GetString("INTERNAL_SECRET"),
		WorkerPoolSize:  poolSize,
	}
	return AppConfig
}

// IsDevelopment reports whether the server runs with development defaults
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// splitList parses a comma separated list, dropping empty items
func splitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// generateRandomSecret generates a random base32 secret
func generateRandomSecret() string {
	return rand.Text()
}
