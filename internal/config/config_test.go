package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"COLLAB_WS_URL", "PORT", "ENV", "JWT_SECRET", "KAFKA_BROKERS", "REQUIRE_AUTH", "WORKER_POOL_SIZE", "DATABASE_URL"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "ws://localhost:8080/ws", cfg.WSURL)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.True(t, cfg.IsDevelopment())
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "collab.operations", cfg.KafkaTopic)
	assert.False(t, cfg.RequireAuth)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, cfg, AppConfig)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("COLLAB_WS_URL", "wss://collab.school.test/ws")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("REQUIRE_AUTH", "true")
	t.Setenv("WORKER_POOL_SIZE", "0")

	cfg := LoadConfig()

	assert.Equal(t, "wss://collab.school.test/ws", cfg.WSURL)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.RequireAuth)
	assert.Equal(t, 1, cfg.WorkerPoolSize)
}
