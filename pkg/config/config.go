package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	Environment     string
	StoreBackend    string // "firestore" or "memory"

	// Bounded deadline for Conversation Store writes (send/mark-read).
	StoreTimeout time.Duration

	// Typing indicators older than this are considered stale.
	TypingDecayWindow time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		FirebaseProject:   getEnv("FIREBASE_PROJECT_ID", ""),
		Environment:       getEnv("ENVIRONMENT", "development"),
		StoreBackend:      getEnv("STORE_BACKEND", "firestore"),
		StoreTimeout:      getEnvAsDuration("STORE_TIMEOUT_SECONDS", 5*time.Second),
		TypingDecayWindow: getEnvAsDuration("TYPING_DECAY_SECONDS", 5*time.Second),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		seconds, err := strconv.ParseInt(value, 10, 64)
		if err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
