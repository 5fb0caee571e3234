package utils

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
)

// GetEnv returns the environment value for key, or fallback when unset/empty.
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// GetEnvFloat parses a float environment value, returning fallback on any error.
func GetEnvFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

// CreateFolder ensures the directory exists with default permissions.
func CreateFolder(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", path, err)
	}
	return nil
}

// GenerateUniqueID produces a random 32-bit identifier for stored records.
func GenerateUniqueID() uint32 {
	return rand.Uint32()
}
