package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns the value of an environment variable or a default
func GetEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt returns an environment variable parsed as int, or the default
// when it is unset or malformed
func GetEnvInt(key string, defaultValue int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return n
}

// GetEnvBool returns an environment variable parsed as bool
func GetEnvBool(key string, defaultValue bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return b
}

// GetEnvDuration returns an environment variable parsed with time.ParseDuration
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return d
}

// GetEnvInt64List parses a comma separated list of integers ("123,456").
// Malformed entries are skipped.
func GetEnvInt64List(key string) []int64 {
	value := GetEnv(key, "")
	if value == "" {
		return nil
	}

	var out []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
