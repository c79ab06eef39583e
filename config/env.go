// Package config loads and validates the environment inputs the runtime
// needs: broker coordinates, the project/service namespace, outbox/inbox
// database access, and optional tuning knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads a .env file if present. Absence is not an error: in
// production the environment is already populated by the orchestrator.
func Load() {
	_ = godotenv.Load()
}

// GetString returns the environment variable as a string, or def if unset.
func GetString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// GetInt returns the environment variable as an int, or def if unset or
// unparsable.
func GetInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetBool returns the environment variable as a bool, or def if unset.
// An unparsable non-empty value is a configuration mistake, not a silent
// fallback, so it panics at startup rather than running with a guessed
// value.
func GetBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(fmt.Errorf("config: invalid boolean env %s=%q", key, v))
	}
	return b
}

// GetDuration returns the environment variable as a time.Duration, or def
// if unset or unparsable.
func GetDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Required returns the environment variable, or an error naming it as
// missing. Used for the fixed set of variables a process cannot start
// without.
func Required(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("config: missing required env %s", key)
	}
	return v, nil
}
