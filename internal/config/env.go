package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// The env* helpers return d when the variable is unset or unparsable.

func envStr(key, d string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return d
}

func envBool(key string, d bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(key string, d int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return d
	}
	return n
}

func envDur(key string, d time.Duration) time.Duration {
	dur, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return d
	}
	return dur
}
