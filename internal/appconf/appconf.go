// Package appconf holds application-level configuration shared by the HTTP
// server and its middleware.
package appconf

import (
	"os"
	"strconv"
	"strings"
)

// Environment identifies the runtime environment the app was started in.
type Environment int

const (
	Development Environment = iota
	Test
	Production
)

// EnvFlagToEnvironment maps an environment flag value to an Environment.
// Unknown values fall back to Development.
func EnvFlagToEnvironment(flag string) Environment {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "production":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Production:
		return "production"
	case Test:
		return "test"
	default:
		return "development"
	}
}

// Config is the application configuration for the API server.
//
// FeedAPIKey and FeedURL are deliberately not validated here: their absence is
// a per-request configuration error surfaced by the feed client, not a startup
// failure.
type Config struct {
	Port       int
	Env        Environment
	ApiKeys    []string
	RateLimit  int
	Verbose    bool
	FeedAPIKey string
	FeedURL    string
}

// FromEnv builds a Config from process environment variables.
func FromEnv() Config {
	return Config{
		Port:       envInt("PORT", 4000),
		Env:        EnvFlagToEnvironment(os.Getenv("ENV")),
		ApiKeys:    ParseAPIKeys(os.Getenv("API_KEYS")),
		RateLimit:  envInt("RATE_LIMIT", 100),
		Verbose:    envBool("VERBOSE"),
		FeedAPIKey: os.Getenv("GTFS_RT_API_KEY"),
		FeedURL:    os.Getenv("GTFS_RT_FEED_URL"),
	}
}

// ParseAPIKeys splits a comma-separated API key list, trimming whitespace
// around each key. An empty input yields an empty (non-nil) slice.
func ParseAPIKeys(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		keys = append(keys, strings.TrimSpace(p))
	}
	return keys
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}
