package feed

import (
	"fmt"
	"strings"
)

// ConfigError reports missing feed credentials or URL. It is fatal for the
// request that hit it and is surfaced on every invocation, never cached.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s must be set in environment variables", strings.Join(e.Missing, " and "))
}

// DecodeError reports a malformed or truncated feed payload. The whole fetch
// cycle is discarded: no partially decoded feed is ever shaped or cached.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("gtfs-rt decode failed: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// FetchAttempt records one failed candidate URL.
type FetchAttempt struct {
	URL    string
	Status int
	Reason string
}

func (a FetchAttempt) String() string {
	if a.Status != 0 {
		return fmt.Sprintf("%d %s @ %s", a.Status, a.Reason, a.URL)
	}
	return fmt.Sprintf("%s @ %s", a.Reason, a.URL)
}

// FetchError aggregates every failed candidate attempt. It is only returned
// once no candidate remains: a 404 advances to the next candidate, while any
// other failure aborts the cycle immediately.
type FetchError struct {
	Attempts []FetchAttempt
}

func (e *FetchError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	return "gtfs-rt fetch failed: " + strings.Join(parts, " | ")
}
