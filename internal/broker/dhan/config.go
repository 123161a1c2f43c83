// Package dhan provides Dhan HTTP API connectivity.
package dhan

import (
	"time"
)

// Config holds Dhan API client configuration.
type Config struct {
	// Connection settings
	BaseURL     string
	ClientID    string
	AccessToken string

	// Timeouts
	RequestTimeout time.Duration
	QuoteTimeout   time.Duration

	// Rate limiting
	MaxRequestsPerSecond int
}

// DefaultConfig returns default Dhan configuration. Credentials come from
// the environment at wiring time.
func DefaultConfig() Config {
	return Config{
		BaseURL:              "https://api.dhan.co",
		RequestTimeout:       10 * time.Second,
		QuoteTimeout:         3 * time.Second,
		MaxRequestsPerSecond: 8, // Dhan order API limit is 10/sec
	}
}
