package webview

import (
	"errors"
	"time"
)

var (
	ErrClosed  = errors.New("renderer is closed")
	ErrTimeout = errors.New("script execution timeout exceeded")
)

// Config defines renderer limits.
type Config struct {
	Timeout          time.Duration
	MaxCallStackSize int
	EnableConsole    bool
}

// DefaultConfig returns the renderer defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		MaxCallStackSize: 1024,
		EnableConsole:    true,
	}
}

// LogEntry is one console call.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Outcome is a settled bridge call as observed by the page. Value holds the
// success value, or the error JSON when OK is false.
type Outcome struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Value string `json:"value"`
}
