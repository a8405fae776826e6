package config

import "time"

// HTTPConfig contains bridge API server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to. The bridge is meant for
	// the local shell, so it binds to loopback by default.
	Addr string `env:"HTTP_ADDR" envDefault:"127.0.0.1:8080"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// EventsHeartbeat is the keep-alive interval on the session event stream.
	EventsHeartbeat time.Duration `env:"HTTP_EVENTS_HEARTBEAT" envDefault:"25s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Addr == "" {
		h.Addr = "127.0.0.1:8080"
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
	if h.EventsHeartbeat < time.Second {
		h.EventsHeartbeat = 25 * time.Second
	}
}
