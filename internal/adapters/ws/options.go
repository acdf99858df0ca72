package ws

import (
	"time"

	"github.com/okian/proctor/pkg/logger"
)

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithMaxClients caps concurrent connections. Upgrades beyond it get 503.
func WithMaxClients(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxClients = n
		}
	}
}

// WithReadLimit caps the size of one inbound frame.
func WithReadLimit(bytes int64) Option {
	return func(h *Hub) {
		if bytes > 0 {
			h.readLimit = bytes
		}
	}
}

// WithPongWait sets how long a silent connection is kept. Pings are sent
// at 9/10 of this interval.
func WithPongWait(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pongWait = d
		}
	}
}

// WithAllowedOrigins lists browser origins allowed to connect in addition
// to the server's own host. "*" allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) {
		for _, o := range origins {
			h.origins[o] = struct{}{}
		}
	}
}

// WithLogger sets a custom logger for the hub.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}
