// Package config holds the client configuration.
package config

import "time"

// Config stores all parameters for one client process: server endpoints,
// signaling channel tuning, and NAT traversal servers.
type Config struct {
	APIBaseURL string // REST base, e.g. https://allcall.example/api/v1
	WSURL      string // signaling endpoint, e.g. wss://allcall.example/api/v1/ws

	ReconnectDelay time.Duration // flat delay between reconnect attempts
	OutboundQueue  int           // max messages buffered while disconnected
	RequestTimeout time.Duration // REST request timeout

	STUNServers []string
}

// Default returns the production configuration. The CLI overrides the
// endpoints via flags for self-hosted servers.
func Default() Config {
	return Config{
		APIBaseURL:     "https://allcall.example/api/v1",
		WSURL:          "wss://allcall.example/api/v1/ws",
		ReconnectDelay: 3 * time.Second,
		OutboundQueue:  50,
		RequestTimeout: 10 * time.Second,
		STUNServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
	}
}
