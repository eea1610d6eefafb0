package demoserver

import "time"

type Config struct {
	// ListenAddr is host:port for Start.
	ListenAddr string

	// InitialVersion is the version every page starts on.
	InitialVersion int

	// ShutdownTimeout bounds the graceful stop in Start.
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:9999",
		InitialVersion:  1,
		ShutdownTimeout: 5 * time.Second,
	}
}
