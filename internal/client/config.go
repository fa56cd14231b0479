package client

import (
	"time"

	"github.com/DoyleJ11/lab-whiteboard/internal/connmgr"
	"github.com/DoyleJ11/lab-whiteboard/internal/interaction"
)

type Config struct {
	// HubURL is the hub's base URL; the room channel and the REST
	// endpoints hang off it.
	HubURL string

	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	WriteTimeout   time.Duration

	TapThreshold      time.Duration
	ResizeSensitivity float64
	// FrameInterval bounds how often coalesced pointer moves are applied.
	FrameInterval time.Duration

	DefaultColor string
}

func DefaultConfig() Config {
	return Config{
		HubURL:            "http://localhost:8000",
		ReconnectDelay:    3 * time.Second,
		DialTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
		TapThreshold:      200 * time.Millisecond,
		ResizeSensitivity: 0.003,
		FrameInterval:     16 * time.Millisecond,
		DefaultColor:      "#2563eb",
	}
}

func (c Config) connSettings() *connmgr.Settings {
	return &connmgr.Settings{
		ReconnectDelay: c.ReconnectDelay,
		DialTimeout:    c.DialTimeout,
		WriteTimeout:   c.WriteTimeout,
	}
}

func (c Config) machineConfig() interaction.Config {
	return interaction.Config{
		TapThreshold:      c.TapThreshold,
		ResizeSensitivity: c.ResizeSensitivity,
	}
}
