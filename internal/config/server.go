package config

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// ServerConfig describes how to reach one ICAP server.
// Zero values mean "not set" and fall back to the defaults section or
// the built-in defaults.
type ServerConfig struct {
	// Host is the server host name or IP address.
	Host string `yaml:"host,omitempty"`

	// Port is the server TCP port.
	Port int `yaml:"port,omitempty"`

	// Service is the ICAP service path.
	Service string `yaml:"service,omitempty"`

	// Action is appended to the service path on RESPMOD requests.
	Action string `yaml:"action,omitempty"`

	// SocksProxy is a "host:port" SOCKS5 proxy in front of the server.
	SocksProxy string `yaml:"socks,omitempty"`

	// Timeout is the per-operation network timeout, e.g. "45s".
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Retries is the number of attempts per call.
	Retries int `yaml:"retries,omitempty"`

	// ChunkSize is the payload size of each chunk sent.
	ChunkSize int `yaml:"chunkSize,omitempty"`
}

// File represents the structure of the .icapscan configuration file.
type File struct {
	// Servers maps profile names to server configurations.
	Servers map[string]ServerConfig `yaml:"servers,omitempty"`

	// Defaults is applied to every profile unless the profile overrides it.
	Defaults ServerConfig `yaml:"defaults,omitempty"`
}

// GetServerConfig returns the named profile merged over the defaults section.
// An empty name returns the defaults alone; an unknown name is an error.
func (cf *File) GetServerConfig(name string) (ServerConfig, error) {
	result := cf.Defaults
	if name == "" {
		return result, nil
	}

	sc, ok := cf.Servers[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("%w: %q", ErrUnknownServer, name)
	}

	if sc.Host != "" {
		result.Host = sc.Host
	}
	if sc.Port != 0 {
		result.Port = sc.Port
	}
	if sc.Service != "" {
		result.Service = sc.Service
	}
	if sc.Action != "" {
		result.Action = sc.Action
	}
	if sc.SocksProxy != "" {
		result.SocksProxy = sc.SocksProxy
	}
	if sc.Timeout != 0 {
		result.Timeout = sc.Timeout
	}
	if sc.Retries != 0 {
		result.Retries = sc.Retries
	}
	if sc.ChunkSize != 0 {
		result.ChunkSize = sc.ChunkSize
	}

	return result, nil
}

// ServerNames returns the profile names in sorted order.
func (cf *File) ServerNames() []string {
	return slices.Sorted(maps.Keys(cf.Servers))
}
