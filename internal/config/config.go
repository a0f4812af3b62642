// Package config implements the RuntimeConfig spec.md §9 calls for in
// place of the source's process-wide mutable statics ("is_daemon,
// app_name, path buffers"): a single explicit value loaded once at start
// and passed down, rather than globals read from anywhere. Grounded on
// azhai-gozzo-net's cmd/relay/config.go GetConfig/WriteConfig, which
// already uses BurntSushi/toml for exactly this load-once-pass-down shape.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// RuntimeConfig is the core's complete set of tunables. It is loaded once
// (Load) and then handed to the Reactor, Sockets, and Workers at
// construction time — nothing in this package keeps a package-level
// instance.
type RuntimeConfig struct {
	Listen  ListenConfig  `toml:"listen"`
	Buffer  BufferConfig  `toml:"buffer"`
	Socket  SocketConfig  `toml:"socket"`
	Worker  WorkerConfig  `toml:"worker"`
	Backend string        `toml:"backend"` // "epoll", "poll", or "" (auto)
}

type ListenConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	IPv6DualStack  bool   `toml:"ipv6_dual_stack"`
}

type BufferConfig struct {
	ChunkCapacity    int    `toml:"chunk_capacity"`
	SendChunkMax     int32  `toml:"send_chunk_max"`
	RecvChunkMax     int32  `toml:"recv_chunk_max"`
	OverflowPolicy   string `toml:"overflow_policy"` // "disconnect" | "drop_oldest" | "drop_newest"
}

type SocketConfig struct {
	// FlushGraceMs bounds how long Stop(flush=true, term=false) waits for
	// the send buffer to drain before force-terminating (spec.md §4.7).
	FlushGraceMs int `toml:"flush_grace_ms"`

	// KeepAlive{Idle,Count,IntervalMs} tune the TCP keepalive probe
	// cadence via ApplyKeepAliveTuning. KeepAliveIdleMs <= 0 skips tuning
	// (accept-time SO_KEEPALIVE=1 still applies, just with OS defaults).
	KeepAliveIdleMs     int `toml:"keepalive_idle_ms"`
	KeepAliveCount      int `toml:"keepalive_count"`
	KeepAliveIntervalMs int `toml:"keepalive_interval_ms"`
}

type WorkerConfig struct {
	HandshakeRetryDelayMs int `toml:"handshake_retry_delay_ms"`
	HandshakePollMs       int `toml:"handshake_poll_ms"`
}

// Default returns the tunables the core uses absent a config file:
// 8 KiB chunks, a 1024-chunk soft cap, disconnect-on-overflow, a 5 s flush
// grace period, 1 s worker handshake retries.
func Default() *RuntimeConfig {
	return &RuntimeConfig{
		Listen: ListenConfig{Host: "0.0.0.0", Port: 0},
		Buffer: BufferConfig{
			ChunkCapacity:  8 * 1024,
			SendChunkMax:   1024,
			RecvChunkMax:   1024,
			OverflowPolicy: "disconnect",
		},
		Socket: SocketConfig{
			FlushGraceMs:        5000,
			KeepAliveIdleMs:     60000,
			KeepAliveCount:      4,
			KeepAliveIntervalMs: 15000,
		},
		Worker: WorkerConfig{
			HandshakeRetryDelayMs: 1000,
			HandshakePollMs:       50,
		},
	}
}

// Load reads a RuntimeConfig from a TOML file, overlaying it on Default()
// so a partial config file only needs to name the fields it overrides.
func Load(path string) (*RuntimeConfig, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Write serializes cfg back to TOML, mirroring the teacher's
// WriteConfig — useful for persisting a runtime-adjusted config.
func Write(path string, cfg *RuntimeConfig) error {
	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
