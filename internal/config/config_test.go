package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigHasSaneTunables(t *testing.T) {
	cfg := Default()
	if cfg.Buffer.ChunkCapacity != 8*1024 {
		t.Fatalf("expected 8 KiB default chunk capacity, got %d", cfg.Buffer.ChunkCapacity)
	}
	if cfg.Buffer.OverflowPolicy != "disconnect" {
		t.Fatalf("expected disconnect default overflow policy, got %q", cfg.Buffer.OverflowPolicy)
	}
	if cfg.Socket.FlushGraceMs != 5000 {
		t.Fatalf("expected 5000ms default flush grace, got %d", cfg.Socket.FlushGraceMs)
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.toml")

	cfg := Default()
	cfg.Listen.Host = "127.0.0.1"
	cfg.Listen.Port = 9000
	cfg.Buffer.ChunkCapacity = 4096

	if err := Write(path, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Listen.Host != "127.0.0.1" || loaded.Listen.Port != 9000 {
		t.Fatalf("unexpected listen config after round trip: %+v", loaded.Listen)
	}
	if loaded.Buffer.ChunkCapacity != 4096 {
		t.Fatalf("expected chunk capacity 4096, got %d", loaded.Buffer.ChunkCapacity)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/path/runtime.toml")
	if err == nil {
		t.Fatal("expected an error loading a missing config file")
	}
}
