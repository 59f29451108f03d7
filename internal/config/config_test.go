package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	if *cfg != *want {
		t.Errorf("got %+v, want %+v", cfg, want)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wview.toml")
	in := &Config{
		ListenAddr:    ":8080",
		DatabasePath:  "/var/lib/wview/wview.db",
		LogPath:       "/var/log/wview.log",
		AllowedOrigin: "https://example.com",
	}
	if err := Save(path, in); err != nil {
		t.Fatal(err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if *out != *in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WVIEW_ADDR", ":9999")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("listen_addr = %q, want :9999", cfg.ListenAddr)
	}
	if cfg.DatabasePath != Default().DatabasePath {
		t.Errorf("database_path = %q", cfg.DatabasePath)
	}
}
