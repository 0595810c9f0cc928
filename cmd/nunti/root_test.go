package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nomland/nunti/pkg/config"
	"github.com/nomland/nunti/pkg/store"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "nunti dev" {
		t.Errorf("version = %q", got)
	}
}

func TestMigrateJSONToSQLite(t *testing.T) {
	dir := t.TempDir()
	jsonDir := filepath.Join(dir, "store")
	dbPath := filepath.Join(dir, "nunti.db")
	cfgPath := filepath.Join(dir, "config.json")
	cfgJSON := fmt.Sprintf(`{"storage": {"dir": %q, "sqlite_path": %q}}`, jsonDir, dbPath)
	if err := os.WriteFile(cfgPath, []byte(cfgJSON), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	src, err := store.OpenJSONFile(jsonDir)
	if err != nil {
		t.Fatalf("OpenJSONFile: %v", err)
	}
	if err := src.Set("nunti-idMap", "200-1", "1001-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := src.Set("group-context-map", "200", "777"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	src.Close()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"migrate", "--config", cfgPath, "--from", "json", "--to", "sqlite"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "Copied 2 entries") {
		t.Fatalf("output = %q", out.String())
	}

	dst, err := store.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer dst.Close()
	if v, ok, err := dst.Get("nunti-idMap", "200-1"); err != nil || !ok || v != "1001-1" {
		t.Fatalf("migrated mapping = %q, %v, %v", v, ok, err)
	}
}

func TestMigrateRejectsSameBackend(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "--config", filepath.Join(t.TempDir(), "none.json"), "--from", "json", "--to", "json"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for identical backends")
	}
}

func TestInitWritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfgPath := filepath.Join(dir, "nunti", "config.json")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"init", "--config", cfgPath})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "initialized "+cfgPath) {
		t.Errorf("output = %q", out.String())
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.PlatformName != "Telegram" {
		t.Errorf("platform = %q", cfg.Telegram.PlatformName)
	}
	if _, err := os.Stat(filepath.Join(dir, "store")); err != nil {
		t.Errorf("storage dir not created: %v", err)
	}

	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"init", "--config", cfgPath})
	if err := root.Execute(); err == nil {
		t.Fatal("second init should refuse to overwrite")
	}
}
