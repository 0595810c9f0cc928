package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestDefaultConfig_Tables verifies the storage table names used by existing deployments
func TestDefaultConfig_Tables(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Storage.IDMapTable != "nunti-idMap" {
		t.Errorf("IDMapTable = %q, want nunti-idMap", cfg.Storage.IDMapTable)
	}
	if cfg.Storage.ContextMapTable != "group-context-map" {
		t.Errorf("ContextMapTable = %q, want group-context-map", cfg.Storage.ContextMapTable)
	}
}

// TestDefaultConfig_Curation verifies curation defaults
func TestDefaultConfig_Curation(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Curation.DefaultTopicName != "General" {
		t.Errorf("DefaultTopicName = %q", cfg.Curation.DefaultTopicName)
	}
	if cfg.Curation.CommunityFallback != "Telegram Community" {
		t.Errorf("CommunityFallback = %q", cfg.Curation.CommunityFallback)
	}
	if len(cfg.Curation.IgnoreDomains) != len(DefaultIgnoreDomains) {
		t.Errorf("IgnoreDomains has %d entries, want %d", len(cfg.Curation.IgnoreDomains), len(DefaultIgnoreDomains))
	}
	if cfg.Telegram.PlatformName != "Telegram" {
		t.Errorf("PlatformName = %q", cfg.Telegram.PlatformName)
	}
}

// TestDefaultConfig_IgnoreDomainsCopied verifies callers cannot mutate the package default list
func TestDefaultConfig_IgnoreDomainsCopied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Curation.IgnoreDomains[0] = "changed"

	if DefaultIgnoreDomains[0] == "changed" {
		t.Fatal("DefaultIgnoreDomains was mutated through a config copy")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Backend != "json" {
		t.Errorf("Storage.Backend = %q, want json", cfg.Storage.Backend)
	}
}

func TestLoadConfig_FileAndEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "telegram": {"token": "file-token", "admin_chat_id": "-1001918703227", "share_topic_id": 4},
  "storage": {"backend": "sqlite"}
}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("NUNTI_TELEGRAM_TOKEN", "env-token")
	t.Setenv("NUNTI_REGISTRY_APP_KEY", "${NUNTI_TEST_SECRET}")
	t.Setenv("NUNTI_TEST_SECRET", "s3cret")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("Token = %q, want env-token", cfg.Telegram.Token)
	}
	if cfg.Telegram.AdminChatID != -1001918703227 {
		t.Errorf("AdminChatID = %d", cfg.Telegram.AdminChatID)
	}
	if cfg.Telegram.ShareTopicID != 4 {
		t.Errorf("ShareTopicID = %d", cfg.Telegram.ShareTopicID)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Registry.AppKey != "s3cret" {
		t.Errorf("AppKey = %q, want resolved env ref", cfg.Registry.AppKey)
	}
	// Values not present in the file keep their defaults.
	if cfg.Storage.IDMapTable != "nunti-idMap" {
		t.Errorf("IDMapTable = %q", cfg.Storage.IDMapTable)
	}
}

func TestFlexibleInt64(t *testing.T) {
	var v struct {
		A FlexibleInt64 `json:"a"`
		B FlexibleInt64 `json:"b"`
		C FlexibleInt64 `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 12, "b": "-100123", "c": ""}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A != 12 || v.B != -100123 || v.C != 0 {
		t.Fatalf("got %+v", v)
	}
	if err := json.Unmarshal([]byte(`{"a": "abc"}`), &v); err == nil {
		t.Fatal("expected error for non-numeric string")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing token")
	}
	if !strings.Contains(err.Error(), "telegram.token") {
		t.Errorf("error %q does not mention token", err)
	}

	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.AdminChatID = -100
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cfg.Storage.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown storage backend")
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("NUNTI_DOTENV_A=fromfile\nNUNTI_DOTENV_B=fromfile\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("NUNTI_DOTENV_A", "preset")
	os.Unsetenv("NUNTI_DOTENV_B")
	defer os.Unsetenv("NUNTI_DOTENV_B")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("NUNTI_DOTENV_A"); got != "preset" {
		t.Errorf("NUNTI_DOTENV_A = %q, want preset", got)
	}
	if got := os.Getenv("NUNTI_DOTENV_B"); got != "fromfile" {
		t.Errorf("NUNTI_DOTENV_B = %q, want fromfile", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/x"); got != home+"/x" {
		t.Errorf("ExpandHome(~/x) = %q", got)
	}
	if got := ExpandHome("/abs"); got != "/abs" {
		t.Errorf("ExpandHome(/abs) = %q", got)
	}
}
