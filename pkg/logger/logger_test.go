package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nomland/nunti/pkg/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		" error ": ERROR,
		"bogus":   INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatFieldsSorted(t *testing.T) {
	got := formatFields(map[string]interface{}{"b": 2, "a": "x"})
	if got != "{a=x, b=2}" {
		t.Fatalf("formatFields = %q", got)
	}
}

func TestConfigureWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nunti.log")
	err := Configure(config.LoggingConfig{
		Level:       "debug",
		FileEnabled: true,
		FilePath:    path,
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer func() {
		DisableFileLogging()
		SetLevel(INFO)
	}()

	InfoCF("router", "share recorded", map[string]interface{}{"record": "12-3"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(data))
	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	if entry.Component != "router" || entry.Level != "INFO" || entry.Fields["record"] != "12-3" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nunti.log")
	if err := EnableFileLogging(path); err != nil {
		t.Fatalf("EnableFileLogging: %v", err)
	}
	defer DisableFileLogging()
	SetLevel(WARN)
	defer SetLevel(INFO)

	DebugC("wizard", "hidden")
	InfoC("wizard", "hidden too")

	data, _ := os.ReadFile(path)
	if len(data) != 0 {
		t.Fatalf("expected no output below WARN, got %q", data)
	}
}
