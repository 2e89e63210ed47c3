package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"cloudpico-bridge/internal/config"
)

func TestNew_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo, BridgeName: "attic"}
	logger := newLogger(&buf, cfg, "1.2.3", "cloudpico-bridge")

	logger.Debug("hidden")
	logger.Info("hello", "devices", 3)

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not one JSON line: %v (%q)", err, buf.String())
	}
	for key, want := range map[string]any{
		"msg":     "hello",
		"app":     "cloudpico-bridge",
		"version": "1.2.3",
		"env":     "prod",
		"bridge":  "attic",
		"devices": float64(3),
	} {
		if got[key] != want {
			t.Errorf("%s = %v, want %v", key, got[key], want)
		}
	}
}

func TestNew_DevUsesTint(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug}, "dev", "cloudpico-bridge")
	logger.Debug("scanning", "adapter", "hci0")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Fatalf("dev output looks like JSON: %q", out)
	}
	if !strings.Contains(out, "scanning") || !strings.Contains(out, "adapter") || !strings.Contains(out, "hci0") {
		t.Errorf("dev output = %q", out)
	}
}
