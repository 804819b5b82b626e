package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/hitoshi/paygate/internal/config"
)

// requiredEnv は起動に必要な最小限の環境変数。
var requiredEnv = map[string]string{
	"GOOGLE_CLIENT_ID":     "test-client-id",
	"GOOGLE_CLIENT_SECRET": "test-client-secret",
	"GOOGLE_CALLBACK_URL":  "http://localhost:8080/auth/login-callback",
	"SESSION_SECRET":       "test-session-secret",
	"RAZORPAY_KEY_ID":      "rzp_test_key",
	"RAZORPAY_KEY_SECRET":  "rzp_test_secret",
}

func setTestEnv(t *testing.T) {
	t.Helper()
	for k, v := range requiredEnv {
		t.Setenv(k, v)
	}
	t.Setenv("APP_ENV", "development")
	t.Setenv("SESSION_STORE_URL", "")
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	for k := range requiredEnv {
		t.Setenv(k, "")
	}
	t.Setenv("APP_ENV", "development")
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.RazorpayKeyID != "rzp_test_key" {
		t.Errorf("RazorpayKeyID = %q, want rzp_test_key", cfg.RazorpayKeyID)
	}

	// LOG_LEVELが反映されたJSONロガーがグローバルに設定されていること
	slog.Default().Debug("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithMissingConfig_ReturnsMissingError(t *testing.T) {
	clearTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}

	var missing *config.MissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *config.MissingError, got %T", err)
	}
	if len(missing.Names) != len(requiredEnv) {
		t.Errorf("missing = %v, want %d names", missing.Names, len(requiredEnv))
	}
	if !bytes.Contains(buf.Bytes(), []byte("GOOGLE_CLIENT_ID")) {
		t.Errorf("expected missing variable names in log, got %s", buf.String())
	}
}
