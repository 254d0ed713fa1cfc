package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"SERVER_PORT", "PORT", "STORE_DRIVER", "EVENTS_DRIVER", "SESSION_MAX_AGE_HOURS", "BRANCH_REFRESH_SCHEDULE"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.StoreDriver != StoreDriverFirestore || cfg.EventsDriver != EventsDriverNone {
		t.Fatalf("unexpected drivers %q / %q", cfg.StoreDriver, cfg.EventsDriver)
	}
	if cfg.SessionMaxAgeHours != 12 || cfg.SessionCacheTTLSeconds != 60 || cfg.KycSignedURLTTLMinutes != 15 {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
	if cfg.BranchRefreshSchedule != "@every 5m" {
		t.Fatalf("unexpected schedule %q", cfg.BranchRefreshSchedule)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "8443")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8443" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_ProjectIDAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "FIREBASE_PROJECT_ID")
	setEnvWithCleanup(t, "GOOGLE_CLOUD_PROJECT", "lending-prod")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.FirebaseProjectID != "lending-prod" {
		t.Fatalf("expected project id from alias, got %q", cfg.FirebaseProjectID)
	}
}

func TestLoadConfig_CoercesUnknownDrivers(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "STORE_DRIVER", "Mongo")
	setEnvWithCleanup(t, "EVENTS_DRIVER", "kafka")
	setEnvWithCleanup(t, "SESSION_MAX_AGE_HOURS", "-3")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StoreDriver != StoreDriverFirestore {
		t.Fatalf("expected fallback to firestore, got %q", cfg.StoreDriver)
	}
	if cfg.EventsDriver != EventsDriverNone {
		t.Fatalf("expected events disabled, got %q", cfg.EventsDriver)
	}
	if cfg.SessionMaxAgeHours != 12 {
		t.Fatalf("expected default max age, got %d", cfg.SessionMaxAgeHours)
	}
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "STORE_DRIVER")
	unsetEnvWithCleanup(t, "ALLOWED_ORIGINS")
	dir := t.TempDir()
	content := "STORE_DRIVER=memory\nALLOWED_ORIGINS=https://console.example.com, http://localhost:3000\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("expected memory driver from .env, got %q", cfg.StoreDriver)
	}
	want := []string{"https://console.example.com", "http://localhost:3000"}
	if got := cfg.Origins(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected origins %v, got %v", want, got)
	}
}

func TestLoadConfig_TrustedProxies(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "TRUSTED_PROXIES", " 10.0.0.0/8, ,203.0.113.7 ")
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := []string{"10.0.0.0/8", "203.0.113.7"}
	if got := cfg.Proxies(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected proxies %v, got %v", want, got)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
