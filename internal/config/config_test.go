package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != defaultListen || cfg.RefreshCron != defaultRefreshCron || cfg.Planner.TimeoutSeconds != defaultPlannerTimeout {
		t.Fatalf("got %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "listen: \":9000\"\nlog_level: LOUD\nplanner:\n  endpoint: http://localhost:11434/\nbasic_auth:\n  username: admin\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9000" || cfg.LogLevel != "info" || cfg.CORSOrigin != "*" {
		t.Fatalf("got %+v", cfg)
	}
	if cfg.Planner.Endpoint != "http://localhost:11434" || cfg.Planner.Model != defaultPlannerModel {
		t.Fatalf("planner %+v", cfg.Planner)
	}
	if cfg.BasicAuth != nil {
		t.Fatal("half-filled basic auth kept")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	cfg.Planner.Endpoint = "http://llm:11434"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.BasicAuth == nil || got.BasicAuth.Username != "u" || got.Planner.Endpoint != "http://llm:11434" {
		t.Fatalf("got %+v", got)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvListen:          ":7070",
		EnvLogLevel:        "DEBUG",
		EnvPlannerEndpoint: "http://ollama:11434/",
		EnvPlannerTimeout:  "5",
		EnvPlannerModel:    "  ",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.Listen != ":7070" || cfg.LogLevel != "debug" {
		t.Fatalf("got %+v", cfg)
	}
	if cfg.Planner.Endpoint != "http://ollama:11434" || cfg.Planner.TimeoutSeconds != 5 || cfg.Planner.Model != defaultPlannerModel {
		t.Fatalf("planner %+v", cfg.Planner)
	}
}
