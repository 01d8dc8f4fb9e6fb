package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if c.Port != "8080" || c.StoreDriver != "memory" || c.StoreTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.Roster() != [4]string{"James", "Lee", "Ben", "Steph"} {
		t.Fatalf("unexpected roster: %v", c.Roster())
	}
	opts := c.GameOptions()
	if opts.ExportFile != "" {
		t.Fatalf("export should be off by default, got %q", opts.ExportFile)
	}
	if opts.StrictLock {
		t.Fatal("strict lock should be off by default")
	}
}

func TestOverrides(t *testing.T) {
	t.Setenv("ROSTER_NAMES", "Ann, Bo ,Cy,Di")
	t.Setenv("STRICT_LOCK", "true")
	t.Setenv("EXPORT_ENABLED", "true")
	t.Setenv("EXPORT_FILE", "/tmp/out.txt")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if c.Roster() != [4]string{"Ann", "Bo", "Cy", "Di"} {
		t.Fatalf("unexpected roster: %v", c.Roster())
	}
	if len(c.KafkaBrokers) != 2 {
		t.Fatalf("expected two brokers, got %v", c.KafkaBrokers)
	}
	opts := c.GameOptions()
	if !opts.StrictLock || opts.ExportFile != "/tmp/out.txt" {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"short roster":     {"ROSTER_NAMES": "A,B,C"},
		"sqlite needs url": {"STORE_DRIVER": "sqlite"},
		"unknown driver":   {"STORE_DRIVER": "bolt"},
		"bad timeout":      {"STORE_TIMEOUT": "soon"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DEFAULT_TITLE=Kid A\nPORT=9090\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("DEFAULT_TITLE", "")
	os.Unsetenv("DEFAULT_TITLE")
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DefaultTitle != "Kid A" || c.Port != "9090" {
		t.Fatalf("expected values from env file, got %+v", c)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil || !strings.Contains(err.Error(), "load env file") {
		t.Fatalf("expected load error, got %v", err)
	}
}
