package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kiliankoe/albumnight/internal/config"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.LogLevel = "disabled"
	setupLogging(cfg)
	return cfg
}

func TestRunReturnsStartupErrors(t *testing.T) {
	cases := []struct {
		name string
		edit func(*config.Config)
		want string
	}{
		{"missing sqlite dsn", func(c *config.Config) { c.StoreDriver = "sqlite"; c.DatabaseURL = "" }, "open sqlite store"},
		{"bad redis url after store opened", func(c *config.Config) {
			c.StoreDriver = "sqlite"
			c.DatabaseURL = filepath.Join(t.TempDir(), "db", "album.db")
			c.RedisURL = "not-a-redis-url"
		}, "redis url"},
		{"bad port", func(c *config.Config) { c.Port = "no-such-port" }, "listen on :no-such-port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig(t)
			tc.edit(&cfg)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- run(ctx, cfg) }()
			select {
			case err := <-done:
				if err == nil || !strings.Contains(err.Error(), tc.want) {
					t.Fatalf("expected error containing %q, got %v", tc.want, err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("run did not return")
			}
		})
	}
}

func TestRunStopsWithContext(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Port = "0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestCorsConfig(t *testing.T) {
	if c := corsConfig([]string{"*"}); !c.AllowAllOrigins || c.AllowCredentials {
		t.Fatalf("expected wildcard origins without credentials, got %+v", c)
	}
	c := corsConfig([]string{"https://tv.example"})
	if c.AllowAllOrigins || !c.AllowCredentials || len(c.AllowOrigins) != 1 {
		t.Fatalf("expected an explicit origin list, got %+v", c)
	}
}
