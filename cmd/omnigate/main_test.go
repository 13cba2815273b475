package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"omnigate/internal/config"
)

func testConfig(t *testing.T, port int) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Port = port
	cfg.Archive.Path = filepath.Join(t.TempDir(), "archive.db")
	return cfg
}

func TestNewApplication(t *testing.T) {
	app, err := NewApplication(testConfig(t, 18082))
	if err != nil {
		t.Fatalf("NewApplication() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}

func TestNewApplicationInvalidConfig(t *testing.T) {
	cfg := testConfig(t, 18083)
	cfg.HTTP.Port = 0

	if _, err := NewApplication(cfg); err == nil {
		t.Error("NewApplication() accepted invalid config")
	}
}

func TestApplicationStartStop(t *testing.T) {
	port := 18084
	app, err := NewApplication(testConfig(t, port))
	if err != nil {
		t.Fatalf("NewApplication() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() { _ = app.Stop(ctx) }()

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var body struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Status != "OK" || body.Service != "omnigate" {
		t.Errorf("health body = %+v", body)
	}
}
