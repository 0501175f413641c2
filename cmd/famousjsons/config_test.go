package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_FileThenEnv(t *testing.T) {
	// WHAT: YAML values load, environment variables override them, defaults fill the rest.
	path := filepath.Join(t.TempDir(), "famousjsons.yaml")
	yaml := `
listen: ":9000"
rpc_url: "https://rpc.example"
log_range: 5000
trust_proxy: true
state:
  db_path: "data/state.db"
  blocks_per_discount: 600
rate_limits:
  "POST /updateState": {max_requests: 2, window: 30s}
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7000")
	t.Setenv("RPC_URL", "https://other.example")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":7000" || cfg.RPCURL != "https://other.example" {
		t.Fatalf("env overrides: listen=%q rpc=%q", cfg.Listen, cfg.RPCURL)
	}
	if cfg.LogRange != 5000 || !cfg.TrustProxy || cfg.State.DBPath != "data/state.db" || cfg.State.BlocksPerDiscount != 600 {
		t.Fatalf("file values: %+v", cfg)
	}
	if cfg.ContractAddress != defaultContract || cfg.ReceiptAttempts != 60 || cfg.ReceiptInterval != 2*time.Second {
		t.Fatalf("defaults: %+v", cfg)
	}
	rl, ok := cfg.RateLimits["POST /updateState"]
	if !ok || rl.MaxRequests != 2 || rl.Window != 30*time.Second || len(cfg.RateLimits) != 1 {
		t.Fatalf("rate limits: %+v", cfg.RateLimits)
	}
}

func TestLoadConfig_BadLogRange(t *testing.T) {
	t.Setenv("LOG_RANGE", "lots")
	if _, err := loadConfig(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadConfig_TrustProxyEnv(t *testing.T) {
	t.Setenv("TRUST_PROXY", "false")
	cfg, err := loadConfig("")
	if err != nil || cfg.TrustProxy {
		t.Fatalf("TRUST_PROXY=false: %+v, %v", cfg, err)
	}
	t.Setenv("TRUST_PROXY", "maybe")
	if _, err := loadConfig(""); err == nil {
		t.Fatal("expected error for TRUST_PROXY=maybe")
	}
}
