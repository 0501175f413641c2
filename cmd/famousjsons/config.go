package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/famousjsons/gallery"
	"github.com/hazyhaar/famousjsons/projectstate"
	"github.com/hazyhaar/famousjsons/shield"
)

// defaultContract is the FamousJSONs token on Goerli.
const defaultContract = "0x781D0b802A32224f0d6670Bbb5654A90B1C2a6A0"

// appConfig is the famousjsons.yaml file.
type appConfig struct {
	Listen          string `yaml:"listen"`
	RPCURL          string `yaml:"rpc_url"`
	ContractAddress string `yaml:"contract_address"`

	// LogRange caps the block span of one eth_getLogs query. 0 = no cap.
	LogRange      uint64 `yaml:"log_range"`
	CollectionDir string `yaml:"collection_dir"`
	SiteURL       string `yaml:"site_url"`
	FontPath      string `yaml:"font_path"`
	MaxUpload     int64  `yaml:"max_upload_bytes"`

	// ReceiptPoll bounds POST /confirmMint.
	ReceiptAttempts int           `yaml:"receipt_attempts"`
	ReceiptInterval time.Duration `yaml:"receipt_interval"`

	CORS       shield.CORSConfig           `yaml:"cors"`
	RateLimits map[string]shield.RateLimit `yaml:"rate_limits"`

	// TrustProxy keys rate limits by X-Forwarded-For. Only set it behind a
	// proxy that appends the client address to that header.
	TrustProxy bool `yaml:"trust_proxy"`
	State      projectstate.Config         `yaml:"state"`
}

func (c *appConfig) defaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.ContractAddress == "" {
		c.ContractAddress = defaultContract
	}
	if c.CollectionDir == "" {
		c.CollectionDir = "public"
	}
	if c.SiteURL == "" {
		c.SiteURL = gallery.DefaultSiteURL
	}
	if c.MaxUpload <= 0 {
		c.MaxUpload = 10 << 20
	}
	if c.ReceiptAttempts <= 0 {
		c.ReceiptAttempts = 60
	}
	if c.ReceiptInterval <= 0 {
		c.ReceiptInterval = 2 * time.Second
	}
	if c.RateLimits == nil {
		c.RateLimits = map[string]shield.RateLimit{
			"POST /updateState": {MaxRequests: 6, Window: time.Minute},
			"POST /confirmMint": {MaxRequests: 10, Window: time.Minute},
			"POST /mosaic":      {MaxRequests: 20, Window: time.Minute},
		}
	}
}

// loadConfig reads path (optional) then applies environment overrides.
func loadConfig(path string) (*appConfig, error) {
	cfg := &appConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.Listen = env("LISTEN", cfg.Listen)
	if port := os.Getenv("PORT"); port != "" {
		cfg.Listen = ":" + port
	}
	cfg.RPCURL = env("RPC_URL", cfg.RPCURL)
	cfg.ContractAddress = env("CONTRACT_ADDRESS", cfg.ContractAddress)
	cfg.CollectionDir = env("COLLECTION_DIR", cfg.CollectionDir)
	cfg.SiteURL = env("SITE_URL", cfg.SiteURL)
	cfg.FontPath = env("FONT_PATH", cfg.FontPath)
	cfg.State.DBPath = env("STATE_DB", cfg.State.DBPath)
	if v := os.Getenv("LOG_RANGE"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("LOG_RANGE: %w", err)
		}
		cfg.LogRange = n
	}
	if v := os.Getenv("TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("TRUST_PROXY: %w", err)
		}
		cfg.TrustProxy = b
	}

	cfg.defaults()
	return cfg, nil
}
