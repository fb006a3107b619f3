package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Search.DefaultLimit != 20 || cfg.Search.DefaultMode != "expand" {
		t.Errorf("unexpected defaults: %+v %+v", cfg.Server, cfg.Search)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trix.yaml")
	yaml := `
server:
  port: 9000
indexes:
  - name: genes
    path: /data/genes.ix
    mode: exact
    snippets: true
search:
  defaultLimit: 5
  maxResults: 50
  timeout: 2s
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRIX_SERVER_PORT", "9100")
	t.Setenv("TRIX_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if len(cfg.Indexes) != 1 || cfg.Indexes[0].Name != "genes" || cfg.Indexes[0].Mode != "exact" || !cfg.Indexes[0].Snippets {
		t.Errorf("indexes = %+v", cfg.Indexes)
	}
	if cfg.Search.Timeout != 2*time.Second || cfg.Search.DefaultLimit != 5 {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("read timeout default lost: %v", cfg.Server.ReadTimeout)
	}
}

func TestIndexListFromEnv(t *testing.T) {
	t.Setenv("TRIX_INDEXES", "genes=/data/genes.ix, snps=/data/snps.ix,broken")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Indexes) != 2 || cfg.Indexes[1].Name != "snps" || cfg.Indexes[1].Path != "/data/snps.ix" {
		t.Errorf("indexes = %+v", cfg.Indexes)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"unnamed index", func(c *Config) { c.Indexes = []IndexConfig{{Path: "a.ix"}} }},
		{"index without path", func(c *Config) { c.Indexes = []IndexConfig{{Name: "a"}} }},
		{"duplicate index", func(c *Config) {
			c.Indexes = []IndexConfig{{Name: "a", Path: "a.ix"}, {Name: "a", Path: "b.ix"}}
		}},
		{"limit above max", func(c *Config) { c.Search.DefaultLimit = c.Search.MaxResults + 1 }},
		{"zero limit", func(c *Config) { c.Search.DefaultLimit = 0 }},
	}
	for _, tt := range tests {
		cfg := defaultConfig()
		tt.edit(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate succeeded", tt.name)
		}
	}
}
