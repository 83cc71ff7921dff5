package strategyconfig

import (
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() must validate: %v", err)
	}
	if cfg.Watchlist.Size != 50 {
		t.Errorf("expected size=50, got %d", cfg.Watchlist.Size)
	}
	if cfg.Gates.ConfidenceFloor <= cfg.Gates.WFICThreshold {
		t.Error("confidence floor must sit above the walk-forward threshold")
	}
}

func TestParseOverrides(t *testing.T) {
	yamlData := []byte(`
model:
  type: elastic_net
  alpha: 0.5
  l1_ratio: 0.3
watchlist:
  size: 30
  min_retained: 20
  max_new: 10
`)
	cfg, err := Parse(yamlData)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Model.Type != "elastic_net" {
		t.Errorf("expected type=elastic_net, got %s", cfg.Model.Type)
	}
	if cfg.Watchlist.Size != 30 {
		t.Errorf("expected size=30, got %d", cfg.Watchlist.Size)
	}
	// 未指定のフィールドは Default のまま
	if cfg.Gates.WFFolds != 3 {
		t.Errorf("expected wf_folds=3, got %d", cfg.Gates.WFFolds)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	yamlData := []byte(`
gates:
  wf_ic_treshold: 0.05
`)
	if _, err := Parse(yamlData); err == nil {
		t.Fatal("expected error for misspelled key, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad model type", func(c *Config) { c.Model.Type = "ols" }, "model.type"},
		{"negative alpha", func(c *Config) { c.Model.Alpha = -1 }, "model.alpha"},
		{"l1 ratio above one", func(c *Config) { c.Model.L1Ratio = 1.5 }, "model.l1_ratio"},
		{"zero horizon", func(c *Config) { c.Model.HorizonDays = 0 }, "model.horizon_days"},
		{"no features", func(c *Config) { c.Model.Features = nil }, "model.features"},
		{"single wf fold", func(c *Config) { c.Gates.WFFolds = 1 }, "gates.wf_folds"},
		{"floor below threshold", func(c *Config) { c.Gates.ConfidenceFloor = 0.005 }, "gates.confidence_floor"},
		{"floor equals threshold", func(c *Config) { c.Gates.ConfidenceFloor = c.Gates.WFICThreshold }, "gates.confidence_floor"},
		{"retained above size", func(c *Config) { c.Watchlist.MinRetained = 60 }, "watchlist.min_retained"},
		{"negative slack", func(c *Config) { c.Watchlist.Slack = -1 }, "watchlist.slack"},
		{"zero risk_off multiplier", func(c *Config) { c.Watchlist.RegimeMultipliers.RiskOff = 0 }, "watchlist.regime_multipliers.risk_off"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.HasPrefix(err.Error(), tc.field) {
				t.Errorf("expected error on %s, got %q", tc.field, err.Error())
			}
		})
	}
}

func TestHashDeterministic(t *testing.T) {
	cfg := Default()
	h1, err := cfg.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 char hash, got %d", len(h1))
	}

	h2, _ := Default().Hash()
	if h1 != h2 {
		t.Error("hash not deterministic")
	}

	cfg.Gates.WFICThreshold = 0.015
	h3, _ := cfg.Hash()
	if h1 == h3 {
		t.Error("hash must change when a threshold changes")
	}
}
