package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TAX_RATE", "")
	t.Setenv("LATE_THRESHOLD", "")
	t.Setenv("EVENT_BROKERS", "")

	cfg := Load()

	if !cfg.TaxRate.Equal(decimal.RequireFromString("0.16")) {
		t.Errorf("TaxRate: got %s, want 0.16", cfg.TaxRate)
	}
	if cfg.LateThreshold != 30*time.Minute {
		t.Errorf("LateThreshold: got %s, want 30m", cfg.LateThreshold)
	}
	if len(cfg.EventBrokers) != 0 {
		t.Errorf("EventBrokers: got %v, want empty", cfg.EventBrokers)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TAX_RATE", "0.11")
	t.Setenv("LATE_THRESHOLD", "45m")
	t.Setenv("EVENT_BROKERS", "kafka, NATS")

	cfg := Load()

	if !cfg.TaxRate.Equal(decimal.RequireFromString("0.11")) {
		t.Errorf("TaxRate: got %s, want 0.11", cfg.TaxRate)
	}
	if cfg.LateThreshold != 45*time.Minute {
		t.Errorf("LateThreshold: got %s, want 45m", cfg.LateThreshold)
	}
	if !cfg.BrokerEnabled("kafka") || !cfg.BrokerEnabled("nats") {
		t.Errorf("expected kafka and nats enabled, got %v", cfg.EventBrokers)
	}
	if cfg.BrokerEnabled("amqp") {
		t.Error("amqp should not be enabled")
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TAX_RATE", "-0.5")
	t.Setenv("LATE_THRESHOLD", "soon")

	cfg := Load()

	if !cfg.TaxRate.Equal(decimal.RequireFromString("0.16")) {
		t.Errorf("TaxRate: got %s, want fallback 0.16", cfg.TaxRate)
	}
	if cfg.LateThreshold != 30*time.Minute {
		t.Errorf("LateThreshold: got %s, want fallback 30m", cfg.LateThreshold)
	}
}
