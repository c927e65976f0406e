package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "settlement-service")

	cfg := Load()

	assert.Equal(t, "8084", cfg.HTTPPort)
	assert.Equal(t, "9100", cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.SettlementTimeout)
	assert.Equal(t, 4, cfg.SettlementWorkers)
	assert.Equal(t, "round_result_submitted", cfg.TopicResultSubmitted)
	assert.Equal(t, []string{"admin"}, cfg.AdminRoles)
	assert.Empty(t, cfg.WalletURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "settlement-worker")
	t.Setenv("SETTLEMENT_TIMEOUT", "45s")
	t.Setenv("SETTLEMENT_WORKERS", "not-a-number")
	t.Setenv("ADMIN_ROLES", " admin, results-operator ,,")
	t.Setenv("WIN_RATE_PATTI", "95")

	cfg := Load()

	assert.Equal(t, "", cfg.HTTPPort)
	assert.Equal(t, "9101", cfg.MetricsPort)
	assert.Equal(t, 45*time.Second, cfg.SettlementTimeout)
	assert.Equal(t, 4, cfg.SettlementWorkers)
	assert.Equal(t, []string{"admin", "results-operator"}, cfg.AdminRoles)
	assert.Equal(t, "95", cfg.WinRatePatti)
}
