package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lumiere-backend/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/points")
	t.Setenv("GATEWAY_SERVICE_TOKEN", "secret")

	cfg, _, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5200", cfg.Port)
	assert.Equal(t, []string{"http://localhost:9000"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(100), cfg.WelcomeBonus)
	assert.Equal(t, "per_ten", cfg.AccrualPolicy)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileEvery)
	assert.Equal(t, 500, cfg.ReconcileBatch)
	assert.False(t, cfg.R2.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/points")
	t.Setenv("GATEWAY_SERVICE_TOKEN", "secret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("WELCOME_BONUS_POINTS", "0")
	t.Setenv("RECONCILE_INTERVAL", "30s")
	t.Setenv("CLOUDFLARE_ACCOUNT_ID", "acc")
	t.Setenv("R2_BUCKET_NAME", "rewards")

	cfg, _, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Zero(t, cfg.WelcomeBonus)
	assert.Equal(t, 30*time.Second, cfg.ReconcileEvery)
	assert.True(t, cfg.R2.Enabled())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{"GATEWAY_SERVICE_TOKEN": "x"}},
		{"missing token", map[string]string{"DATABASE_URL": "postgres://x"}},
		{"negative bonus", map[string]string{"DATABASE_URL": "postgres://x", "GATEWAY_SERVICE_TOKEN": "x", "WELCOME_BONUS_POINTS": "-1"}},
		{"bad duration", map[string]string{"DATABASE_URL": "postgres://x", "GATEWAY_SERVICE_TOKEN": "x", "SYNC_INTERVAL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv("GATEWAY_SERVICE_TOKEN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, _, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadTiers(t *testing.T) {
	tiers, err := LoadTiers("")
	require.NoError(t, err)
	assert.Equal(t, 4, tiers.MaxLevel())

	path := filepath.Join(t.TempDir(), "tiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tiers:
  - level: 1
    min_points: 0
    max_points: 499
    title: Básico
    perks: ["Frete grátis"]
  - level: 2
    min_points: 500
    title: Premium
`), 0o600))

	tiers, err = LoadTiers(path)
	require.NoError(t, err)
	assert.Equal(t, 2, tiers.MaxLevel())
	got, err := tiers.Resolve(500)
	require.NoError(t, err)
	assert.Equal(t, "Premium", got.Title)

	_, err = LoadTiers(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseTiers_RejectsGaps(t *testing.T) {
	_, err := ParseTiers([]byte(`
tiers:
  - {level: 1, min_points: 0, max_points: 10, title: A}
  - {level: 2, min_points: 20, title: B}
`))
	assert.True(t, errors.Is(err, services.ErrInvalidTierTable))
}
