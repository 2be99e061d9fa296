package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-jwt-secret-key")
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901") // 32 bytes
	t.Setenv("FLINKS_CUSTOMER_ID", "43387ca6-0391-4c82-857d-70d95f087ecb")
}

func TestLoad_Success(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-jwt-secret-key", cfg.JWT.Secret)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 10*time.Second, cfg.Sync.PollInterval)
	assert.Equal(t, 18, cfg.Sync.MaxPolls)
	assert.Equal(t, 4*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, "sandbox", cfg.Flinks.Instance)
	assert.Equal(t, []string{"03:00", "15:00"}, cfg.Scheduler.Times)
}

func TestLoad_SectionPrefixes(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_SSL_MODE", "require")
	t.Setenv("SYNC_MAX_POLLS", "3")
	t.Setenv("RATE_LIMIT_AUTH_MAX", "4")
	t.Setenv("SCHEDULER_TIMES", "01:30,22:00")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, 3, cfg.Sync.MaxPolls)
	assert.Equal(t, 4, cfg.RateLimit.AuthMax)
	assert.Equal(t, []string{"01:30", "22:00"}, cfg.Scheduler.Times)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing JWT secret", map[string]string{"JWT_SECRET": ""}},
		{"missing encryption key", map[string]string{"ENCRYPTION_KEY": ""}},
		{"short encryption key", map[string]string{"ENCRYPTION_KEY": "too-short"}},
		{"missing customer id", map[string]string{"FLINKS_CUSTOMER_ID": ""}},
		{"invalid DB port", map[string]string{"DB_PORT": "not-a-number"}},
		{"zero poll interval", map[string]string{"SYNC_POLL_INTERVAL": "0s"}},
		{"zero max polls", map[string]string{"SYNC_MAX_POLLS": "0"}},
		{"bad schedule time", map[string]string{"SCHEDULER_TIMES": "25:99"}},
		{"TLS without cert", map[string]string{"TLS_ENABLED": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnvVars(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestConnectionString(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "claw",
		Password: "secret",
		Name:     "clawfinance",
		SSLMode:  "disable",
	}

	want := "host=db.internal port=5432 user=claw password=secret dbname=clawfinance sslmode=disable"
	assert.Equal(t, want, db.ConnectionString())
}

func TestFlinksBaseURL(t *testing.T) {
	tests := []struct {
		instance string
		want     string
	}{
		{"sandbox", "https://sandbox.flinks.com"},
		{"", "https://sandbox.flinks.com"},
		{"toolbox", "https://toolbox-api.private.fin.ag"},
	}

	for _, tt := range tests {
		t.Run(tt.instance, func(t *testing.T) {
			c := FlinksConfig{Instance: tt.instance}
			assert.Equal(t, tt.want, c.BaseURL())
		})
	}
}
