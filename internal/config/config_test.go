package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
    t.Helper()
    t.Setenv("DATABASE_URL", "user:pass@tcp(localhost:3306)/cinema")
    t.Setenv("JWT_SECRET", "access-secret")
    t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func TestLoadDefaults(t *testing.T) {
    setRequiredEnv(t)

    cfg, err := Load()
    require.NoError(t, err)
    assert.Equal(t, "8080", cfg.Port)
    assert.Equal(t, 10*time.Minute, cfg.HoldTTL)
    assert.Equal(t, 15*time.Minute, cfg.BookingExpiry)
    assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
    assert.Equal(t, 10*time.Minute, cfg.HoldSweepInterval)
}

func TestLoadMissingSecrets(t *testing.T) {
    t.Setenv("DATABASE_URL", "")
    t.Setenv("JWT_SECRET", "")
    t.Setenv("JWT_REFRESH_SECRET", "")

    _, err := Load()
    assert.Error(t, err)
}

func TestLoadRejectsExpiryShorterThanHold(t *testing.T) {
    setRequiredEnv(t)
    t.Setenv("HOLD_TTL_SECONDS", "900")
    t.Setenv("BOOKING_EXPIRY_SECONDS", "600")

    _, err := Load()
    require.Error(t, err)
    assert.Contains(t, err.Error(), "BOOKING_EXPIRY_SECONDS")
}

func TestLoadHonorsOverrides(t *testing.T) {
    setRequiredEnv(t)
    t.Setenv("HOLD_TTL_SECONDS", "120")
    t.Setenv("BOOKING_EXPIRY_SECONDS", "120")

    cfg, err := Load()
    require.NoError(t, err)
    assert.Equal(t, 2*time.Minute, cfg.HoldTTL)
    assert.Equal(t, cfg.HoldTTL, cfg.BookingExpiry, "equal windows are allowed")
}
