package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"CASTOR_CONFIG_FILE",
		"CASTOR_RESERVATION_STORE",
		"CASTOR_CONSUMPTION_STORE_PREFIX",
		"CASTOR_TELEMETRY_INTERVAL",
		"CASTOR_TELEMETRY_TTL",
		"CASTOR_MASTER",
		"CASTOR_SLAVE_URIS",
		"CASTOR_SLAVE_WAIT_TIMEOUT",
		"CASTOR_SLAVE_RETRY_DELAY",
		"CASTOR_SERVER_HEARTBEAT",
		"CASTOR_CLIENT_HEARTBEAT",
		"CASTOR_MESSAGE_BUFFER",
		"CASTOR_LISTEN_ADDR",
		"CASTOR_POSTGRES_DSN",
		"CASTOR_REDIS_ADDR",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Master)
	assert.Empty(t, cfg.SlaveURIs)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CASTOR_MASTER", "true")
	t.Setenv("CASTOR_SLAVE_URIS", "http://b:8090, http://a:8090 ,http://a:8090")
	t.Setenv("CASTOR_TELEMETRY_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Master)
	// sorted and deduped, independent of the order given in the env var
	assert.Equal(t, []string{"http://a:8090", "http://b:8090"}, cfg.SlaveURIs)
	assert.Equal(t, 30*time.Second, cfg.TelemetryInterval)
}

func TestLoadAppliesYAMLOverlayBeforeEnv(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "castor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reservationStore: fromYAML\nmaster: false\n"), 0o600))

	t.Setenv("CASTOR_CONFIG_FILE", path)
	t.Setenv("CASTOR_RESERVATION_STORE", "fromEnv")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Master, "yaml-only key applies")
	assert.Equal(t, "fromEnv", cfg.ReservationStore, "env overrides yaml")
}

func TestValidateRejectsSlaveURIsOnNonMaster(t *testing.T) {
	cfg := Default()
	cfg.Master = false
	cfg.SlaveURIs = []string{"http://peer:8090"}

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveDurations(t *testing.T) {
	cfg := Default()
	cfg.TelemetryInterval = 0
	assert.Error(t, cfg.Validate())
}
