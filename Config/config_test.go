package Config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvDefaults(t *testing.T) {
	cfg, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, ":3005", cfg.Server.Address)
	assert.Equal(t, 115200, cfg.Device.BaudRate)
	assert.Equal(t, "smart", cfg.Device.RequestMode)
	assert.Equal(t, 3500, cfg.Monitor.MaxPoints)
	assert.Equal(t, 100*time.Millisecond, cfg.Monitor.DisplayInterval())
	assert.Equal(t, "./PatientRecords", cfg.Storage.RecordsDir)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("MONITOR_MAX_POINTS", "100")
	t.Setenv("DEVICE_REQUEST_MODE", "continuous")
	t.Setenv("FIREBASE_NOTIFICATIONS", "true")

	cfg, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 100, cfg.Monitor.MaxPoints)
	assert.Equal(t, "continuous", cfg.Device.RequestMode)
	assert.True(t, cfg.Firebase.Notifications)
}

func TestOrigins(t *testing.T) {
	c := ServerConfig{AllowOrigins: "http://localhost:3000, https://pulse.example.org ,"}
	assert.Equal(t, []string{"http://localhost:3000", "https://pulse.example.org"}, c.Origins())
}
