package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapflow/dwell"
)

const sampleConfig = `
mode: register
client_id: bench-1
reader:
  type: serial
  device: /dev/ttyUSB0
  baud: 9600
dwell:
  max_attempts: 4
  poll_interval: 250ms
  reset: change
store:
  cards_file: /var/lib/tapflow/cards.json
api:
  url: https://board.example/api
  token: abc
  timeout: 3s
indicator:
  sound:
    player: paplay
  red_pin: 17
mqtt:
  host: broker.local
nats:
  url: nats://localhost:4222
audit:
  type: sqlite
  path: /var/lib/tapflow/audit.db
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tapflow.cfg")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TAPFLOW_API_URL", "")
	t.Setenv("TAPFLOW_API_TOKEN", "")
	t.Setenv("TAPFLOW_MODE", "")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig), true)
	require.NoError(t, err)

	assert.Equal(t, "register", cfg.Mode)
	assert.Equal(t, "bench-1", cfg.ClientID)
	assert.Equal(t, "serial", cfg.Reader.Type)
	assert.Equal(t, 9600, cfg.Reader.Baud)

	assert.Equal(t, 4, cfg.Dwell.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Dwell.PollInterval)
	assert.Equal(t, dwell.ResetOnChange, cfg.Dwell.Reset)
	assert.Equal(t, dwell.DefaultPolicy().SettleDelay, cfg.Dwell.SettleDelay)

	assert.Equal(t, "/var/lib/tapflow/cards.json", cfg.Store.CardsFile)
	assert.Equal(t, "data/tickets.json", cfg.Store.TicketsFile)
	assert.Equal(t, "https://board.example/api", cfg.API.URL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)

	assert.Equal(t, "paplay", cfg.Indicator.Sound.Player)
	require.NotNil(t, cfg.Indicator.RedPin)
	assert.Equal(t, uint8(17), *cfg.Indicator.RedPin)
	assert.Nil(t, cfg.Indicator.GreenPin)

	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "sqlite", cfg.Audit.Type)
}

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	t.Setenv("TAPFLOW_API_URL", "")
	t.Setenv("TAPFLOW_API_TOKEN", "")
	t.Setenv("TAPFLOW_MODE", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "tapflow.cfg"), false)
	require.NoError(t, err)

	assert.Equal(t, "ticket", cfg.Mode)
	assert.NotEmpty(t, cfg.ClientID)
	assert.Equal(t, "data/cards.json", cfg.Store.CardsFile)
	assert.Equal(t, "http://localhost/api", cfg.API.URL)
	assert.Equal(t, dwell.DefaultPolicy(), cfg.Dwell)
}

func TestLoadConfigExplicitMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.cfg"), true)
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("TAPFLOW_API_URL", "http://kanban:8080/api")
	t.Setenv("TAPFLOW_API_TOKEN", "from-env")
	t.Setenv("TAPFLOW_MODE", "ticket")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig), true)
	require.NoError(t, err)
	assert.Equal(t, "http://kanban:8080/api", cfg.API.URL)
	assert.Equal(t, "from-env", cfg.API.Token)
	assert.Equal(t, "ticket", cfg.Mode)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("TAPFLOW_MODE", "")

	_, err := LoadConfig(writeConfig(t, "mode: checkout\n"), true)
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "dwell:\n  reset: sometimes\n"), true)
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "mode: [unterminated\n"), true)
	assert.Error(t, err)
}

func TestEventPipeOnlyForSimReader(t *testing.T) {
	t.Setenv("TAPFLOW_MODE", "")

	cfg, err := LoadConfig(writeConfig(t, "event_pipe:\n  path: /tmp/tapflow-events\n"), true)
	require.NoError(t, err)
	assert.Empty(t, cfg.EventPipe.Path)

	cfg, err = LoadConfig(writeConfig(t, "reader:\n  type: sim\nevent_pipe:\n  path: /tmp/tapflow-events\n"), true)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/tapflow-events", cfg.EventPipe.Path)
}
