package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Shifts, 4)
	assert.Equal(t, "A", cfg.DefaultShift)
	assert.Len(t, cfg.Seed.Tasks, 8)
	assert.Equal(t, "admin", cfg.Seed.Admin.Username)
	ttl, err := cfg.TokenTTL()
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, ttl)
	assert.True(t, cfg.Shifts[1].IsActive())
}

func TestGenerateDefaultParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("Plant 7: line \"B\"")))
	require.NoError(t, err)
	assert.Equal(t, "Plant 7: line \"B\"", cfg.Site.Name)
}

func TestFromYAMLRejectsBadShift(t *testing.T) {
	_, err := FromYAML([]byte(`
shifts:
  - {name: A, start: "25:00", end: "15:30", days: "Mon"}
default_shift: A
`))
	assert.Error(t, err)

	_, err = FromYAML([]byte(`
shifts:
  - {name: A, start: "04:30", end: "15:30", days: "Mon"}
  - {name: A, start: "16:30", end: "03:30", days: "Mon"}
`))
	assert.ErrorContains(t, err, "duplicate")
}

func TestFromYAMLDefaultShift(t *testing.T) {
	cfg, err := FromYAML([]byte(`
shifts:
  - {name: Day, start: "06:00", end: "18:00", days: "Mon,Tue"}
  - {name: Night, start: "18:00", end: "06:00", days: "Mon,Tue", active: false}
`))
	require.NoError(t, err)
	assert.Equal(t, "Day", cfg.DefaultShift)
	assert.False(t, cfg.Shifts[1].IsActive())
	assert.False(t, cfg.Shifts[1].Def().Active)

	_, err = FromYAML([]byte(`
shifts:
  - {name: Day, start: "06:00", end: "18:00", days: "Mon"}
default_shift: Swing
`))
	assert.ErrorContains(t, err, "default_shift")
}

func TestFromYAMLSeedTasks(t *testing.T) {
	_, err := FromYAML([]byte(`
default_shift: A
seed:
  tasks:
    - {name: Oil, interval_type: fortnightly}
`))
	assert.ErrorContains(t, err, "interval_type")
}

func TestValidateServerAndWebhooks(t *testing.T) {
	cfg := Default()
	cfg.Server.TokenTTL = "soon"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Webhooks = []WebhookConfig{{URL: ""}}
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Site.Timezone = "Mars/Olympus_Mons"
	assert.Error(t, cfg.Validate())
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "A", cfg.DefaultShift)

	_, err = Load(dir)
	assert.ErrorContains(t, err, "tpm init")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tpm.yml"), []byte(GenerateDefault("x")), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.Site.Name)
}
