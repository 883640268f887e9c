package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
general_params:
  env: test
  secret_key: s3cret
main_db_params:
  driver: memory
chat_params:
  grace_period: 250ms
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cm, err := NewConfigManager(writeConfig(t, testYAML))
	require.NoError(t, err)

	c := cm.GetConfig()
	require.NoError(t, c.Validate())

	assert.Equal(t, "memory", c.MainDBParams.Driver)
	assert.Equal(t, 250*time.Millisecond, c.ChatParams.GracePeriod)
	assert.Equal(t, 50, c.ChatParams.HistoryLimit)
	assert.Equal(t, 24*time.Hour, c.ChatParams.MessageTTL)
	assert.Equal(t, "0.0.0.0:5000", c.HttpServerParams.GetAddress())
}

func TestValidateRejectsPostgresWithoutHost(t *testing.T) {
	cm, err := NewConfigManager(writeConfig(t, `
general_params:
  env: prod
  secret_key: s3cret
main_db_params:
  driver: postgres
`))
	require.NoError(t, err)

	assert.ErrorContains(t, cm.GetConfig().Validate(), "host is required")
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	cm, err := NewConfigManager(writeConfig(t, `
general_params:
  env: dev
main_db_params:
  driver: memory
`))
	require.NoError(t, err)

	assert.ErrorContains(t, cm.GetConfig().Validate(), "secret_key")
}

func TestGetDSN(t *testing.T) {
	db := MainDBParams{Username: "u", Password: "p", Host: "db", Port: 5432, Name: "echonet", Timeout: 3}
	assert.Equal(t, "postgres://u:p@db:5432/echonet?connect_timeout=3&sslmode=disable", db.GetDSN())
	assert.Equal(t, 3*time.Second, db.DBTimeout())
}
