package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cgtracker/cgt/internal/model/core"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"scale": { "frameRate": 25, "resolution": 0.5, "units": "nm" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, core.Scale{FrameRate: 25, Resolution: 0.5, Units: "nm"}, GetScale())
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./cgtlogs", viper.GetString("logsDir"))
	assert.Equal(t, core.DefaultScale, GetScale())
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.False(t, viper.GetBool("metrics.enabled"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("metrics.exportInterval"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	LoadDefaults()

	cfg := GetStorageConfig()
	assert.Equal(t, "csv", cfg.Type)
	assert.Equal(t, "default", cfg.Project)
	assert.Equal(t, "./project", cfg.CSV.Dir)
	assert.Equal(t, "./cgt.db", cfg.SQLite.Path)
	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t, "5432", cfg.DB.Port)
	assert.Equal(t, "cgt", cfg.DB.Database)
	assert.Equal(t, "disable", cfg.DB.SSLMode)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"project": "quartz",
			"csv": { "dir": "/tmp/out" },
			"sqlite": { "path": "/tmp/cgt.db" },
			"db": { "host": "10.0.0.1", "port": "5433" }
		}
	}`)
	require.NoError(t, Load(dir))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "quartz", sc.Project)
	assert.Equal(t, "/tmp/out", sc.CSV.Dir)
	assert.Equal(t, "/tmp/cgt.db", sc.SQLite.Path)
	assert.Equal(t, "10.0.0.1", sc.DB.Host)
	assert.Equal(t, "5433", sc.DB.Port)
	assert.Equal(t, "postgres", sc.DB.Username)
}

func TestGetInfluxConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{"influx": {"enabled": true, "host": "influx.lab"}}`)))

	ic := GetInfluxConfig()
	assert.True(t, ic.Enabled)
	assert.Equal(t, "http://influx.lab:8086", ic.URL())
	assert.Equal(t, "cgt", ic.Org)
	assert.Equal(t, "displacement", ic.Bucket)
}
