package config

import (
	"fmt"
	"time"

	"github.com/cgtracker/cgt/internal/model/core"
	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory
const FileName = "cgt.cfg.json"

// CSVConfig holds directory-of-CSV storage settings
type CSVConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
}

// SQLiteConfig holds SQLite storage settings
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// DBConfig holds Postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslMode" mapstructure:"sslMode"`
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	Type    string       `json:"type" mapstructure:"type"` // csv, sqlite or postgres
	Project string       `json:"project" mapstructure:"project"`
	CSV     CSVConfig    `json:"csv" mapstructure:"csv"`
	SQLite  SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	DB      DBConfig     `json:"db" mapstructure:"db"`
}

// InfluxConfig holds InfluxDB export settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the server address
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// LoadDefaults sets default values without reading a file
func LoadDefaults() {
	setDefaults()
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./cgtlogs")

	viper.SetDefault("scale.frameRate", core.DefaultScale.FrameRate)
	viper.SetDefault("scale.resolution", core.DefaultScale.Resolution)
	viper.SetDefault("scale.units", core.DefaultScale.Units)

	viper.SetDefault("storage.type", "csv")
	viper.SetDefault("storage.project", "default")
	viper.SetDefault("storage.csv.dir", "./project")
	viper.SetDefault("storage.sqlite.path", "./cgt.db")

	viper.SetDefault("storage.db.host", "localhost")
	viper.SetDefault("storage.db.port", "5432")
	viper.SetDefault("storage.db.username", "postgres")
	viper.SetDefault("storage.db.password", "postgres")
	viper.SetDefault("storage.db.database", "cgt")
	viper.SetDefault("storage.db.sslMode", "disable")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "cgt")
	viper.SetDefault("influx.bucket", "displacement")

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.exportInterval", "30s")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// Set overrides a config value, as command line flags do
func Set(key string, value any) {
	viper.Set(key, value)
}

// GetStorageConfig returns the storage section
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:    viper.GetString("storage.type"),
		Project: viper.GetString("storage.project"),
		CSV: CSVConfig{
			Dir: viper.GetString("storage.csv.dir"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
		DB: DBConfig{
			Host:     viper.GetString("storage.db.host"),
			Port:     viper.GetString("storage.db.port"),
			Username: viper.GetString("storage.db.username"),
			Password: viper.GetString("storage.db.password"),
			Database: viper.GetString("storage.db.database"),
			SSLMode:  viper.GetString("storage.db.sslMode"),
		},
	}
}

// GetInfluxConfig returns the influx section
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetScale returns the configured default scale for projects without one
func GetScale() core.Scale {
	return core.Scale{
		FrameRate:  viper.GetFloat64("scale.frameRate"),
		Resolution: viper.GetFloat64("scale.resolution"),
		Units:      viper.GetString("scale.units"),
	}
}
