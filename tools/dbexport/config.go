package main

import (
	"fmt"
	"os"
	"path/filepath"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"

	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/datastore"
)

// maxBatchSize caps a single INSERT so it stays under MySQL's packet limit.
const maxBatchSize = 10000

// Config holds the configuration for the export tool.
type Config struct {
	// Source database
	SQLitePath string

	// Target database - either DSN or individual components
	MySQLDSN string
	MySQL    conf.MySQLSettings

	// Migration options
	BatchSize   int
	Clean       bool
	AutoMigrate bool
	SkipVerify  bool
	Verbose     bool

	// Config file path for fallback
	ConfigPath string
}

// Load validates the configuration, filling missing connection details from
// the application's config.yaml.
func (c *Config) Load() error {
	if c.SQLitePath == "" || (c.MySQLDSN == "" && c.MySQL.Host == "") {
		if err := c.loadFromConfigFile(); err != nil && c.SQLitePath == "" {
			return fmt.Errorf("--sqlite-path is required (or provide config.yaml): %w", err)
		}
	}

	if c.SQLitePath == "" {
		return fmt.Errorf("--sqlite-path is required (or provide config.yaml)")
	}
	if _, err := os.Stat(c.SQLitePath); err != nil {
		return fmt.Errorf("SQLite database not found: %s", c.SQLitePath)
	}
	if c.MySQLDSN == "" && c.MySQL.Host == "" {
		return fmt.Errorf("--mysql-dsn or --mysql-host is required")
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("batch-size must be at least 1")
	}
	if c.BatchSize > maxBatchSize {
		return fmt.Errorf("batch-size too large (max %d)", maxBatchSize)
	}

	return nil
}

// loadFromConfigFile reads the output section of the application's config.
func (c *Config) loadFromConfigFile() error {
	v := viper.New()

	configPath := c.ConfigPath
	if configPath == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			p := filepath.Join(homeDir, ".config", "oncoderma", "config.yaml")
			if _, statErr := os.Stat(p); statErr == nil {
				configPath = p
			}
		}
		if configPath == "" {
			configPath = "config.yaml"
		}
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if c.SQLitePath == "" {
		c.SQLitePath = v.GetString("output.sqlite.path")
	}

	if c.MySQLDSN == "" && c.MySQL.Host == "" && v.GetBool("output.mysql.enabled") {
		c.MySQL.Host = v.GetString("output.mysql.host")
		if port := v.GetString("output.mysql.port"); port != "" {
			c.MySQL.Port = port
		}
		c.MySQL.Username = v.GetString("output.mysql.username")
		c.MySQL.Password = v.GetString("output.mysql.password")
		c.MySQL.Database = v.GetString("output.mysql.database")
	}

	return nil
}

// GetMySQLDSN returns the DSN given on the command line, or builds one from
// the individual settings the same way the server does.
func (c *Config) GetMySQLDSN() string {
	if c.MySQLDSN != "" {
		return c.MySQLDSN
	}
	return datastore.MySQLDSN(&c.MySQL)
}

// SanitizedMySQLDSN returns the DSN with the password masked for display.
func (c *Config) SanitizedMySQLDSN() string {
	parsed, err := mysqldriver.ParseDSN(c.GetMySQLDSN())
	if err != nil {
		return "<invalid DSN>"
	}
	if parsed.Passwd != "" {
		parsed.Passwd = "****"
	}
	return parsed.FormatDSN()
}
