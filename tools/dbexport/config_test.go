package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncoderma/oncoderma-go/internal/conf"
)

func TestSanitizedMySQLDSN(t *testing.T) {
	t.Parallel()

	cfg := &Config{MySQL: conf.MySQLSettings{
		Host: "db", Port: "3306", Username: "onco", Password: "s3cret", Database: "oncoderma",
	}}
	dsn := cfg.SanitizedMySQLDSN()
	assert.Contains(t, dsn, "onco:****@tcp(db:3306)/oncoderma")
	assert.NotContains(t, dsn, "s3cret")

	cfg = &Config{MySQLDSN: "root:pw@tcp(localhost:3306)/x"}
	assert.Equal(t, "root:pw@tcp(localhost:3306)/x", cfg.GetMySQLDSN())
	assert.Contains(t, cfg.SanitizedMySQLDSN(), "root:****@")
}

func TestConfigLoad(t *testing.T) {
	t.Parallel()

	sqlitePath := filepath.Join(t.TempDir(), "oncoderma.db")
	require.NoError(t, os.WriteFile(sqlitePath, nil, 0o600))

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
output:
  sqlite:
    path: `+sqlitePath+`
  mysql:
    enabled: true
    host: db.internal
    port: "3307"
    username: onco
    password: pw
    database: scans
`), 0o600))

	t.Run("falls back to config file", func(t *testing.T) {
		t.Parallel()
		cfg := &Config{ConfigPath: configPath, BatchSize: 100}
		require.NoError(t, cfg.Load())
		assert.Equal(t, sqlitePath, cfg.SQLitePath)
		assert.Equal(t, "db.internal", cfg.MySQL.Host)
		assert.Equal(t, "3307", cfg.MySQL.Port)
		assert.Equal(t, "scans", cfg.MySQL.Database)
	})

	t.Run("flags win over config file", func(t *testing.T) {
		t.Parallel()
		cfg := &Config{ConfigPath: configPath, BatchSize: 100, MySQLDSN: "u:p@tcp(other:3306)/d"}
		require.NoError(t, cfg.Load())
		assert.Empty(t, cfg.MySQL.Host)
		assert.Equal(t, "u:p@tcp(other:3306)/d", cfg.GetMySQLDSN())
	})

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"missing sqlite file", Config{SQLitePath: filepath.Join(t.TempDir(), "nope.db"), MySQLDSN: "u:p@tcp(h)/d", BatchSize: 1}, "SQLite database not found"},
		{"missing target", Config{SQLitePath: sqlitePath, ConfigPath: filepath.Join(t.TempDir(), "none.yaml"), BatchSize: 1}, "--mysql-dsn or --mysql-host"},
		{"batch too small", Config{SQLitePath: sqlitePath, MySQLDSN: "u:p@tcp(h)/d"}, "at least 1"},
		{"batch too large", Config{SQLitePath: sqlitePath, MySQLDSN: "u:p@tcp(h)/d", BatchSize: maxBatchSize + 1}, "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
