package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/oncoderma/oncoderma-go/internal/datastore"
)

// Migrator copies rows from the source database to the target database.
type Migrator struct {
	cfg      Config
	sourceDB *gorm.DB
	targetDB *gorm.DB
	out      io.Writer
}

// MigrationStats tracks migration statistics.
type MigrationStats struct {
	StartTime time.Time
	EndTime   time.Time
	Tables    []TableStats
}

// TableStats tracks per-table migration statistics.
type TableStats struct {
	Name      string
	Migrated  int64
	Skipped   int64
	Errors    int64
	Duration  time.Duration
	BatchSize int
}

// Print writes the migration summary to w.
func (s *MigrationStats) Print(w io.Writer) {
	rule := strings.Repeat("-", 70)

	fmt.Fprintln(w, "\n=== Migration Summary ===")
	fmt.Fprintf(w, "Duration: %s\n\n", s.EndTime.Sub(s.StartTime).Round(time.Millisecond))
	fmt.Fprintf(w, "%-25s %10s %10s %10s %12s\n", "Table", "Migrated", "Skipped", "Errors", "Duration")
	fmt.Fprintln(w, rule)

	var totalMigrated, totalSkipped, totalErrors int64
	for _, t := range s.Tables {
		fmt.Fprintf(w, "%-25s %10d %10d %10d %12s\n",
			t.Name, t.Migrated, t.Skipped, t.Errors, t.Duration.Round(time.Millisecond))
		totalMigrated += t.Migrated
		totalSkipped += t.Skipped
		totalErrors += t.Errors
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-25s %10d %10d %10d\n", "TOTAL", totalMigrated, totalSkipped, totalErrors)
}

// table describes one table in copy order.
type table struct {
	name    string
	model   any
	migrate func(ctx context.Context, m *Migrator, tableName string, batchSize int) (*TableStats, error)
}

// tables lists the schema in foreign key order. Cleaning walks it backwards.
var tables = []table{
	{"users", &datastore.User{}, migrateTable[datastore.User]},
	{"user_profiles", &datastore.UserProfile{}, migrateTable[datastore.UserProfile]},
	{"predictions", &datastore.Prediction{}, migrateTable[datastore.Prediction]},
}

// NewMigrator opens the SQLite source and MySQL target.
func NewMigrator(cfg *Config, out io.Writer) (*Migrator, error) {
	logLevel := logger.Silent
	if cfg.Verbose {
		logLevel = logger.Info
	}
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	sourceDB, err := gorm.Open(sqlite.Open(cfg.SQLitePath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	targetDB, err := gorm.Open(mysql.Open(cfg.GetMySQLDSN()), gormConfig)
	if err != nil {
		closeDB(sourceDB)
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	m := newMigrator(cfg, sourceDB, targetDB, out)
	if err := m.ping(); err != nil {
		m.Close()
		return nil, err
	}

	fmt.Fprintln(out, "Database connections established successfully")
	return m, nil
}

// newMigrator wires already opened connections.
func newMigrator(cfg *Config, sourceDB, targetDB *gorm.DB, out io.Writer) *Migrator {
	return &Migrator{cfg: *cfg, sourceDB: sourceDB, targetDB: targetDB, out: out}
}

func (m *Migrator) ping() error {
	for name, db := range map[string]*gorm.DB{"source": m.sourceDB, "target": m.targetDB} {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get %s connection: %w", name, err)
		}
		if err := sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to ping %s database: %w", name, err)
		}
	}
	return nil
}

// Close closes both database connections.
func (m *Migrator) Close() {
	closeDB(m.sourceDB)
	closeDB(m.targetDB)
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// targetIsMySQL reports whether foreign key checks and TRUNCATE are available.
func (m *Migrator) targetIsMySQL() bool {
	return m.targetDB.Name() == "mysql"
}

// Run executes the full migration.
func (m *Migrator) Run(ctx context.Context) (*MigrationStats, error) {
	stats := &MigrationStats{StartTime: time.Now()}

	if m.cfg.AutoMigrate {
		fmt.Fprintln(m.out, "Creating tables in target database...")
		if err := m.targetDB.WithContext(ctx).AutoMigrate(datastore.Models()...); err != nil {
			return nil, fmt.Errorf("failed to auto-migrate tables: %w", err)
		}
	}

	if m.targetIsMySQL() {
		// Rows are copied in dependency order, but --clean truncates parents
		if err := m.targetDB.Exec("SET FOREIGN_KEY_CHECKS=0").Error; err != nil {
			return nil, fmt.Errorf("failed to disable foreign key checks: %w", err)
		}
		defer m.targetDB.Exec("SET FOREIGN_KEY_CHECKS=1")
	}

	if m.cfg.Clean {
		m.cleanTables(ctx)
	}

	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		tableStats, err := t.migrate(ctx, m, t.name, m.cfg.BatchSize)
		if err != nil {
			return stats, fmt.Errorf("failed to migrate %s: %w", t.name, err)
		}
		stats.Tables = append(stats.Tables, *tableStats)
	}

	stats.EndTime = time.Now()
	return stats, nil
}

// cleanTables empties the target tables, children first.
func (m *Migrator) cleanTables(ctx context.Context) {
	fmt.Fprintln(m.out, "Cleaning target tables...")
	db := m.targetDB.WithContext(ctx)

	for i := len(tables) - 1; i >= 0; i-- {
		name := tables[i].name
		var err error
		if m.targetIsMySQL() {
			err = db.Exec("TRUNCATE TABLE " + name).Error
		}
		if err != nil || !m.targetIsMySQL() {
			err = db.Exec("DELETE FROM " + name).Error
		}
		if err != nil {
			fmt.Fprintf(m.out, "Warning: could not clean table %s: %v\n", name, err)
		} else if m.cfg.Verbose {
			fmt.Fprintf(m.out, "  Cleaned: %s\n", name)
		}
	}
}

// migrateTable copies every row of T in batches. Rows whose primary key
// already exists in the target are counted as skipped.
func migrateTable[T any](ctx context.Context, m *Migrator, tableName string, batchSize int) (*TableStats, error) {
	start := time.Now()
	stats := &TableStats{Name: tableName, BatchSize: batchSize}

	fmt.Fprintf(m.out, "Migrating %s...\n", tableName)

	var sourceCount int64
	if err := m.sourceDB.WithContext(ctx).Model(new(T)).Count(&sourceCount).Error; err != nil {
		return stats, fmt.Errorf("failed to count source records: %w", err)
	}
	if sourceCount == 0 {
		fmt.Fprintf(m.out, "  %s: no records to migrate\n", tableName)
		stats.Duration = time.Since(start)
		return stats, nil
	}

	var processed int64
	batchNum := 0

	err := m.sourceDB.WithContext(ctx).Model(new(T)).FindInBatches(new([]T), batchSize, func(tx *gorm.DB, batch int) error {
		batchNum++
		records := tx.Statement.Dest.(*[]T)

		// Select("*") writes zero values that a column default would replace
		result := m.targetDB.WithContext(ctx).
			Select("*").
			Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(records)
		if result.Error != nil {
			stats.Errors += int64(len(*records))
			fmt.Fprintf(m.out, "  Batch %d error: %v\n", batchNum, result.Error)
			// One bad batch should not abort the rest of the export
			return nil //nolint:nilerr // continue with the next batch
		}

		stats.Migrated += result.RowsAffected
		stats.Skipped += int64(len(*records)) - result.RowsAffected
		processed += int64(len(*records))

		if m.cfg.Verbose || batchNum%10 == 0 {
			fmt.Fprintf(m.out, "  %s: %d/%d (%.1f%%)\n", tableName, processed, sourceCount,
				float64(processed)/float64(sourceCount)*100)
		}
		return nil
	}).Error
	if err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	fmt.Fprintf(m.out, "  %s: completed (%d migrated, %d skipped, %d errors) in %s\n",
		tableName, stats.Migrated, stats.Skipped, stats.Errors, stats.Duration.Round(time.Millisecond))

	return stats, nil
}
