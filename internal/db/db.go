package db

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vilepilates/studio/internal/models"
)

const DefaultSQLiteDSN = "studio.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

var conn *gorm.DB

// Init opens the configured database, migrates every table and stores the
// connection for Conn.
func Init(driver, dsn string) error {
	gdb, err := Open(driver, dsn, logger.Warn)
	if err != nil {
		return err
	}
	if err := Migrate(gdb); err != nil {
		return err
	}
	conn = gdb
	log.Printf("database ready (%s)", driverName(driver))
	return nil
}

// Open connects without migrating.
func Open(driver, dsn string, level logger.LogLevel) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	switch driverName(driver) {
	case "sqlite":
		if dsn == "" {
			dsn = DefaultSQLiteDSN
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName(driver), err)
	}

	if driverName(driver) == "sqlite" {
		// SQLite works best with a single writer; cap the pool accordingly.
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}
	return gdb, nil
}

// Migrate creates or updates every table and the composite indexes that
// GORM doesn't derive from struct tags.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.StaffUser{},
		&models.Client{},
		&models.ClassType{},
		&models.Membership{},
		&models.Schedule{},
		&models.Promotion{},
		&models.PromotionInstance{},
		&models.Payment{},
		&models.Sale{},
		&models.Booking{},
		&models.PlanIntent{},
		&models.MonthlyRevenue{},
		&models.OutboxMessage{},
		&models.TelegramUser{},
		&models.LinkCode{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	m := gdb.Migrator()
	for _, ix := range []struct {
		model any
		name  string
		stmt  string
	}{
		{&models.Booking{}, "idx_booking_schedule_date", "CREATE INDEX idx_booking_schedule_date ON bookings(schedule_id, class_date, status)"},
		{&models.Booking{}, "idx_booking_client_date", "CREATE INDEX idx_booking_client_date ON bookings(client_id, class_date)"},
		{&models.Payment{}, "idx_payment_client_paid", "CREATE INDEX idx_payment_client_paid ON payments(client_id, date_paid)"},
		{&models.OutboxMessage{}, "idx_outbox_status_created", "CREATE INDEX idx_outbox_status_created ON outbox_messages(status, created_at)"},
	} {
		if m.HasIndex(ix.model, ix.name) {
			continue
		}
		if err := gdb.Exec(ix.stmt).Error; err != nil {
			return fmt.Errorf("create index %s: %w", ix.name, err)
		}
	}
	return nil
}

func Conn() *gorm.DB {
	return conn
}

func driverName(driver string) string {
	d := strings.ToLower(strings.TrimSpace(driver))
	if d == "" || d == "sqlite3" {
		return "sqlite"
	}
	if d == "postgresql" || d == "pgx" {
		return "postgres"
	}
	return d
}
