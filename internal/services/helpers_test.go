package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vilepilates/studio/internal/db"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/studiotime"
)

// Monday 16 June 2025, 09:00 in Guatemala.
var testNow = time.Date(2025, 6, 16, 15, 0, 0, 0, time.UTC)

var testToday = studiotime.Date(2025, 6, 16)

// openTestDB returns an isolated in-file SQLite database in a temp directory
// with the full schema and the individual plan seeded as membership 1.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	gdb, err := db.Open("sqlite", dsn, logger.Silent)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	prev := opts
	opts = DefaultOptions()
	t.Cleanup(func() { opts = prev })

	seedMembership(t, gdb, "Clase individual", 90, nil)
	return gdb
}

func intp(v int) *int { return &v }

func seedMembership(t *testing.T, gdb *gorm.DB, name string, price int64, perMonth *int) models.Membership {
	t.Helper()
	m := models.Membership{Name: name, Price: decimal.NewFromInt(price), ClassesPerMonth: perMonth}
	if err := gdb.Create(&m).Error; err != nil {
		t.Fatalf("seed membership: %v", err)
	}
	return m
}

func seedClient(t *testing.T, gdb *gorm.DB, first string, trialUsed bool) models.Client {
	t.Helper()
	c := models.Client{FirstName: first, LastName: "Test", Status: models.ClientInactive, TrialUsed: trialUsed}
	if err := gdb.Create(&c).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return c
}

func seedSchedule(t *testing.T, gdb *gorm.DB, day string, capacity int, individual bool) models.Schedule {
	t.Helper()
	s := models.Schedule{Day: day, TimeSlot: "07:00", Capacity: capacity, IsIndividual: individual}
	if err := gdb.Create(&s).Error; err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	return s
}

func seedPayment(t *testing.T, gdb *gorm.DB, clientID, membershipID uint, paid, validUntil time.Time) models.Payment {
	t.Helper()
	p := models.Payment{
		ClientID:      clientID,
		MembershipID:  membershipID,
		Amount:        decimal.NewFromInt(300),
		PaymentMethod: MethodCash,
		DatePaid:      paid,
		ValidUntil:    validUntil,
	}
	if err := gdb.Omit("Client", "Membership", "Promotion", "PromotionInstance").Create(&p).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

func seedBooking(t *testing.T, gdb *gorm.DB, clientID, scheduleID uint, day time.Time, status, attendance string) models.Booking {
	t.Helper()
	b := models.Booking{
		Code:             newBookingCode(),
		ClientID:         clientID,
		ScheduleID:       scheduleID,
		ClassDate:        day,
		Status:           status,
		AttendanceStatus: attendance,
	}
	if err := gdb.Omit("Client", "Membership", "Schedule").Create(&b).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return b
}

func outboxKinds(t *testing.T, gdb *gorm.DB, clientID uint) []string {
	t.Helper()
	var kinds []string
	if err := gdb.Model(&models.OutboxMessage{}).Where("client_id = ?", clientID).
		Order("created_at").Pluck("kind", &kinds).Error; err != nil {
		t.Fatalf("outbox: %v", err)
	}
	return kinds
}
