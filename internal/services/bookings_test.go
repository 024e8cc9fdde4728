package services

import (
	"context"
	"sync"
	"testing"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/eligibility"
	"github.com/vilepilates/studio/internal/events"
	"github.com/vilepilates/studio/internal/models"
)

func TestCreateBooking_TrialKeepsFlagUntilAttended(t *testing.T) {
	gdb := openTestDB(t)
	c := seedClient(t, gdb, "Ana", false)
	s := seedSchedule(t, gdb, "MON", 9, false)

	res, err := CreateBooking(context.Background(), gdb, BookingRequest{
		ClientID: c.ID, ScheduleID: s.ID, ClassDate: testToday,
	}, testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Decision.Outcome != eligibility.Trial {
		t.Errorf("outcome: want trial, got %s", res.Decision.Outcome)
	}
	if res.Booking.Status != models.BookingActive || res.Booking.AttendanceStatus != models.AttendancePending {
		t.Errorf("booking: want active/pending, got %s/%s", res.Booking.Status, res.Booking.AttendanceStatus)
	}
	var got models.Client
	gdb.First(&got, c.ID)
	if got.TrialUsed {
		t.Error("trial consumed by a plain booking")
	}
	if kinds := outboxKinds(t, gdb, c.ID); len(kinds) != 1 || kinds[0] != events.KindBookingConfirmation {
		t.Errorf("outbox: want [booking_confirmation], got %v", kinds)
	}

	if _, err := MarkAttendance(context.Background(), gdb, res.Booking.ID, models.AttendanceAttended); err != nil {
		t.Fatalf("mark: %v", err)
	}
	gdb.First(&got, c.ID)
	if !got.TrialUsed {
		t.Error("trial not consumed after attendance")
	}
}

func TestCreateBooking_StaffCheckInConsumesTrial(t *testing.T) {
	gdb := openTestDB(t)
	c := seedClient(t, gdb, "Bea", false)
	s := seedSchedule(t, gdb, "MON", 9, false)

	res, err := CreateBooking(context.Background(), gdb, BookingRequest{
		ClientID: c.ID, ScheduleID: s.ID, ClassDate: testToday,
		AttendanceStatus: models.AttendanceAttended, IsStaff: true,
	}, testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Booking.AttendanceStatus != models.AttendanceAttended {
		t.Errorf("attendance: want attended, got %s", res.Booking.AttendanceStatus)
	}
	var got models.Client
	gdb.First(&got, c.ID)
	if !got.TrialUsed {
		t.Error("staff check-in did not consume the trial")
	}
}

func TestCreateBooking_WrongWeekday(t *testing.T) {
	gdb := openTestDB(t)
	c := seedClient(t, gdb, "Ana", false)
	s := seedSchedule(t, gdb, "TUE", 9, false)

	_, err := CreateBooking(context.Background(), gdb, BookingRequest{
		ClientID: c.ID, ScheduleID: s.ID, ClassDate: testToday,
	}, testNow)
	if !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Errorf("want INVALID_ARGUMENT, got %v", err)
	}
}

func TestCreateBooking_Duplicate(t *testing.T) {
	gdb := openTestDB(t)
	c := seedClient(t, gdb, "Ana", false)
	s := seedSchedule(t, gdb, "MON", 9, false)
	req := BookingRequest{ClientID: c.ID, ScheduleID: s.ID, ClassDate: testToday}

	if _, err := CreateBooking(context.Background(), gdb, req, testNow); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := CreateBooking(context.Background(), gdb, req, testNow)
	if !apperr.IsCode(err, apperr.CodeDuplicateBooking) {
		t.Errorf("want DUPLICATE_BOOKING, got %v", err)
	}
}

func TestCreateBooking_IndividualHoldsSlot(t *testing.T) {
	gdb := openTestDB(t)
	a := seedClient(t, gdb, "Ana", true)
	b := seedClient(t, gdb, "Bea", true)
	s := seedSchedule(t, gdb, "MON", 5, true)
	plan := uint(1)

	res, err := CreateBooking(context.Background(), gdb, BookingRequest{
		ClientID: a.ID, ScheduleID: s.ID, ClassDate: testToday, MembershipID: &plan,
	}, testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Booking.Status != models.BookingPending {
		t.Errorf("status: want pending, got %s", res.Booking.Status)
	}
	if got := res.Decision.Deposit.StringFixed(2); got != "36.00" {
		t.Errorf("deposit: want 36.00, got %s", got)
	}

	_, err = CreateBooking(context.Background(), gdb, BookingRequest{
		ClientID: b.ID, ScheduleID: s.ID, ClassDate: testToday, MembershipID: &plan,
	}, testNow)
	if !apperr.IsCode(err, apperr.CodeNoCapacity) {
		t.Errorf("second individual request: want NO_CAPACITY, got %v", err)
	}
}

func TestCreateBooking_MonthlyQuota(t *testing.T) {
	gdb := openTestDB(t)
	m := seedMembership(t, gdb, "8 clases", 400, intp(2))
	c := seedClient(t, gdb, "Ana", true)
	s := seedSchedule(t, gdb, "MON", 9, false)
	seedPayment(t, gdb, c.ID, m.ID, testNow.AddDate(0, 0, -10), testToday.AddDate(0, 0, 20))
	seedBooking(t, gdb, c.ID, s.ID, testToday.AddDate(0, 0, -14), models.BookingActive, models.AttendanceAttended)
	seedBooking(t, gdb, c.ID, s.ID, testToday.AddDate(0, 0, -7), models.BookingCancelled, models.AttendancePending)

	_, err := CreateBooking(context.Background(), gdb, BookingRequest{
		ClientID: c.ID, ScheduleID: s.ID, ClassDate: testToday,
	}, testNow)
	if !apperr.IsCode(err, apperr.CodeQuotaExceeded) {
		t.Fatalf("want QUOTA_EXCEEDED, got %v", err)
	}
	var n int64
	gdb.Model(&models.Booking{}).Where("class_date = ?", testToday).Count(&n)
	if n != 0 {
		t.Errorf("bookings after rejection: want 0, got %d", n)
	}
}

func TestCreateBooking_MembershipAttached(t *testing.T) {
	gdb := openTestDB(t)
	m := seedMembership(t, gdb, "Ilimitado", 600, nil)
	c := seedClient(t, gdb, "Ana", true)
	s := seedSchedule(t, gdb, "MON", 9, false)
	seedPayment(t, gdb, c.ID, m.ID, testNow.AddDate(0, 0, -1), testToday.AddDate(0, 0, 29))

	res, err := CreateBooking(context.Background(), gdb, BookingRequest{
		ClientID: c.ID, ScheduleID: s.ID, ClassDate: testToday,
	}, testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Booking.MembershipID == nil || *res.Booking.MembershipID != m.ID {
		t.Errorf("membership: want %d, got %v", m.ID, res.Booking.MembershipID)
	}
}

func TestCreateBooking_ConcurrentCapacity(t *testing.T) {
	gdb := openTestDB(t)
	s := seedSchedule(t, gdb, "MON", 2, false)
	var clients []models.Client
	for i := 0; i < 5; i++ {
		clients = append(clients, seedClient(t, gdb, "C", false))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for _, c := range clients {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := CreateBooking(context.Background(), gdb, BookingRequest{
				ClientID: id, ScheduleID: s.ID, ClassDate: testToday,
			}, testNow)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.IsCode(err, apperr.CodeNoCapacity):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(c.ID)
	}
	wg.Wait()

	if ok != 2 || full != 3 {
		t.Errorf("want 2 booked / 3 full, got %d / %d", ok, full)
	}
}

func TestCancelBooking_FreesSeat(t *testing.T) {
	gdb := openTestDB(t)
	a := seedClient(t, gdb, "Ana", false)
	b := seedClient(t, gdb, "Bea", false)
	s := seedSchedule(t, gdb, "MON", 1, false)

	res, err := CreateBooking(context.Background(), gdb, BookingRequest{ClientID: a.ID, ScheduleID: s.ID, ClassDate: testToday}, testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cancelled, err := CancelBooking(context.Background(), gdb, res.Booking.ID, "enferma", "")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.BookingCancelled || cancelled.CancellationType != models.CancelledByClient {
		t.Errorf("cancel: want cancelled/client, got %s/%s", cancelled.Status, cancelled.CancellationType)
	}
	if _, err := CreateBooking(context.Background(), gdb, BookingRequest{ClientID: b.ID, ScheduleID: s.ID, ClassDate: testToday}, testNow); err != nil {
		t.Errorf("seat not freed: %v", err)
	}

	if _, err := CheckInByCode(context.Background(), gdb, res.Booking.Code); !apperr.IsCode(err, apperr.CodeBookingCancelled) {
		t.Errorf("check-in of cancelled booking: want BOOKING_CANCELLED, got %v", err)
	}
}

func TestRescheduleBooking(t *testing.T) {
	gdb := openTestDB(t)
	a := seedClient(t, gdb, "Ana", false)
	b := seedClient(t, gdb, "Bea", false)
	mon := seedSchedule(t, gdb, "MON", 9, false)
	tue := seedSchedule(t, gdb, "TUE", 1, false)
	tuesday := testToday.AddDate(0, 0, 1)

	res, err := CreateBooking(context.Background(), gdb, BookingRequest{ClientID: a.ID, ScheduleID: mon.ID, ClassDate: testToday}, testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	moved, err := RescheduleBooking(context.Background(), gdb, res.Booking.ID, tue.ID, tuesday)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.ScheduleID != tue.ID || !moved.ClassDate.Equal(tuesday) {
		t.Errorf("moved to %d/%s", moved.ScheduleID, moved.ClassDate)
	}

	other, err := CreateBooking(context.Background(), gdb, BookingRequest{ClientID: b.ID, ScheduleID: mon.ID, ClassDate: testToday}, testNow)
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	if _, err := RescheduleBooking(context.Background(), gdb, other.Booking.ID, tue.ID, tuesday); !apperr.IsCode(err, apperr.CodeNoCapacity) {
		t.Errorf("full target: want NO_CAPACITY, got %v", err)
	}
}

func TestRescheduleBooking_OntoOwnBooking(t *testing.T) {
	gdb := openTestDB(t)
	c := seedClient(t, gdb, "Ana", true)
	mon := seedSchedule(t, gdb, "MON", 5, false)
	tue := seedSchedule(t, gdb, "TUE", 5, false)
	tuesday := testToday.AddDate(0, 0, 1)

	monBooking := seedBooking(t, gdb, c.ID, mon.ID, testToday, models.BookingActive, models.AttendancePending)
	seedBooking(t, gdb, c.ID, tue.ID, tuesday, models.BookingActive, models.AttendancePending)

	if _, err := RescheduleBooking(context.Background(), gdb, monBooking.ID, tue.ID, tuesday); !apperr.IsCode(err, apperr.CodeDuplicateBooking) {
		t.Fatalf("want DUPLICATE_BOOKING, got %v", err)
	}
	got, err := GetBooking(gdb, monBooking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ScheduleID != mon.ID || !got.ClassDate.Equal(testToday) || got.Status != models.BookingActive {
		t.Errorf("booking changed: %d/%s/%s", got.ScheduleID, got.ClassDate, got.Status)
	}
}

func TestMarkAttendance_RejectsUnknownStatus(t *testing.T) {
	gdb := openTestDB(t)
	if _, err := MarkAttendance(context.Background(), gdb, 1, "late"); !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Errorf("want INVALID_ARGUMENT, got %v", err)
	}
	if _, err := MarkAttendance(context.Background(), gdb, 999, models.AttendanceNoShow); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("want NOT_FOUND, got %v", err)
	}
}
