package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/events"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/studiotime"
)

func revenueRow(t *testing.T, rows []models.MonthlyRevenue, year, month int) (models.MonthlyRevenue, bool) {
	t.Helper()
	for _, r := range rows {
		if r.Year == year && r.Month == month {
			return r, true
		}
	}
	return models.MonthlyRevenue{}, false
}

func TestCreatePayment_PromotionPriceAndRevenue(t *testing.T) {
	gdb := openTestDB(t)
	m := seedMembership(t, gdb, "8 clases", 400, intp(8))
	c := seedClient(t, gdb, "Ana", true)

	promo, err := CreatePromotion(gdb, PromotionInput{
		Name: "Junio 2x1", StartDate: studiotime.Date(2025, 6, 1), EndDate: studiotime.Date(2025, 6, 30),
		Price: decimal.NewFromInt(250), MembershipID: m.ID, ClassesPerClient: 8,
	})
	if err != nil {
		t.Fatalf("promotion: %v", err)
	}
	if _, err := CreatePromotionInstance(context.Background(), gdb, promo.ID, []uint{c.ID}); err != nil {
		t.Fatalf("instance: %v", err)
	}
	if _, err := SelectPlan(context.Background(), gdb, c.ID, m.ID, testNow); err != nil {
		t.Fatalf("plan intent: %v", err)
	}

	p, err := CreatePayment(context.Background(), gdb, PaymentInput{
		ClientID: c.ID, MembershipID: m.ID, Amount: decimal.NewFromInt(400), PaymentMethod: "Tarjeta",
	}, testNow)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if !p.Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("amount: want 250, got %s", p.Amount)
	}
	if p.PromotionID == nil || *p.PromotionID != promo.ID {
		t.Errorf("promotion: want %d, got %v", promo.ID, p.PromotionID)
	}
	if want := testToday.AddDate(0, 0, 30); !p.ValidUntil.Equal(want) {
		t.Errorf("valid_until: want %s, got %s", want, p.ValidUntil)
	}
	if p.PaymentMethod != MethodCard {
		t.Errorf("method: want %s, got %s", MethodCard, p.PaymentMethod)
	}

	var got models.Client
	gdb.First(&got, c.ID)
	if got.Status != models.ClientActive {
		t.Errorf("client status: want A, got %s", got.Status)
	}
	var pi models.PlanIntent
	gdb.Where("client_id = ? AND membership_id = ?", c.ID, m.ID).First(&pi)
	if !pi.IsConfirmed {
		t.Error("plan intent not confirmed")
	}

	rows, _ := ListMonthlyRevenue(gdb, 0, 0)
	r, ok := revenueRow(t, rows, 2025, 6)
	if !ok {
		t.Fatal("no revenue row for 2025-06")
	}
	if !r.TotalAmount.Equal(decimal.NewFromInt(250)) || r.PaymentCount != 1 {
		t.Errorf("revenue: want 250/1, got %s/%d", r.TotalAmount, r.PaymentCount)
	}
	if kinds := outboxKinds(t, gdb, c.ID); len(kinds) != 1 || kinds[0] != events.KindSubscriptionConfirmation {
		t.Errorf("outbox: want [subscription_confirmation], got %v", kinds)
	}
}

func TestDeletePayment_DeactivatesAndDecrements(t *testing.T) {
	gdb := openTestDB(t)
	m := seedMembership(t, gdb, "Ilimitado", 600, nil)
	c := seedClient(t, gdb, "Ana", true)

	p, err := CreatePayment(context.Background(), gdb, PaymentInput{
		ClientID: c.ID, MembershipID: m.ID, Amount: decimal.NewFromInt(600), PaymentMethod: MethodCash,
	}, testNow)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if err := DeletePayment(context.Background(), gdb, p.ID, testNow); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var got models.Client
	gdb.First(&got, c.ID)
	if got.Status != models.ClientInactive {
		t.Errorf("client status: want I, got %s", got.Status)
	}
	rows, _ := ListMonthlyRevenue(gdb, 2025, 6)
	r, _ := revenueRow(t, rows, 2025, 6)
	if !r.TotalAmount.IsZero() || r.PaymentCount != 0 {
		t.Errorf("revenue after delete: want 0/0, got %s/%d", r.TotalAmount, r.PaymentCount)
	}
	kinds := outboxKinds(t, gdb, c.ID)
	if len(kinds) != 2 || kinds[1] != events.KindMembershipCancellation {
		t.Errorf("outbox: want cancellation last, got %v", kinds)
	}

	if err := DeletePayment(context.Background(), gdb, p.ID, testNow); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("second delete: want NOT_FOUND, got %v", err)
	}
}

func TestExtendValidity(t *testing.T) {
	gdb := openTestDB(t)
	m := seedMembership(t, gdb, "Ilimitado", 600, nil)
	c := seedClient(t, gdb, "Ana", true)
	expired := seedPayment(t, gdb, c.ID, m.ID, testNow.AddDate(0, -1, 0), testToday.AddDate(0, 0, -1))
	current := seedPayment(t, gdb, c.ID, m.ID, testNow, testToday)

	p, err := ExtendValidity(context.Background(), gdb, expired.ID, testNow)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	// Mon 16 -> 17..21, skip Sunday 22, Mon 23
	if want := studiotime.Date(2025, 6, 23); !p.ValidUntil.Equal(want) {
		t.Errorf("valid_until: want %s, got %s", want, p.ValidUntil)
	}

	if _, err := ExtendValidity(context.Background(), gdb, current.ID, testNow); !apperr.IsCode(err, apperr.CodePaymentStillValid) {
		t.Errorf("still valid: want PAYMENT_STILL_VALID, got %v", err)
	}
}

func TestAddStudioDays(t *testing.T) {
	sat := studiotime.Date(2025, 6, 21)
	if got := AddStudioDays(sat, 1); !got.Equal(studiotime.Date(2025, 6, 23)) {
		t.Errorf("saturday + 1: want Monday 23, got %s", got)
	}
	if got := AddStudioDays(sat, 0); !got.Equal(sat) {
		t.Errorf("zero days moved the date: %s", got)
	}
}

func TestConfirmPromotionPayment(t *testing.T) {
	gdb := openTestDB(t)
	m := seedMembership(t, gdb, "8 clases", 400, intp(8))
	a := seedClient(t, gdb, "Ana", true)
	b := seedClient(t, gdb, "Bea", true)
	promo, err := CreatePromotion(gdb, PromotionInput{
		Name: "Amigas", StartDate: studiotime.Date(2025, 6, 1), EndDate: studiotime.Date(2025, 6, 30),
		Price: decimal.NewFromInt(200), MembershipID: m.ID,
	})
	if err != nil {
		t.Fatalf("promotion: %v", err)
	}
	inst, err := CreatePromotionInstance(context.Background(), gdb, promo.ID, []uint{a.ID})
	if err != nil {
		t.Fatalf("instance: %v", err)
	}

	p, err := ConfirmPromotionPayment(context.Background(), gdb, inst.ID, b.ID, "efectivo", testNow)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !p.Amount.Equal(decimal.NewFromInt(200)) || p.MembershipID != m.ID {
		t.Errorf("payment: want 200 for membership %d, got %s/%d", m.ID, p.Amount, p.MembershipID)
	}
	found, err := promotionInstanceFor(gdb, promo.ID, b.ID)
	if err != nil || found == nil {
		t.Errorf("client not added to instance: %v", err)
	}
}

func TestGracePeriod(t *testing.T) {
	gdb := openTestDB(t)
	m := seedMembership(t, gdb, "Ilimitado", 600, nil)
	lapsed := seedClient(t, gdb, "Ana", true)
	renewed := seedClient(t, gdb, "Bea", true)
	old := seedClient(t, gdb, "Cris", true)

	seedPayment(t, gdb, lapsed.ID, m.ID, testNow.AddDate(0, -1, 0), testToday.AddDate(0, 0, -3))
	seedPayment(t, gdb, renewed.ID, m.ID, testNow.AddDate(0, -1, 0), testToday.AddDate(0, 0, -2))
	seedPayment(t, gdb, renewed.ID, m.ID, testNow, testToday.AddDate(0, 0, 30))
	seedPayment(t, gdb, old.ID, m.ID, testNow.AddDate(0, -2, 0), testToday.AddDate(0, 0, -8))

	got, err := GracePeriod(gdb, testNow)
	if err != nil {
		t.Fatalf("grace: %v", err)
	}
	if len(got) != 1 || got[0].ClientID != lapsed.ID {
		t.Fatalf("want only client %d, got %+v", lapsed.ID, got)
	}
	if got[0].GraceEnds != "2025-06-20" {
		t.Errorf("grace_ends: want 2025-06-20, got %s", got[0].GraceEnds)
	}
}

func TestSales_TotalAndRevenue(t *testing.T) {
	gdb := openTestDB(t)
	c := seedClient(t, gdb, "Ana", true)

	s, err := CreateSale(context.Background(), gdb, SaleInput{
		ClientID: c.ID, ProductName: "Calcetas", Quantity: 3, PricePerUnit: decimal.NewFromInt(45),
	}, testNow)
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if !s.TotalAmount.Equal(decimal.NewFromInt(135)) {
		t.Errorf("total: want 135, got %s", s.TotalAmount)
	}
	rows, _ := ListMonthlyRevenue(gdb, 2025, 6)
	r, _ := revenueRow(t, rows, 2025, 6)
	if !r.SaleTotal.Equal(decimal.NewFromInt(135)) || r.SaleCount != 1 || !r.TotalAmount.Equal(decimal.NewFromInt(135)) {
		t.Errorf("revenue: got total %s sales %s/%d", r.TotalAmount, r.SaleTotal, r.SaleCount)
	}

	if err := DeleteSale(context.Background(), gdb, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rows, _ = ListMonthlyRevenue(gdb, 2025, 6)
	r, _ = revenueRow(t, rows, 2025, 6)
	if !r.TotalAmount.IsZero() || r.SaleCount != 0 {
		t.Errorf("revenue after delete: got %s/%d", r.TotalAmount, r.SaleCount)
	}

	if _, err := CreateSale(context.Background(), gdb, SaleInput{ClientID: c.ID, Quantity: 1}, testNow); !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Errorf("missing product: want INVALID_ARGUMENT, got %v", err)
	}
}

func TestRecalculateAll_ZeroesEmptyPeriods(t *testing.T) {
	gdb := openTestDB(t)
	m := seedMembership(t, gdb, "Ilimitado", 600, nil)
	c := seedClient(t, gdb, "Ana", true)
	may := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

	p, err := CreatePayment(context.Background(), gdb, PaymentInput{
		ClientID: c.ID, MembershipID: m.ID, Amount: decimal.NewFromInt(600), DatePaid: &may,
	}, testNow)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	// bypass the decrement so May keeps a stale total
	gdb.Delete(&models.Payment{}, p.ID)
	if _, err := CreateSale(context.Background(), gdb, SaleInput{
		ClientID: c.ID, ProductName: "Agua", Quantity: 2, PricePerUnit: decimal.NewFromInt(10),
	}, testNow); err != nil {
		t.Fatalf("sale: %v", err)
	}
	gdb.Model(&models.MonthlyRevenue{}).Where("year = 2025 AND month = 6").Update("total_amount", 999)

	if _, err := RecalculateAll(context.Background(), gdb); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	rows, _ := ListMonthlyRevenue(gdb, 0, 0)
	mayRow, _ := revenueRow(t, rows, 2025, 5)
	if !mayRow.TotalAmount.IsZero() || mayRow.PaymentCount != 0 {
		t.Errorf("May: want zeroed, got %s/%d", mayRow.TotalAmount, mayRow.PaymentCount)
	}
	june, _ := revenueRow(t, rows, 2025, 6)
	if !june.TotalAmount.Equal(decimal.NewFromInt(20)) || june.SaleCount != 1 {
		t.Errorf("June: want 20/1 sale, got %s/%d", june.TotalAmount, june.SaleCount)
	}

	total, err := TotalRevenue(gdb)
	if err != nil || !total.Equal(decimal.NewFromInt(20)) {
		t.Errorf("total revenue: want 20, got %s (%v)", total, err)
	}
}

func TestRecalculate_MonthBoundaryInStudioZone(t *testing.T) {
	gdb := openTestDB(t)
	m := seedMembership(t, gdb, "Ilimitado", 600, nil)
	c := seedClient(t, gdb, "Ana", true)
	// 1 July 03:00 UTC is still 30 June in Guatemala
	late := time.Date(2025, 7, 1, 3, 0, 0, 0, time.UTC)
	seedPayment(t, gdb, c.ID, m.ID, late, testToday)

	june, err := Recalculate(context.Background(), gdb, 2025, 6)
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if june.PaymentCount != 1 {
		t.Errorf("June payments: want 1, got %d", june.PaymentCount)
	}
	july, _ := Recalculate(context.Background(), gdb, 2025, 7)
	if july.PaymentCount != 0 {
		t.Errorf("July payments: want 0, got %d", july.PaymentCount)
	}
}

func TestRevenue_IncrementalMatchesRecalculate(t *testing.T) {
	gdb := openTestDB(t)
	m := seedMembership(t, gdb, "Ilimitado", 600, nil)
	c := seedClient(t, gdb, "Ana", true)

	for _, amt := range []string{"12.35", "0.10", "0.20", "199.99", "33.33", "0.01", "1234.56"} {
		if _, err := CreatePayment(context.Background(), gdb, PaymentInput{
			ClientID: c.ID, MembershipID: m.ID, Amount: decimal.RequireFromString(amt), PaymentMethod: "Efectivo",
		}, testNow); err != nil {
			t.Fatalf("payment %s: %v", amt, err)
		}
	}
	if _, err := CreateSale(context.Background(), gdb, SaleInput{
		ClientID: c.ID, ProductName: "Agua", Quantity: 3, PricePerUnit: decimal.RequireFromString("3.33"),
	}, testNow); err != nil {
		t.Fatalf("sale: %v", err)
	}

	rows, _ := ListMonthlyRevenue(gdb, 2025, 6)
	inc, ok := revenueRow(t, rows, 2025, 6)
	if !ok {
		t.Fatal("no revenue row for 2025-06")
	}
	if !inc.TotalAmount.Equal(decimal.RequireFromString("1490.53")) || inc.PaymentCount != 7 ||
		!inc.SaleTotal.Equal(decimal.RequireFromString("9.99")) || inc.SaleCount != 1 {
		t.Fatalf("incremental: got %s/%d sales %s/%d", inc.TotalAmount, inc.PaymentCount, inc.SaleTotal, inc.SaleCount)
	}

	var recalculated []models.MonthlyRevenue
	for i := 0; i < 2; i++ {
		if _, err := Recalculate(context.Background(), gdb, 2025, 6); err != nil {
			t.Fatalf("recalculate #%d: %v", i+1, err)
		}
		rows, _ = ListMonthlyRevenue(gdb, 2025, 6)
		r, _ := revenueRow(t, rows, 2025, 6)
		recalculated = append(recalculated, r)
	}
	for i, r := range recalculated {
		if !r.TotalAmount.Equal(inc.TotalAmount) || r.PaymentCount != inc.PaymentCount ||
			!r.SaleTotal.Equal(inc.SaleTotal) || r.SaleCount != inc.SaleCount {
			t.Errorf("recalculate #%d: got %s/%d sales %s/%d, incremental %s/%d sales %s/%d", i+1,
				r.TotalAmount, r.PaymentCount, r.SaleTotal, r.SaleCount,
				inc.TotalAmount, inc.PaymentCount, inc.SaleTotal, inc.SaleCount)
		}
	}
	if recalculated[0].ID != recalculated[1].ID {
		t.Errorf("recalculate created a second row: %d vs %d", recalculated[0].ID, recalculated[1].ID)
	}
}
