package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/eligibility"
	"github.com/vilepilates/studio/internal/events"
	"github.com/vilepilates/studio/internal/models"
)

func strp(s string) *string { return &s }

func TestCreateClient_DPIUnique(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()

	a, err := CreateClient(ctx, gdb, ClientInput{FirstName: "Ana", LastName: "López", Email: " ANA@Mail.com ", DPI: strp("1234 56789 0101")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Email != "ana@mail.com" {
		t.Errorf("email: want ana@mail.com, got %s", a.Email)
	}
	if a.DPI == nil || *a.DPI != "1234567890101" {
		t.Errorf("dpi: got %v", a.DPI)
	}
	if a.Status != models.ClientInactive {
		t.Errorf("status: want I, got %s", a.Status)
	}

	_, err = CreateClient(ctx, gdb, ClientInput{FirstName: "Otra", LastName: "Persona", DPI: strp("1234567890101")})
	if !apperr.IsCode(err, apperr.CodeDPITaken) {
		t.Errorf("duplicate dpi: want DPI_TAKEN, got %v", err)
	}

	// blank DPIs never collide
	for i := 0; i < 2; i++ {
		if _, err := CreateClient(ctx, gdb, ClientInput{FirstName: "Sin", LastName: "DPI", DPI: strp("  ")}); err != nil {
			t.Errorf("blank dpi #%d: %v", i, err)
		}
	}

	got, err := ClientByDPI(gdb, "1234567890101")
	if err != nil || got.ID != a.ID {
		t.Errorf("by dpi: want %d, got %d (%v)", a.ID, got.ID, err)
	}
}

func TestCreateClient_Validation(t *testing.T) {
	gdb := openTestDB(t)
	_, err := CreateClient(context.Background(), gdb, ClientInput{Email: "not-an-email"})
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Code != apperr.CodeInvalidArgument {
		t.Fatalf("want INVALID_ARGUMENT, got %v", err)
	}
	for _, f := range []string{"first_name", "last_name", "email"} {
		if _, ok := ae.Fields[f]; !ok {
			t.Errorf("missing field error for %s", f)
		}
	}
}

func TestSearchClients_IgnoresAccents(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	if _, err := CreateClient(ctx, gdb, ClientInput{FirstName: "Sofía", LastName: "Núñez"}); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateClient(ctx, gdb, ClientInput{FirstName: "Marta", LastName: "Pérez", Phone: "5555 1234"}); err != nil {
		t.Fatal(err)
	}

	cases := map[string]int{"sofia": 1, "NUNEZ": 1, "pérez": 1, "perez": 1, "": 2, "zzz": 0, "55551234": 1}
	for q, want := range cases {
		got, err := SearchClients(gdb, q)
		if err != nil {
			t.Fatalf("search %q: %v", q, err)
		}
		if len(got) != want {
			t.Errorf("search %q: want %d, got %d", q, want, len(got))
		}
	}
}

func TestUpdateClient_DeactivationNotifies(t *testing.T) {
	gdb := openTestDB(t)
	c := seedClient(t, gdb, "Ana", true)
	gdb.Model(&c).Update("status", models.ClientActive)

	got, err := UpdateClient(context.Background(), gdb, c.ID, ClientUpdate{Status: strp(models.ClientInactive)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != models.ClientInactive {
		t.Errorf("status: want I, got %s", got.Status)
	}
	if kinds := outboxKinds(t, gdb, c.ID); len(kinds) != 1 || kinds[0] != events.KindMembershipCancellation {
		t.Errorf("outbox: want [membership_cancellation], got %v", kinds)
	}

	// already inactive: no second notice
	if _, err := UpdateClient(context.Background(), gdb, c.ID, ClientUpdate{Status: strp(models.ClientInactive)}); err != nil {
		t.Fatal(err)
	}
	if kinds := outboxKinds(t, gdb, c.ID); len(kinds) != 1 {
		t.Errorf("outbox after no-op: want 1, got %d", len(kinds))
	}

	if _, err := UpdateClient(context.Background(), gdb, c.ID, ClientUpdate{Status: strp("X")}); !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Errorf("bad status: want INVALID_ARGUMENT, got %v", err)
	}
}

func TestClientEstado(t *testing.T) {
	gdb := openTestDB(t)
	m := seedMembership(t, gdb, "Ilimitado", 600, nil)
	c := seedClient(t, gdb, "Ana", false)

	st, err := ClientEstado(gdb, c.ID, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if st.Label != eligibility.StateNew || !st.CanBook {
		t.Errorf("fresh client: got %+v", st)
	}
	if st.PlanIntent != nil {
		t.Errorf("fresh client has plan intent: %+v", st.PlanIntent)
	}

	if _, err := SelectPlan(context.Background(), gdb, c.ID, m.ID, testNow); err != nil {
		t.Fatal(err)
	}
	gdb.Model(&c).Update("trial_used", true)
	st, _ = ClientEstado(gdb, c.ID, testNow)
	if st.Label != eligibility.StateTrialUsedWithPlan || st.CanBook {
		t.Errorf("trial used with plan: got %+v", st)
	}
	if st.PlanIntent == nil || st.PlanIntent.MembershipID != m.ID || st.PlanIntent.MembershipName != "Ilimitado" ||
		!st.PlanIntent.Price.Equal(decimal.NewFromInt(600)) {
		t.Errorf("plan intent: got %+v", st.PlanIntent)
	}

	seedPayment(t, gdb, c.ID, m.ID, testNow, testToday.AddDate(0, 0, 30))
	st, _ = ClientEstado(gdb, c.ID, testNow)
	if st.Label != eligibility.StateActivePlan {
		t.Errorf("active plan: got %s", st.Label)
	}
}

func TestCountClients(t *testing.T) {
	gdb := openTestDB(t)
	a := seedClient(t, gdb, "Ana", false)
	seedClient(t, gdb, "Bea", false)
	gdb.Model(&a).Update("status", models.ClientActive)

	got, err := CountClients(gdb, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if got.Total != 2 || got.Active != 1 || got.Inactive != 1 {
		t.Errorf("counts: got %+v", got)
	}
}

func TestPotentialClients(t *testing.T) {
	gdb := openTestDB(t)
	m := seedMembership(t, gdb, "Ilimitado", 600, nil)
	fresh := seedClient(t, gdb, "Ana", false)
	usedWithIntent := seedClient(t, gdb, "Bea", true)
	seedClient(t, gdb, "Cris", true)

	if _, err := SelectPlan(context.Background(), gdb, usedWithIntent.ID, m.ID, testNow); err != nil {
		t.Fatal(err)
	}
	got, err := PotentialClients(gdb)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 potential clients, got %d", len(got))
	}
	if got[0].Client.ID != fresh.ID || got[0].PlanIntent != nil {
		t.Errorf("first: want fresh client without intent, got %+v", got[0])
	}
	if got[1].Client.ID != usedWithIntent.ID || got[1].PlanIntent == nil {
		t.Errorf("second: want client with intent, got %+v", got[1])
	}
}

func TestLinkByCode(t *testing.T) {
	gdb := openTestDB(t)
	c := seedClient(t, gdb, "Ana", false)

	lc, err := IssueLinkCode(gdb, c.ID, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(lc.Code) != 6 {
		t.Errorf("code length: want 6, got %q", lc.Code)
	}
	id := TelegramIdentity{UserID: 42, ChatID: 4242, FirstName: "Ana"}
	got, err := LinkByCode(gdb, id, lc.Code, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("linked client: want %d, got %d", c.ID, got.ID)
	}
	if chat, ok := TelegramChat(gdb, c.ID); !ok || chat != 4242 {
		t.Errorf("chat: want 4242, got %d (%v)", chat, ok)
	}
	if _, err := LinkByCode(gdb, id, lc.Code, testNow.Add(2*time.Minute)); !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Errorf("reused code: want INVALID_ARGUMENT, got %v", err)
	}
}
