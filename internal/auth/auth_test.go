package auth

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/db"
	"github.com/vilepilates/studio/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	tok, exp, err := iss.Issue(models.StaffUser{ID: 7, Username: "sec", Role: models.RoleSecretaria}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry in the past: %s", exp)
	}
	c, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Subject != "7" || c.Role != models.RoleSecretaria {
		t.Errorf("claims: got sub=%s role=%s", c.Subject, c.Role)
	}

	if _, err := NewIssuer("other", time.Hour).Parse(tok); err == nil {
		t.Error("token accepted with the wrong secret")
	}
	old, _, _ := iss.Issue(models.StaffUser{ID: 7}, time.Now().Add(-2*time.Hour))
	if _, err := iss.Parse(old); err == nil {
		t.Error("expired token accepted")
	}
}

func TestLoginAndEnsureAdmin(t *testing.T) {
	gdb := openTestDB(t)
	if err := EnsureAdmin(gdb, "admin", "supersecret"); err != nil {
		t.Fatal(err)
	}
	// second call is a no-op
	if err := EnsureAdmin(gdb, "admin2", "supersecret"); err != nil {
		t.Fatal(err)
	}
	var n int64
	gdb.Model(&models.StaffUser{}).Count(&n)
	if n != 1 {
		t.Errorf("staff users: want 1, got %d", n)
	}

	u, err := Login(gdb, "admin", "supersecret")
	if err != nil || u.Role != models.RoleAdmin {
		t.Fatalf("login: %+v %v", u, err)
	}
	if _, err := Login(gdb, "admin", "wrong"); !apperr.IsCode(err, apperr.CodeUnauthenticated) {
		t.Errorf("wrong password: want UNAUTHENTICATED, got %v", err)
	}
}

func TestCreateStaff_Validation(t *testing.T) {
	gdb := openTestDB(t)
	if _, err := CreateStaff(gdb, StaffInput{Username: "c", Password: "short", Role: "boss"}); !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Errorf("want INVALID_ARGUMENT, got %v", err)
	}
	if _, err := CreateStaff(gdb, StaffInput{Username: "coach", Password: "longenough", Role: models.RoleCoach}); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateStaff(gdb, StaffInput{Username: "coach", Password: "longenough", Role: models.RoleCoach}); !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Errorf("duplicate username: want INVALID_ARGUMENT, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := iss.Authenticate(RequireStaff(ok))

	coachTok, _, _ := iss.Issue(models.StaffUser{ID: 1, Role: models.RoleCoach}, time.Now())
	adminTok, _, _ := iss.Issue(models.StaffUser{ID: 2, Role: models.RoleAdmin}, time.Now())

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"no scheme", adminTok, http.StatusUnauthorized},
		{"coach", "Bearer " + coachTok, http.StatusForbidden},
		{"admin", "Bearer " + adminTok, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: want %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}

func TestMiddleware_ReloadsAccount(t *testing.T) {
	gdb := openTestDB(t)
	u, err := CreateStaff(gdb, StaffInput{Username: "sec", Password: "longenough", Role: models.RoleSecretaria})
	if err != nil {
		t.Fatal(err)
	}
	iss := NewIssuer("secret", time.Hour).CheckAccounts(gdb)
	var seen Principal
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := iss.Authenticate(RequireStaff(ok))
	tok, _, _ := iss.Issue(u, time.Now())

	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := call(); code != http.StatusNoContent || seen.Role != models.RoleSecretaria {
		t.Fatalf("enabled: got %d role=%s", code, seen.Role)
	}

	gdb.Model(&models.StaffUser{}).Where("id = ?", u.ID).Update("role", models.RoleCoach)
	if code := call(); code != http.StatusForbidden {
		t.Errorf("demoted to coach: want 403, got %d", code)
	}

	gdb.Model(&models.StaffUser{}).Where("id = ?", u.ID).Updates(map[string]any{"role": models.RoleSecretaria, "enabled": false})
	if code := call(); code != http.StatusUnauthorized {
		t.Errorf("disabled: want 401, got %d", code)
	}

	ghost, _, _ := iss.Issue(models.StaffUser{ID: 999, Role: models.RoleAdmin}, time.Now())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+ghost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: want 401, got %d", rec.Code)
	}
}
