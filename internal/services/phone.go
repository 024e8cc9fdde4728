package services

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/models"
)

var (
	reLetters = regexp.MustCompile(`[A-Za-z]`)
	// Only allow digits, spaces, +, -, (, )
	reAllowed = regexp.MustCompile(`^[0-9+\-\s\(\)]+$`)
)

// NormPhone normalizes phone numbers to the +502XXXXXXXX form used for
// Guatemalan numbers. Rules: strip separators; 00.. -> +..; 8 local digits
// -> +502..; 502 + 8 digits -> +502..; ensure leading +.
func NormPhone(p string) string {
	s := strings.TrimSpace(p)
	if s == "" || reLetters.MatchString(s) || !reAllowed.MatchString(s) {
		return ""
	}

	repl := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\n", "", "\r", "")
	s = repl.Replace(s)

	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		switch {
		case len(s) == 8:
			s = "+502" + s
		case len(s) == 11 && strings.HasPrefix(s, "502"):
			s = "+" + s
		default:
			s = "+" + s
		}
	}
	return s
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// altPhones lists the spellings a stored phone may have.
func altPhones(p string) []string {
	n := NormPhone(p)
	out := []string{}
	if n != "" {
		out = append(out, n)
	}
	if raw := strings.TrimSpace(p); raw != "" && raw != n {
		out = append(out, raw)
	}
	if strings.HasPrefix(n, "+502") && len(n) > 4 {
		out = append(out, n[4:], n[1:]) // 5555..., 5025555...
	}
	return out
}

// FindClientByPhone tries the normalized variants and then a digits-only
// comparison in SQL.
func FindClientByPhone(gdb *gorm.DB, phone string) (*models.Client, error) {
	var c models.Client
	for _, cand := range altPhones(phone) {
		if err := gdb.Where("phone = ?", cand).First(&c).Error; err == nil {
			return &c, nil
		}
	}

	if in := digitsOnly(phone); in != "" {
		q := `REPLACE(REPLACE(REPLACE(REPLACE(REPLACE(phone,'+',''),' ',''),'-',''),'(',''),')','')`
		if err := gdb.Where(q+" IN ?", []string{in, "502" + in}).First(&c).Error; err == nil {
			return &c, nil
		}
	}
	return nil, errors.New("client not found")
}
