package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/eligibility"
	"github.com/vilepilates/studio/internal/events"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/studiotime"
)

type ClientInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	DPI       *string
	Source    string
	Notes     string
}

func dpiTaken(tx *gorm.DB, dpi *string, exceptID uint) error {
	if dpi == nil {
		return nil
	}
	var n int64
	q := tx.Model(&models.Client{}).Where("dpi = ?", *dpi)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return apperr.New(apperr.CodeDPITaken, "Ya existe un cliente con ese DPI.")
	}
	return nil
}

func CreateClient(ctx context.Context, gdb *gorm.DB, in ClientInput) (models.Client, error) {
	fields := map[string]string{}
	first, last := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	if first == "" {
		fields["first_name"] = "requerido"
	}
	if last == "" {
		fields["last_name"] = "requerido"
	}
	email, ok := NormEmail(in.Email)
	if !ok {
		fields["email"] = "correo inválido"
	}
	if len(fields) > 0 {
		return models.Client{}, apperr.Invalid("Datos del cliente inválidos.", fields)
	}

	c := models.Client{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Phone:     NormPhone(in.Phone),
		DPI:       NormDPI(in.DPI),
		Source:    strings.TrimSpace(in.Source),
		Notes:     in.Notes,
		Status:    models.ClientInactive,
	}
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := dpiTaken(tx, c.DPI, 0); err != nil {
			return err
		}
		if err := tx.Create(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.New(apperr.CodeDPITaken, "Ya existe un cliente con ese DPI.")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.Client{}, err
	}
	log.Printf("[clients][create] id=%d", c.ID)
	return c, nil
}

func GetClient(gdb *gorm.DB, id uint) (models.Client, error) {
	var c models.Client
	err := gdb.Preload("CurrentMembership").First(&c, id).Error
	return c, notFound(err, "Cliente no encontrado.")
}

func ClientByDPI(gdb *gorm.DB, dpi string) (models.Client, error) {
	key := NormDPI(&dpi)
	if key == nil {
		return models.Client{}, apperr.Invalid("DPI requerido.", map[string]string{"dpi": "requerido"})
	}
	var c models.Client
	err := gdb.Where("dpi = ?", *key).First(&c).Error
	return c, notFound(err, "Cliente no encontrado.")
}

var folder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lower-cases s and strips accents so "Sofía" matches "sofia".
func fold(s string) string {
	out, _, err := transform.String(folder, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// SearchClients matches the query against names, email, phone and DPI,
// ignoring case and accents. An empty query lists everyone.
func SearchClients(gdb *gorm.DB, query string) ([]models.Client, error) {
	var all []models.Client
	if err := gdb.Order("first_name, last_name, id").Find(&all).Error; err != nil {
		return nil, err
	}
	q := fold(query)
	if q == "" {
		return all, nil
	}
	out := make([]models.Client, 0, len(all))
	for _, c := range all {
		hay := []string{fold(c.FullName()), fold(c.Email), c.Phone}
		if c.DPI != nil {
			hay = append(hay, *c.DPI)
		}
		for _, h := range hay {
			if strings.Contains(h, q) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

type ClientUpdate struct {
	FirstName           *string
	LastName            *string
	Email               *string
	Phone               *string
	DPI                 *string
	Notes               *string
	Status              *string
	CurrentMembershipID *uint
}

// UpdateClient applies the non-nil fields. Moving a client from active to
// inactive queues a membership-cancellation notice.
func UpdateClient(ctx context.Context, gdb *gorm.DB, id uint, in ClientUpdate) (models.Client, error) {
	var (
		c         models.Client
		wasActive bool
		planName  string
	)
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("CurrentMembership").First(&c, id).Error; err != nil {
			return notFound(err, "Cliente no encontrado.")
		}
		wasActive = c.Status == models.ClientActive

		fields := map[string]string{}
		up := map[string]any{}
		if in.FirstName != nil {
			if v := strings.TrimSpace(*in.FirstName); v != "" {
				c.FirstName, up["first_name"] = v, v
			} else {
				fields["first_name"] = "requerido"
			}
		}
		if in.LastName != nil {
			if v := strings.TrimSpace(*in.LastName); v != "" {
				c.LastName, up["last_name"] = v, v
			} else {
				fields["last_name"] = "requerido"
			}
		}
		if in.Email != nil {
			if v, ok := NormEmail(*in.Email); ok {
				c.Email, up["email"] = v, v
			} else {
				fields["email"] = "correo inválido"
			}
		}
		if in.Phone != nil {
			c.Phone = NormPhone(*in.Phone)
			up["phone"] = c.Phone
		}
		if in.Notes != nil {
			c.Notes, up["notes"] = *in.Notes, *in.Notes
		}
		if in.Status != nil {
			switch *in.Status {
			case models.ClientActive, models.ClientInactive:
				c.Status, up["status"] = *in.Status, *in.Status
			default:
				fields["status"] = "debe ser A o I"
			}
		}
		if in.CurrentMembershipID != nil {
			var m models.Membership
			if err := tx.First(&m, *in.CurrentMembershipID).Error; err != nil {
				return notFound(err, "Membresía no encontrada.")
			}
			c.CurrentMembershipID, c.CurrentMembership = &m.ID, &m
			up["current_membership_id"] = m.ID
		}
		if len(fields) > 0 {
			return apperr.Invalid("Datos del cliente inválidos.", fields)
		}
		if in.DPI != nil {
			dpi := NormDPI(in.DPI)
			if err := dpiTaken(tx, dpi, c.ID); err != nil {
				return err
			}
			c.DPI, up["dpi"] = dpi, dpi
		}
		if len(up) == 0 {
			return nil
		}
		if err := tx.Model(&models.Client{}).Where("id = ?", c.ID).Updates(up).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.New(apperr.CodeDPITaken, "Ya existe un cliente con ese DPI.")
			}
			return err
		}

		if c.CurrentMembership != nil {
			planName = c.CurrentMembership.Name
		} else {
			ps, err := latestPayment(tx, c.ID)
			if err != nil {
				return err
			}
			if p, ok := eligibility.LatestPayment(ps); ok {
				planName = p.Membership.Name
			}
		}
		return nil
	})
	if err != nil {
		return models.Client{}, err
	}
	if wasActive && c.Status == models.ClientInactive {
		log.Printf("[clients][deactivate] id=%d", c.ID)
		events.Publish(gdb, events.MembershipCancellation(c, planName))
	}
	return c, nil
}

// ClientEstado derives the booking-front-end state for a client.
func ClientEstado(gdb *gorm.DB, id uint, now time.Time) (eligibility.State, error) {
	var c models.Client
	if err := gdb.First(&c, id).Error; err != nil {
		return eligibility.State{}, notFound(err, "Cliente no encontrado.")
	}
	ps, err := latestPayment(gdb, c.ID)
	if err != nil {
		return eligibility.State{}, err
	}
	_, active := eligibility.ActiveMembership(ps, studiotime.Today(now))

	var intents []models.PlanIntent
	if err := gdb.Preload("Membership").
		Where("client_id = ? AND is_confirmed = ?", c.ID, false).
		Order("selected_at DESC, id DESC").Limit(1).
		Find(&intents).Error; err != nil {
		return eligibility.State{}, err
	}
	st := eligibility.ClientState(c.TrialUsed, active, len(intents) > 0)
	if len(intents) > 0 {
		pi := intents[0]
		st.PlanIntent = &eligibility.PendingPlan{
			MembershipID:   pi.MembershipID,
			MembershipName: pi.Membership.Name,
			Price:          pi.Membership.Price,
		}
	}
	return st, nil
}

type ClientCount struct {
	Total        int64 `json:"total"`
	Active       int64 `json:"active"`
	Inactive     int64 `json:"inactive"`
	NewThisMonth int64 `json:"new_this_month"`
}

func CountClients(gdb *gorm.DB, now time.Time) (ClientCount, error) {
	var out ClientCount
	if err := gdb.Model(&models.Client{}).Count(&out.Total).Error; err != nil {
		return out, err
	}
	if err := gdb.Model(&models.Client{}).Where("status = ?", models.ClientActive).Count(&out.Active).Error; err != nil {
		return out, err
	}
	if err := gdb.Model(&models.Client{}).Where("status = ?", models.ClientInactive).Count(&out.Inactive).Error; err != nil {
		return out, err
	}
	y, mo := studiotime.YearMonth(now)
	start, end := studiotime.MonthBounds(y, mo)
	err := gdb.Model(&models.Client{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&out.NewThisMonth).Error
	return out, err
}
