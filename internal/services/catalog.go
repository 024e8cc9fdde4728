package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/studiotime"
)

func CreateClassType(gdb *gorm.DB, name, description string) (models.ClassType, error) {
	ct := models.ClassType{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if ct.Name == "" {
		return ct, apperr.Invalid("Nombre requerido.", map[string]string{"name": "requerido"})
	}
	err := gdb.Create(&ct).Error
	return ct, err
}

func ListClassTypes(gdb *gorm.DB) ([]models.ClassType, error) {
	var out []models.ClassType
	err := gdb.Order("name").Find(&out).Error
	return out, err
}

type ScheduleInput struct {
	Day          string
	TimeSlot     string
	ClassTypeID  *uint
	IsIndividual bool
	Capacity     int
	CoachID      *uint
}

func CreateSchedule(gdb *gorm.DB, in ScheduleInput) (models.Schedule, error) {
	fields := map[string]string{}
	day := strings.ToUpper(strings.TrimSpace(in.Day))
	if !studiotime.ValidDayCode(day) {
		fields["day"] = "debe ser MON, TUE, WED, THU, FRI, SAT o SUN"
	}
	if _, err := time.Parse("15:04", in.TimeSlot); err != nil {
		fields["time_slot"] = "formato HH:MM"
	}
	if in.Capacity < 0 {
		fields["capacity"] = "no puede ser negativa"
	}
	if len(fields) > 0 {
		return models.Schedule{}, apperr.Invalid("Horario inválido.", fields)
	}
	if in.ClassTypeID != nil {
		if err := gdb.First(&models.ClassType{}, *in.ClassTypeID).Error; err != nil {
			return models.Schedule{}, notFound(err, "Tipo de clase no encontrado.")
		}
	}
	if in.CoachID != nil {
		if err := gdb.First(&models.StaffUser{}, *in.CoachID).Error; err != nil {
			return models.Schedule{}, notFound(err, "Coach no encontrado.")
		}
	}

	s := models.Schedule{
		Day:          day,
		TimeSlot:     in.TimeSlot,
		ClassTypeID:  in.ClassTypeID,
		IsIndividual: in.IsIndividual,
		Capacity:     in.Capacity,
		CoachID:      in.CoachID,
	}
	if s.Capacity == 0 {
		s.Capacity = 9
	}
	err := gdb.Omit(clause.Associations).Create(&s).Error
	return s, err
}

var dayOrder = map[string]int{"MON": 0, "TUE": 1, "WED": 2, "THU": 3, "FRI": 4, "SAT": 5, "SUN": 6}

// ListSchedules returns slots ordered by weekday and time, optionally
// filtered by day code and coach.
func ListSchedules(gdb *gorm.DB, day string, coachID *uint) ([]models.Schedule, error) {
	q := gdb.Preload("ClassType").Preload("Coach")
	if day != "" {
		q = q.Where("day = ?", strings.ToUpper(day))
	}
	if coachID != nil {
		q = q.Where("coach_id = ?", *coachID)
	}
	var out []models.Schedule
	if err := q.Order("time_slot").Find(&out).Error; err != nil {
		return nil, err
	}
	sortSchedules(out)
	return out, nil
}

func sortSchedules(ss []models.Schedule) {
	sort.SliceStable(ss, func(i, j int) bool {
		return dayOrder[ss[i].Day] < dayOrder[ss[j].Day]
	})
}

type ScheduleDay struct {
	Schedule models.Schedule  `json:"schedule"`
	Bookings []models.Booking `json:"bookings"`
}

// TodayForCoach lists the coach's slots for today with their bookings.
func TodayForCoach(gdb *gorm.DB, coachID uint, now time.Time) ([]ScheduleDay, error) {
	today := studiotime.Today(now)
	var ss []models.Schedule
	if err := gdb.Preload("ClassType").
		Where("day = ? AND coach_id = ?", studiotime.DayCode(today), coachID).
		Order("time_slot").Find(&ss).Error; err != nil {
		return nil, err
	}
	out := make([]ScheduleDay, 0, len(ss))
	for _, s := range ss {
		var bs []models.Booking
		if err := gdb.Preload("Client").
			Where("schedule_id = ? AND class_date = ? AND status <> ?", s.ID, today, models.BookingCancelled).
			Order("id").Find(&bs).Error; err != nil {
			return nil, err
		}
		out = append(out, ScheduleDay{Schedule: s, Bookings: bs})
	}
	return out, nil
}

func CreateMembership(gdb *gorm.DB, name string, price decimal.Decimal, classesPerMonth *int) (models.Membership, error) {
	fields := map[string]string{}
	if strings.TrimSpace(name) == "" {
		fields["name"] = "requerido"
	}
	if price.IsNegative() {
		fields["price"] = "no puede ser negativo"
	}
	if classesPerMonth != nil && *classesPerMonth < 0 {
		fields["classes_per_month"] = "no puede ser negativo"
	}
	if len(fields) > 0 {
		return models.Membership{}, apperr.Invalid("Membresía inválida.", fields)
	}
	m := models.Membership{Name: strings.TrimSpace(name), Price: price, ClassesPerMonth: classesPerMonth}
	err := gdb.Create(&m).Error
	return m, err
}

func ListMemberships(gdb *gorm.DB) ([]models.Membership, error) {
	var out []models.Membership
	err := gdb.Order("id").Find(&out).Error
	return out, err
}

type PromotionInput struct {
	Name             string
	Description      string
	StartDate        time.Time
	EndDate          time.Time
	Price            decimal.Decimal
	MembershipID     uint
	ClassesPerClient int
}

func CreatePromotion(gdb *gorm.DB, in PromotionInput) (models.Promotion, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "requerido"
	}
	if in.EndDate.Before(in.StartDate) {
		fields["end_date"] = "debe ser posterior a start_date"
	}
	if in.Price.IsNegative() {
		fields["price"] = "no puede ser negativo"
	}
	if in.ClassesPerClient < 0 {
		fields["clases_por_cliente"] = "no puede ser negativo"
	}
	if len(fields) > 0 {
		return models.Promotion{}, apperr.Invalid("Promoción inválida.", fields)
	}
	if err := gdb.First(&models.Membership{}, in.MembershipID).Error; err != nil {
		return models.Promotion{}, notFound(err, "Membresía no encontrada.")
	}
	p := models.Promotion{
		Name:             strings.TrimSpace(in.Name),
		Description:      in.Description,
		StartDate:        civil(in.StartDate),
		EndDate:          civil(in.EndDate),
		Price:            in.Price,
		MembershipID:     in.MembershipID,
		ClassesPerClient: in.ClassesPerClient,
	}
	if p.ClassesPerClient == 0 {
		p.ClassesPerClient = 4
	}
	err := gdb.Omit(clause.Associations).Create(&p).Error
	return p, err
}

func ListPromotions(gdb *gorm.DB) ([]models.Promotion, error) {
	var out []models.Promotion
	err := gdb.Preload("Membership").Order("start_date DESC").Find(&out).Error
	return out, err
}

// CreatePromotionInstance records a promotion purchase shared by clientIDs.
func CreatePromotionInstance(ctx context.Context, gdb *gorm.DB, promotionID uint, clientIDs []uint) (models.PromotionInstance, error) {
	var inst models.PromotionInstance
	if len(clientIDs) == 0 {
		return inst, apperr.Invalid("Se requiere al menos un cliente.", map[string]string{"clients": "requerido"})
	}
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var promo models.Promotion
		if err := tx.First(&promo, promotionID).Error; err != nil {
			return notFound(err, "Promoción no encontrada.")
		}
		var clients []models.Client
		if err := tx.Where("id IN ?", clientIDs).Find(&clients).Error; err != nil {
			return err
		}
		if len(clients) != len(uniqueIDs(clientIDs)) {
			return apperr.NotFound("Cliente no encontrado.")
		}
		inst = models.PromotionInstance{PromotionID: promo.ID}
		if err := tx.Omit(clause.Associations).Create(&inst).Error; err != nil {
			return err
		}
		if err := tx.Model(&inst).Association("Clients").Append(clients); err != nil {
			return err
		}
		inst.Promotion = promo
		inst.Clients = clients
		return nil
	})
	return inst, err
}

func ListPromotionInstances(gdb *gorm.DB) ([]models.PromotionInstance, error) {
	var out []models.PromotionInstance
	err := gdb.Preload("Promotion").Preload("Clients").Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	m := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}
