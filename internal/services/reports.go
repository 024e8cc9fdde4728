package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/eligibility"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/studiotime"
)

type AtRiskClient struct {
	ClientID uint     `json:"client_id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Dates    []string `json:"no_show_dates"`
}

// ConsecutiveNoShows lists clients whose last n past active bookings were
// all no-shows.
func ConsecutiveNoShows(gdb *gorm.DB, n int, now time.Time) ([]AtRiskClient, error) {
	if n <= 0 {
		n = 3
	}
	var bs []models.Booking
	if err := gdb.Preload("Client").
		Where("class_date < ? AND status = ?", studiotime.Today(now), models.BookingActive).
		Order("client_id, class_date DESC, id DESC").
		Find(&bs).Error; err != nil {
		return nil, err
	}

	out := []AtRiskClient{}
	for i := 0; i < len(bs); {
		j := i
		for j < len(bs) && bs[j].ClientID == bs[i].ClientID {
			j++
		}
		recent := bs[i:j]
		if len(recent) >= n {
			recent = recent[:n]
			all := true
			dates := make([]string, 0, n)
			for _, b := range recent {
				if b.AttendanceStatus != models.AttendanceNoShow {
					all = false
					break
				}
				dates = append(dates, studiotime.FormatDate(b.ClassDate))
			}
			if all {
				c := recent[0].Client
				out = append(out, AtRiskClient{ClientID: c.ID, Name: c.FullName(), Email: c.Email, Phone: c.Phone, Dates: dates})
			}
		}
		i = j
	}
	return out, nil
}

type UsageRow struct {
	ClientID        uint            `json:"client_id"`
	ClientName      string          `json:"client_name"`
	Membership      string          `json:"membership"`
	ExpectedClasses int             `json:"expected_classes"`
	ValidClasses    int             `json:"valid_classes"`
	NoShowClasses   int             `json:"no_show_classes"`
	NoShowDates     []string        `json:"date_no_show"`
	Penalty         decimal.Decimal `json:"penalty"`
}

// MonthlyUsageReport summarizes each active client's month: valid classes,
// unjustified no-shows and the suggested penalty.
func MonthlyUsageReport(gdb *gorm.DB, year, month int) ([]UsageRow, error) {
	first, next := studiotime.MonthRange(year, time.Month(month))

	var clients []models.Client
	if err := gdb.Where("status = ?", models.ClientActive).Order("id").Find(&clients).Error; err != nil {
		return nil, err
	}
	out := []UsageRow{}
	for _, c := range clients {
		var ps []models.Payment
		if err := gdb.Preload("Membership").
			Where("client_id = ? AND valid_until >= ?", c.ID, first).
			Order("date_paid DESC, id DESC").Limit(1).
			Find(&ps).Error; err != nil {
			return nil, err
		}
		if len(ps) == 0 {
			continue
		}
		var bs []models.Booking
		if err := gdb.Where("client_id = ? AND class_date >= ? AND class_date < ?", c.ID, first, next).
			Order("class_date").Find(&bs).Error; err != nil {
			return nil, err
		}

		row := UsageRow{
			ClientID:     c.ID,
			ClientName:   c.FullName(),
			Membership:   ps[0].Membership.Name,
			ValidClasses: eligibility.CountValidMonthly(bs, first),
			NoShowDates:  []string{},
		}
		if ps[0].Membership.ClassesPerMonth != nil {
			row.ExpectedClasses = *ps[0].Membership.ClassesPerMonth
		}
		seen := map[string]bool{}
		for _, b := range bs {
			if b.AttendanceStatus != models.AttendanceNoShow || strings.TrimSpace(b.CancellationReason) != "" {
				continue
			}
			row.NoShowClasses++
			if d := studiotime.FormatDate(b.ClassDate); !seen[d] {
				seen[d] = true
				row.NoShowDates = append(row.NoShowDates, d)
			}
		}
		row.Penalty = decimal.NewFromInt(int64(opts.NoShowPenalty * row.NoShowClasses))
		out = append(out, row)
	}
	return out, nil
}

type ClassTypeCount struct {
	ClassType string `json:"class_type"`
	Count     int64  `json:"count"`
}

// SummaryByClassType counts bookings per class type. Slots without a class
// type are left out.
func SummaryByClassType(gdb *gorm.DB) ([]ClassTypeCount, error) {
	var out []ClassTypeCount
	err := gdb.Table("bookings").
		Select("class_types.name AS class_type, COUNT(bookings.id) AS count").
		Joins("JOIN schedules ON schedules.id = bookings.schedule_id").
		Joins("JOIN class_types ON class_types.id = schedules.class_type_id").
		Group("class_types.name").
		Order("count DESC, class_types.name").
		Scan(&out).Error
	return out, err
}

var weekdayNames = [...]string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"}

type DayCount struct {
	Day   string `json:"day"`
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// AttendanceSummary counts attended bookings for each day of the current
// Monday-to-Sunday week.
func AttendanceSummary(gdb *gorm.DB, now time.Time) ([]DayCount, error) {
	start, end := studiotime.WeekRange(studiotime.Today(now))
	var bs []models.Booking
	if err := gdb.Select("id", "class_date").
		Where("class_date >= ? AND class_date <= ? AND attendance_status = ?", start, end, models.AttendanceAttended).
		Find(&bs).Error; err != nil {
		return nil, err
	}
	out := make([]DayCount, 7)
	for i := range out {
		d := start.AddDate(0, 0, i)
		out[i] = DayCount{Day: weekdayNames[d.Weekday()], Date: studiotime.FormatDate(d)}
	}
	for _, b := range bs {
		idx := int(civil(b.ClassDate).Sub(start).Hours() / 24)
		if idx >= 0 && idx < 7 {
			out[idx].Count++
		}
	}
	return out, nil
}

type Slot struct {
	ScheduleID   uint      `json:"schedule_id"`
	ClassType    *string   `json:"class_type"`
	IsIndividual bool      `json:"is_individual"`
	Capacity     int       `json:"capacity"`
	Booked       int       `json:"booked"`
	Coach        string    `json:"coach"`
	Available    bool      `json:"available"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
}

type DayAvailability struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

// Availability lists the slots scheduled on the date's weekday with their
// occupancy. Each slot lasts one hour.
func Availability(gdb *gorm.DB, date time.Time) (DayAvailability, error) {
	day := civil(date)
	out := DayAvailability{Date: studiotime.FormatDate(day), Slots: []Slot{}}

	var ss []models.Schedule
	if err := gdb.Preload("ClassType").Preload("Coach").
		Where("day = ?", studiotime.DayCode(day)).Find(&ss).Error; err != nil {
		return out, err
	}
	for _, s := range ss {
		booked, err := occupied(gdb, s.ID, day, 0)
		if err != nil {
			return out, err
		}
		start, err := studiotime.SlotStart(day, s.TimeSlot)
		if err != nil {
			return out, fmt.Errorf("schedule %d: %w", s.ID, err)
		}
		slot := Slot{
			ScheduleID:   s.ID,
			IsIndividual: s.IsIndividual,
			Capacity:     s.Capacity,
			Booked:       booked,
			Available:    booked < s.Capacity,
			Start:        start,
			End:          start.Add(time.Hour),
		}
		if s.ClassType != nil {
			name := s.ClassType.Name
			slot.ClassType = &name
		}
		if s.Coach != nil {
			slot.Coach = strings.TrimSpace(s.Coach.FirstName + " " + s.Coach.LastName)
		}
		out.Slots = append(out.Slots, slot)
	}
	sort.SliceStable(out.Slots, func(i, j int) bool { return out.Slots[i].Start.Before(out.Slots[j].Start) })
	return out, nil
}

type ClosingDay struct {
	Date               string          `json:"fecha"`
	Total              decimal.Decimal `json:"total"`
	Attendances        int             `json:"asistencias"`
	PackagesSold       int             `json:"paquetes_vendidos"`
	IndividualClasses  int             `json:"clases_individuales"`
	Trials             int             `json:"pruebas"`
	Card               decimal.Decimal `json:"tarjeta"`
	Cash               decimal.Decimal `json:"efectivo"`
	VisaLink           decimal.Decimal `json:"visalink"`
	PurchasePercentage decimal.Decimal `json:"porcentaje_compra"`
}

type ClosingWeek struct {
	Week              int             `json:"semana"`
	Year              int             `json:"año"`
	Range             string          `json:"rango"`
	Total             decimal.Decimal `json:"total_semana"`
	Attendances       int             `json:"total_asistencias"`
	PackagesSold      int             `json:"total_paquetes"`
	IndividualClasses int             `json:"total_clases_ind"`
	Trials            int             `json:"total_pruebas"`
	Card              decimal.Decimal `json:"total_tarjeta"`
	Cash              decimal.Decimal `json:"total_efectivo"`
	VisaLink          decimal.Decimal `json:"total_visalink"`
	Days              []ClosingDay    `json:"dias"`
}

// WeeklyClosing rolls up, for every studio-local day with payments, the
// money received and that day's bookings, grouped by ISO week.
func WeeklyClosing(gdb *gorm.DB) ([]ClosingWeek, error) {
	var ps []models.Payment
	if err := gdb.Select("id", "amount", "payment_method", "date_paid").Order("date_paid").Find(&ps).Error; err != nil {
		return nil, err
	}
	var ss []models.Sale
	if err := gdb.Select("id", "total_amount", "date_sold").Find(&ss).Error; err != nil {
		return nil, err
	}

	days := map[string]*ClosingDay{}
	var order []time.Time
	for _, p := range ps {
		d := studiotime.DateOf(p.DatePaid)
		key := studiotime.FormatDate(d)
		cd := days[key]
		if cd == nil {
			cd = &ClosingDay{Date: key, Total: decimal.Zero, Card: decimal.Zero, Cash: decimal.Zero,
				VisaLink: decimal.Zero, PurchasePercentage: decimal.Zero}
			days[key] = cd
			order = append(order, d)
		}
		cd.Total = cd.Total.Add(p.Amount)
		cd.PackagesSold++
		switch strings.ToLower(p.PaymentMethod) {
		case MethodCard:
			cd.Card = cd.Card.Add(p.Amount)
		case MethodCash:
			cd.Cash = cd.Cash.Add(p.Amount)
		case MethodVisaLink:
			cd.VisaLink = cd.VisaLink.Add(p.Amount)
		}
	}
	for _, s := range ss {
		if cd := days[studiotime.FormatDate(studiotime.DateOf(s.DateSold))]; cd != nil {
			cd.Total = cd.Total.Add(s.TotalAmount)
		}
	}

	if len(order) > 0 {
		var bs []models.Booking
		if err := gdb.Preload("Schedule").Where("class_date IN ?", order).Find(&bs).Error; err != nil {
			return nil, err
		}
		for _, b := range bs {
			cd := days[studiotime.FormatDate(b.ClassDate)]
			if cd == nil {
				continue
			}
			cd.Attendances++
			switch {
			case b.Schedule.IsIndividual:
				cd.IndividualClasses++
			case b.MembershipID == nil:
				cd.Trials++
			}
		}
	}

	type weekKey struct{ year, week int }
	weeks := map[weekKey]*ClosingWeek{}
	var keys []weekKey
	hundred := decimal.NewFromInt(100)
	for _, d := range order {
		cd := days[studiotime.FormatDate(d)]
		if cd.Attendances > 0 {
			cd.PurchasePercentage = decimal.NewFromInt(int64(cd.PackagesSold)).
				Mul(hundred).Div(decimal.NewFromInt(int64(cd.Attendances))).Round(2)
		}
		y, w := d.ISOWeek()
		k := weekKey{y, w}
		cw := weeks[k]
		if cw == nil {
			cw = &ClosingWeek{Week: w, Year: y, Total: decimal.Zero, Card: decimal.Zero,
				Cash: decimal.Zero, VisaLink: decimal.Zero}
			weeks[k] = cw
			keys = append(keys, k)
		}
		cw.Total = cw.Total.Add(cd.Total)
		cw.Attendances += cd.Attendances
		cw.PackagesSold += cd.PackagesSold
		cw.IndividualClasses += cd.IndividualClasses
		cw.Trials += cd.Trials
		cw.Card = cw.Card.Add(cd.Card)
		cw.Cash = cw.Cash.Add(cd.Cash)
		cw.VisaLink = cw.VisaLink.Add(cd.VisaLink)
		cw.Days = append(cw.Days, *cd)
	}

	out := make([]ClosingWeek, 0, len(keys))
	for _, k := range keys {
		cw := weeks[k]
		first, _ := studiotime.ParseDate(cw.Days[0].Date)
		last, _ := studiotime.ParseDate(cw.Days[len(cw.Days)-1].Date)
		cw.Range = first.Format("02/01/2006") + " - " + last.Format("02/01/2006")
		out = append(out, *cw)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Week < out[j].Week
	})
	return out, nil
}
