package services

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/studiotime"
)

type revenueDelta struct {
	Total     decimal.Decimal
	Payments  int
	SaleTotal decimal.Decimal
	Sales     int
}

func (d revenueDelta) neg() revenueDelta {
	return revenueDelta{Total: d.Total.Neg(), Payments: -d.Payments, SaleTotal: d.SaleTotal.Neg(), Sales: -d.Sales}
}

func paymentDelta(p models.Payment) revenueDelta {
	return revenueDelta{Total: p.Amount, Payments: 1}
}

func saleDelta(s models.Sale) revenueDelta {
	return revenueDelta{Total: s.TotalAmount, SaleTotal: s.TotalAmount, Sales: 1}
}

func incrementRevenue(tx *gorm.DB, at time.Time, d revenueDelta) error {
	year, month := studiotime.YearMonth(at)
	row := models.MonthlyRevenue{Year: year, Month: int(month)}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return err
	}
	return bumpRevenue(tx, year, int(month), d)
}

// decrementRevenue subtracts d from the period row. A missing row is left
// alone; a later recalculation restores it.
func decrementRevenue(tx *gorm.DB, at time.Time, d revenueDelta) error {
	year, month := studiotime.YearMonth(at)
	return bumpRevenue(tx, year, int(month), d.neg())
}

// bumpRevenue applies d in SQL so concurrent writers can't lose updates.
func bumpRevenue(tx *gorm.DB, year, month int, d revenueDelta) error {
	return tx.Model(&models.MonthlyRevenue{}).
		Where("year = ? AND month = ?", year, month).
		Updates(map[string]any{
			"total_amount":  gorm.Expr("total_amount + ?", d.Total),
			"payment_count": gorm.Expr("payment_count + ?", d.Payments),
			"sale_total":    gorm.Expr("sale_total + ?", d.SaleTotal),
			"sale_count":    gorm.Expr("sale_count + ?", d.Sales),
		}).Error
}

type RevenueSummary struct {
	Year         int             `json:"year"`
	Month        int             `json:"month"`
	Total        decimal.Decimal `json:"total_amount"`
	FromPayments decimal.Decimal `json:"from_payments"`
	FromSales    decimal.Decimal `json:"sale_total"`
	PaymentCount int             `json:"payment_count"`
	SaleCount    int             `json:"sale_count"`
}

func upsertRevenue(tx *gorm.DB, s RevenueSummary) error {
	row := models.MonthlyRevenue{Year: s.Year, Month: s.Month}
	if err := tx.Where("year = ? AND month = ?", s.Year, s.Month).FirstOrCreate(&row).Error; err != nil {
		return err
	}
	return tx.Model(&row).Updates(map[string]any{
		"total_amount":  s.Total,
		"payment_count": s.PaymentCount,
		"sale_total":    s.FromSales,
		"sale_count":    s.SaleCount,
	}).Error
}

// Recalculate rebuilds one period from its payments and sales.
func Recalculate(ctx context.Context, gdb *gorm.DB, year, month int) (RevenueSummary, error) {
	ctx, span := tracer.Start(ctx, "services.Recalculate")
	defer span.End()
	span.SetAttributes(attribute.Int("year", year), attribute.Int("month", month))

	start, end := studiotime.MonthBounds(year, time.Month(month))
	sum := RevenueSummary{Year: year, Month: month, FromPayments: decimal.Zero, FromSales: decimal.Zero}

	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ps []models.Payment
		if err := tx.Select("id", "amount").
			Where("date_paid >= ? AND date_paid < ?", start, end).Find(&ps).Error; err != nil {
			return err
		}
		var ss []models.Sale
		if err := tx.Select("id", "total_amount").
			Where("date_sold >= ? AND date_sold < ?", start, end).Find(&ss).Error; err != nil {
			return err
		}
		for _, p := range ps {
			sum.FromPayments = sum.FromPayments.Add(p.Amount)
		}
		for _, s := range ss {
			sum.FromSales = sum.FromSales.Add(s.TotalAmount)
		}
		sum.PaymentCount, sum.SaleCount = len(ps), len(ss)
		sum.Total = sum.FromPayments.Add(sum.FromSales)
		return upsertRevenue(tx, sum)
	})
	return sum, err
}

type periodKey struct{ year, month int }

// RecalculateAll rebuilds every period that has payments or sales and zeroes
// periods whose records were all deleted.
func RecalculateAll(ctx context.Context, gdb *gorm.DB) ([]RevenueSummary, error) {
	ctx, span := tracer.Start(ctx, "services.RecalculateAll")
	defer span.End()

	var out []RevenueSummary
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ps []models.Payment
		if err := tx.Select("id", "amount", "date_paid").Find(&ps).Error; err != nil {
			return err
		}
		var ss []models.Sale
		if err := tx.Select("id", "total_amount", "date_sold").Find(&ss).Error; err != nil {
			return err
		}

		periods := map[periodKey]*RevenueSummary{}
		get := func(at time.Time) *RevenueSummary {
			y, m := studiotime.YearMonth(at)
			k := periodKey{y, int(m)}
			if periods[k] == nil {
				periods[k] = &RevenueSummary{Year: y, Month: int(m), FromPayments: decimal.Zero, FromSales: decimal.Zero}
			}
			return periods[k]
		}
		for _, p := range ps {
			s := get(p.DatePaid)
			s.FromPayments = s.FromPayments.Add(p.Amount)
			s.PaymentCount++
		}
		for _, v := range ss {
			s := get(v.DateSold)
			s.FromSales = s.FromSales.Add(v.TotalAmount)
			s.SaleCount++
		}

		for _, s := range periods {
			s.Total = s.FromPayments.Add(s.FromSales)
			if err := upsertRevenue(tx, *s); err != nil {
				return err
			}
			out = append(out, *s)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Year != out[j].Year {
				return out[i].Year > out[j].Year
			}
			return out[i].Month > out[j].Month
		})

		var existing []models.MonthlyRevenue
		if err := tx.Find(&existing).Error; err != nil {
			return err
		}
		for _, row := range existing {
			if periods[periodKey{row.Year, row.Month}] != nil {
				continue
			}
			zero := RevenueSummary{Year: row.Year, Month: row.Month,
				Total: decimal.Zero, FromPayments: decimal.Zero, FromSales: decimal.Zero}
			if err := upsertRevenue(tx, zero); err != nil {
				return err
			}
			out = append(out, zero)
		}
		return nil
	})
	return out, err
}

// ListMonthlyRevenue returns the stored periods, newest first.
func ListMonthlyRevenue(gdb *gorm.DB, year, month int) ([]models.MonthlyRevenue, error) {
	q := gdb.Order("year DESC, month DESC")
	if year > 0 {
		q = q.Where("year = ?", year)
	}
	if month > 0 {
		q = q.Where("month = ?", month)
	}
	var out []models.MonthlyRevenue
	err := q.Find(&out).Error
	return out, err
}

func TotalRevenue(gdb *gorm.DB) (decimal.Decimal, error) {
	rows, err := ListMonthlyRevenue(gdb, 0, 0)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.TotalAmount)
	}
	return total, nil
}

type DayPayments struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// TodayPayments sums payments received on today's studio-local date.
func TodayPayments(gdb *gorm.DB, now time.Time) (DayPayments, error) {
	today := studiotime.Today(now)
	start, end := studiotime.DayBounds(today)
	var ps []models.Payment
	if err := gdb.Select("id", "amount").Where("date_paid >= ? AND date_paid < ?", start, end).Find(&ps).Error; err != nil {
		return DayPayments{}, err
	}
	out := DayPayments{Date: studiotime.FormatDate(today), Total: decimal.Zero, Count: len(ps)}
	for _, p := range ps {
		out.Total = out.Total.Add(p.Amount)
	}
	return out, nil
}
