package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/models"
)

type SaleInput struct {
	ClientID      uint
	ProductName   string
	Quantity      int
	PricePerUnit  decimal.Decimal
	PaymentMethod string
	DateSold      *time.Time
	Notes         string
}

// CreateSale records a product sale and adds it to its month's revenue.
func CreateSale(ctx context.Context, gdb *gorm.DB, in SaleInput, now time.Time) (models.Sale, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.ProductName) == "" {
		fields["product_name"] = "requerido"
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Quantity < 0 {
		fields["quantity"] = "debe ser mayor que cero"
	}
	if in.PricePerUnit.IsNegative() {
		fields["price_per_unit"] = "no puede ser negativo"
	}
	if len(fields) > 0 {
		return models.Sale{}, apperr.Invalid("Datos de la venta inválidos.", fields)
	}
	sold := now
	if in.DateSold != nil {
		sold = *in.DateSold
	}

	s := models.Sale{
		ClientID:      in.ClientID,
		ProductName:   strings.TrimSpace(in.ProductName),
		Quantity:      in.Quantity,
		PricePerUnit:  in.PricePerUnit,
		PaymentMethod: strings.ToLower(strings.TrimSpace(in.PaymentMethod)),
		DateSold:      sold,
		Notes:         in.Notes,
	}
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Client
		if err := tx.First(&c, in.ClientID).Error; err != nil {
			return notFound(err, "Cliente no encontrado.")
		}
		if err := tx.Omit(clause.Associations).Create(&s).Error; err != nil {
			return err
		}
		return incrementRevenue(tx, s.DateSold, saleDelta(s))
	})
	if err != nil {
		return models.Sale{}, err
	}
	log.Printf("[sales][create] id=%d client=%d total=%s", s.ID, s.ClientID, s.TotalAmount)
	return s, nil
}

func DeleteSale(ctx context.Context, gdb *gorm.DB, id uint) error {
	return gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.Sale
		if err := tx.First(&s, id).Error; err != nil {
			return notFound(err, "Venta no encontrada.")
		}
		if err := tx.Delete(&models.Sale{}, s.ID).Error; err != nil {
			return err
		}
		return decrementRevenue(tx, s.DateSold, saleDelta(s))
	})
}

func ListSales(gdb *gorm.DB, clientID *uint) ([]models.Sale, error) {
	q := gdb.Order("date_sold DESC, id DESC")
	if clientID != nil {
		q = q.Where("client_id = ?", *clientID)
	}
	var out []models.Sale
	err := q.Find(&out).Error
	return out, err
}
