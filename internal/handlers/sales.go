package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/vilepilates/studio/internal/services"
)

type saleRequest struct {
	ClientID      uint            `json:"client_id"`
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity"`
	PricePerUnit  decimal.Decimal `json:"price_per_unit"`
	PaymentMethod string          `json:"payment_method"`
	DateSold      string          `json:"date_sold"`
	Notes         string          `json:"notes"`
}

// POST /sales
func (a *API) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sold, err := parseInstant("date_sold", req.DateSold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := services.CreateSale(r.Context(), a.DB, services.SaleInput{
		ClientID:      req.ClientID,
		ProductName:   req.ProductName,
		Quantity:      req.Quantity,
		PricePerUnit:  req.PricePerUnit,
		PaymentMethod: req.PaymentMethod,
		DateSold:      sold,
		Notes:         req.Notes,
	}, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// GET /sales?client_id=
func (a *API) ListSales(w http.ResponseWriter, r *http.Request) {
	clientID, err := optUint(r, "client_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := services.ListSales(a.DB, clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DELETE /sales/{id}
func (a *API) DeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := services.DeleteSale(r.Context(), a.DB, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
