package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/services"
)

type paymentRequest struct {
	ClientID      uint            `json:"client_id"`
	MembershipID  uint            `json:"membership_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	DatePaid      string          `json:"date_paid"`
	ValidUntil    string          `json:"valid_until"`
}

// POST /payments
func (a *API) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	fields := map[string]string{}
	if req.ClientID == 0 {
		fields["client_id"] = "requerido"
	}
	if req.MembershipID == 0 {
		fields["membership_id"] = "requerido"
	}
	paid, err := parseInstant("date_paid", req.DatePaid)
	if err != nil {
		fields["date_paid"] = "formato YYYY-MM-DD o RFC 3339"
	}
	validUntil, err := optDate("valid_until", req.ValidUntil)
	if err != nil {
		fields["valid_until"] = "formato YYYY-MM-DD"
	}
	if len(fields) > 0 {
		writeError(w, r, apperr.Invalid("Datos de pago inválidos.", fields))
		return
	}
	p, err := services.CreatePayment(r.Context(), a.DB, services.PaymentInput{
		ClientID:      req.ClientID,
		MembershipID:  req.MembershipID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		DatePaid:      paid,
		ValidUntil:    validUntil,
	}, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GET /payments?client_id=
func (a *API) ListPayments(w http.ResponseWriter, r *http.Request) {
	clientID, err := optUint(r, "client_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := services.ListPayments(a.DB, clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DELETE /payments/{id}
func (a *API) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := services.DeletePayment(r.Context(), a.DB, id, a.Now()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /payments/{id}/extend
func (a *API) ExtendPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := services.ExtendValidity(r.Context(), a.DB, id, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GET /payments/grace
func (a *API) GracePeriod(w http.ResponseWriter, r *http.Request) {
	out, err := services.GracePeriod(a.DB, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /payments/today
func (a *API) TodayPayments(w http.ResponseWriter, r *http.Request) {
	out, err := services.TodayPayments(a.DB, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
