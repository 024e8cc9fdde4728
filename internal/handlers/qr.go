package handlers

import (
	"net/http"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/services"
)

// GET /bookings/{id}/qr.png
//
// The image encodes the booking code, which POST /checkin accepts.
func (a *API) BookingQR(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := services.GetBooking(a.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if b.Status == models.BookingCancelled {
		writeError(w, r, apperr.New(apperr.CodeBookingCancelled, "La reserva fue cancelada."))
		return
	}

	png, err := qrcode.Encode(b.Code, qrcode.Medium, 256)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
