package handlers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/auth"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/services"
)

type bookingRequest struct {
	ClientID         uint   `json:"client_id"`
	ScheduleID       uint   `json:"schedule_id"`
	ClassDate        string `json:"class_date"`
	MembershipID     *uint  `json:"membership_id"`
	AttendanceStatus string `json:"attendance_status"`
}

type bookingCreated struct {
	Booking models.Booking   `json:"booking"`
	Outcome string           `json:"outcome"`
	Message string           `json:"message,omitempty"`
	Price   *decimal.Decimal `json:"price,omitempty"`
	Deposit *decimal.Decimal `json:"deposit,omitempty"`
}

// POST /bookings
func (a *API) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	fields := map[string]string{}
	if req.ClientID == 0 {
		fields["client_id"] = "requerido"
	}
	if req.ScheduleID == 0 {
		fields["schedule_id"] = "requerido"
	}
	day, err := parseDate("class_date", req.ClassDate)
	if err != nil {
		fields["class_date"] = "formato YYYY-MM-DD"
	}
	if len(fields) > 0 {
		writeError(w, r, apperr.Invalid("Datos de reserva inválidos.", fields))
		return
	}

	p, _ := auth.FromContext(r.Context())
	res, err := services.CreateBooking(r.Context(), a.DB, services.BookingRequest{
		ClientID:         req.ClientID,
		ScheduleID:       req.ScheduleID,
		ClassDate:        day,
		MembershipID:     req.MembershipID,
		AttendanceStatus: req.AttendanceStatus,
		IsStaff:          p.IsStaff(),
	}, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := bookingCreated{Booking: res.Booking, Outcome: res.Decision.Outcome.String(), Message: res.Decision.Message}
	if !res.Decision.Price.IsZero() {
		out.Price = &res.Decision.Price
	}
	if !res.Decision.Deposit.IsZero() {
		out.Deposit = &res.Decision.Deposit
	}
	writeJSON(w, http.StatusCreated, out)
}

// GET /bookings/{id}
func (a *API) GetBooking(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, b)
}

// PUT /bookings/{id}/attendance
func (a *API) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		AttendanceStatus string `json:"attendance_status"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := services.MarkAttendance(r.Context(), a.DB, id, req.AttendanceStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// PUT /bookings/{id}/cancel
func (a *API) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
		By     string `json:"by"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	by := strings.ToLower(strings.TrimSpace(req.By))
	if by != "" && by != models.CancelledByClient {
		// only staff and coaches cancel on the studio's behalf
		if _, ok := auth.FromContext(r.Context()); !ok {
			writeError(w, r, apperr.New(apperr.CodeForbidden, "Solo el personal puede cancelar como instructor o administración."))
			return
		}
	}
	b, err := services.CancelBooking(r.Context(), a.DB, id, strings.TrimSpace(req.Reason), by)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// PUT /bookings/{id}/reschedule
func (a *API) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		ScheduleID uint   `json:"schedule_id"`
		ClassDate  string `json:"class_date"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ScheduleID == 0 {
		writeError(w, r, apperr.Invalid("Datos inválidos.", map[string]string{"schedule_id": "requerido"}))
		return
	}
	day, err := parseDate("class_date", req.ClassDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := services.RescheduleBooking(r.Context(), a.DB, id, req.ScheduleID, day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GET /bookings/by-client/{id}
func (a *API) ClientBookings(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := services.ListClientBookings(a.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /bookings/history?date=
func (a *API) AttendanceHistory(w http.ResponseWriter, r *http.Request) {
	day, err := optDate("date", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := services.AttendanceHistory(a.DB, day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /bookings/at-risk?n=3
func (a *API) AtRisk(w http.ResponseWriter, r *http.Request) {
	n, err := optInt(r, "n")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if n <= 0 {
		n = 3
	}
	out, err := services.ConsecutiveNoShows(a.DB, n, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /availability?date=YYYY-MM-DD
func (a *API) Availability(w http.ResponseWriter, r *http.Request) {
	day, err := parseDate("date", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := services.Availability(a.DB, day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
