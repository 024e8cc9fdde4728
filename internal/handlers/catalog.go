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

// GET /class-types
func (a *API) ListClassTypes(w http.ResponseWriter, r *http.Request) {
	out, err := services.ListClassTypes(a.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /class-types
func (a *API) CreateClassType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ct, err := services.CreateClassType(a.DB, req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ct)
}

// GET /schedules?day=&coach_id=
func (a *API) ListSchedules(w http.ResponseWriter, r *http.Request) {
	coachID, err := optUint(r, "coach_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := services.ListSchedules(a.DB, strings.ToUpper(r.URL.Query().Get("day")), coachID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type scheduleRequest struct {
	Day          string `json:"day"`
	TimeSlot     string `json:"time_slot"`
	ClassTypeID  *uint  `json:"class_type_id"`
	IsIndividual bool   `json:"is_individual"`
	Capacity     int    `json:"capacity"`
	CoachID      *uint  `json:"coach_id"`
}

// POST /schedules
func (a *API) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := services.CreateSchedule(a.DB, services.ScheduleInput{
		Day:          req.Day,
		TimeSlot:     req.TimeSlot,
		ClassTypeID:  req.ClassTypeID,
		IsIndividual: req.IsIndividual,
		Capacity:     req.Capacity,
		CoachID:      req.CoachID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// GET /schedules/today?coach_id=
//
// Coaches without coach_id get their own slots.
func (a *API) TodaySchedules(w http.ResponseWriter, r *http.Request) {
	coachID, err := optUint(r, "coach_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if coachID == nil {
		p, _ := auth.FromContext(r.Context())
		if p.Role != models.RoleCoach {
			writeError(w, r, apperr.Invalid("Parámetro requerido.", map[string]string{"coach_id": "requerido"}))
			return
		}
		coachID = &p.UserID
	}
	out, err := services.TodayForCoach(a.DB, *coachID, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /memberships
func (a *API) ListMemberships(w http.ResponseWriter, r *http.Request) {
	out, err := services.ListMemberships(a.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /memberships
func (a *API) CreateMembership(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string          `json:"name"`
		Price           decimal.Decimal `json:"price"`
		ClassesPerMonth *int            `json:"classes_per_month"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := services.CreateMembership(a.DB, req.Name, req.Price, req.ClassesPerMonth)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GET /promotions
func (a *API) ListPromotions(w http.ResponseWriter, r *http.Request) {
	out, err := services.ListPromotions(a.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type promotionRequest struct {
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	StartDate        string          `json:"start_date"`
	EndDate          string          `json:"end_date"`
	Price            decimal.Decimal `json:"price"`
	MembershipID     uint            `json:"membership_id"`
	ClassesPerClient int             `json:"classes_per_client"`
}

// POST /promotions
func (a *API) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req promotionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := services.CreatePromotion(a.DB, services.PromotionInput{
		Name:             req.Name,
		Description:      req.Description,
		StartDate:        start,
		EndDate:          end,
		Price:            req.Price,
		MembershipID:     req.MembershipID,
		ClassesPerClient: req.ClassesPerClient,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GET /promotion-instances
func (a *API) ListPromotionInstances(w http.ResponseWriter, r *http.Request) {
	out, err := services.ListPromotionInstances(a.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /promotion-instances
func (a *API) CreatePromotionInstance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PromotionID uint   `json:"promotion_id"`
		ClientIDs   []uint `json:"client_ids"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inst, err := services.CreatePromotionInstance(r.Context(), a.DB, req.PromotionID, req.ClientIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

// POST /promotion-instances/{id}/confirm-payment
func (a *API) ConfirmPromotionPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		ClientID      uint   `json:"client_id"`
		PaymentMethod string `json:"payment_method"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ClientID == 0 {
		writeError(w, r, apperr.Invalid("Datos inválidos.", map[string]string{"client_id": "requerido"}))
		return
	}
	p, err := services.ConfirmPromotionPayment(r.Context(), a.DB, id, req.ClientID, req.PaymentMethod, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
