package handlers

import (
	"net/http"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/services"
)

// POST /plan-intents
func (a *API) SelectPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID     uint `json:"client_id"`
		MembershipID uint `json:"membership_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ClientID == 0 || req.MembershipID == 0 {
		writeError(w, r, apperr.Invalid("Datos inválidos.", map[string]string{
			"client_id":     "requerido",
			"membership_id": "requerido",
		}))
		return
	}
	pi, err := services.SelectPlan(r.Context(), a.DB, req.ClientID, req.MembershipID, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pi)
}

// GET /plan-intents/by-client/{id}
func (a *API) ClientPlanIntents(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := services.PlanIntentsByClient(a.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /plan-intents/potential
func (a *API) PotentialClients(w http.ResponseWriter, r *http.Request) {
	out, err := services.PotentialClients(a.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
