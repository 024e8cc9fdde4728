package handlers

import (
	"net/http"
	"strings"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/services"
)

type clientRequest struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	DPI       *string `json:"dpi"`
	Source    string  `json:"source"`
	Notes     string  `json:"notes"`
}

// POST /clients
func (a *API) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := services.CreateClient(r.Context(), a.DB, services.ClientInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		DPI:       req.DPI,
		Source:    req.Source,
		Notes:     req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GET /clients?search=
func (a *API) SearchClients(w http.ResponseWriter, r *http.Request) {
	out, err := services.SearchClients(a.DB, r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /clients/dpi?dpi=
func (a *API) ClientByDPI(w http.ResponseWriter, r *http.Request) {
	dpi := strings.TrimSpace(r.URL.Query().Get("dpi"))
	if dpi == "" {
		writeError(w, r, apperr.Invalid("Parámetro requerido.", map[string]string{"dpi": "requerido"}))
		return
	}
	c, err := services.ClientByDPI(a.DB, dpi)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GET /clients/{id}
func (a *API) GetClient(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := services.GetClient(a.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GET /clients/{id}/estado
func (a *API) ClientEstado(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := services.ClientEstado(a.DB, id, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type clientUpdateRequest struct {
	FirstName           *string `json:"first_name"`
	LastName            *string `json:"last_name"`
	Email               *string `json:"email"`
	Phone               *string `json:"phone"`
	DPI                 *string `json:"dpi"`
	Notes               *string `json:"notes"`
	Status              *string `json:"status"`
	CurrentMembershipID *uint   `json:"current_membership_id"`
}

func (a *API) updateClient(w http.ResponseWriter, r *http.Request, in services.ClientUpdate) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := services.UpdateClient(r.Context(), a.DB, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// PUT /clients/{id}
func (a *API) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req clientUpdateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a.updateClient(w, r, services.ClientUpdate{
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		Email:               req.Email,
		Phone:               req.Phone,
		DPI:                 req.DPI,
		Notes:               req.Notes,
		Status:              req.Status,
		CurrentMembershipID: req.CurrentMembershipID,
	})
}

// PUT /clients/{id}/status
func (a *API) SetClientStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st := strings.ToUpper(strings.TrimSpace(req.Status))
	a.updateClient(w, r, services.ClientUpdate{Status: &st})
}

// GET /clients/count
func (a *API) CountClients(w http.ResponseWriter, r *http.Request) {
	out, err := services.CountClients(a.DB, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
