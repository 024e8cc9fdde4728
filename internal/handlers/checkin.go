package handlers

import (
	"net/http"
	"strings"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/services"
)

// POST /checkin
func (a *API) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		writeError(w, r, apperr.Invalid("Código requerido.", map[string]string{"code": "requerido"}))
		return
	}
	b, err := services.CheckInByCode(r.Context(), a.DB, code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
