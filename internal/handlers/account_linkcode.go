package handlers

import (
	"net/http"
	"time"

	"github.com/vilepilates/studio/internal/services"
)

type linkCodeResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// POST /clients/{id}/telegram-link-code
//
// Reception reads the code to the client, who sends /link CODE to the bot.
func (a *API) TelegramLinkCode(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := services.GetClient(a.DB, id); err != nil {
		writeError(w, r, err)
		return
	}
	lc, err := services.IssueLinkCode(a.DB, id, a.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, linkCodeResponse{Code: lc.Code, ExpiresAt: lc.ExpiresAt})
}
