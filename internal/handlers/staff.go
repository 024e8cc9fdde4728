package handlers

import (
	"net/http"
	"time"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/auth"
	"github.com/vilepilates/studio/internal/models"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresAt   time.Time        `json:"expires_at"`
	User        models.StaffUser `json:"user"`
}

// POST /auth/login
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := auth.Login(a.DB, req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// token expiry follows the wall clock, not the injectable reference time
	tok, exp, err := a.Auth.Issue(u, time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: tok, TokenType: "bearer", ExpiresAt: exp, User: u})
}

// GET /auth/me
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	var u models.StaffUser
	if err := a.DB.First(&u, p.UserID).Error; err != nil {
		writeError(w, r, apperr.NotFound("Usuario no encontrado."))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type staffRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// POST /staff
func (a *API) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := auth.CreateStaff(a.DB, auth.StaffInput{
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Role:      req.Role,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// GET /staff?role=
func (a *API) ListStaff(w http.ResponseWriter, r *http.Request) {
	out, err := auth.ListStaff(a.DB, r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
