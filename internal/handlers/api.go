// Package handlers exposes the studio services as JSON over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/auth"
	"github.com/vilepilates/studio/internal/studiotime"
)

// API carries what the handlers share. Now is swapped in tests.
type API struct {
	DB   *gorm.DB
	Auth *auth.Issuer
	Now  func() time.Time
}

func New(gdb *gorm.DB, iss *auth.Issuer) *API {
	return &API{DB: gdb, Auth: iss, Now: time.Now}
}

type errorBody struct {
	Detail string            `json:"detail"`
	Code   apperr.Code       `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http][encode] %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Printf("[http][error] %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "Error interno.", Code: apperr.CodeInternal})
		return
	}
	status := ae.Code.HTTPStatus()
	if status >= 500 {
		log.Printf("[http][error] %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{Detail: ae.Message, Code: ae.Code, Fields: ae.Fields})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Invalid("Cuerpo JSON inválido.", map[string]string{"body": err.Error()})
	}
	return nil
}

func idParam(r *http.Request, name string) (uint, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || v == 0 {
		return 0, apperr.Invalid("Identificador inválido.", map[string]string{name: "debe ser un entero positivo"})
	}
	return uint(v), nil
}

// optUint reads an optional numeric query parameter.
func optUint(r *http.Request, name string) (*uint, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, apperr.Invalid("Parámetro inválido.", map[string]string{name: "debe ser un entero"})
	}
	u := uint(v)
	return &u, nil
}

func optInt(r *http.Request, name string) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperr.Invalid("Parámetro inválido.", map[string]string{name: "debe ser un entero"})
	}
	return v, nil
}

// parseDate reads a civil date in YYYY-MM-DD form.
func parseDate(field, s string) (time.Time, error) {
	d, err := studiotime.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, apperr.Invalid("Fecha inválida.", map[string]string{field: "formato YYYY-MM-DD"})
	}
	return d, nil
}

func optDate(field, s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := parseDate(field, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// parseInstant accepts RFC 3339, or a bare date meaning the start of that
// day in the studio zone.
func parseInstant(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(studiotime.DateLayout, s, studiotime.Loc())
	if err != nil {
		return nil, apperr.Invalid("Fecha inválida.", map[string]string{field: "formato YYYY-MM-DD o RFC 3339"})
	}
	return &t, nil
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
