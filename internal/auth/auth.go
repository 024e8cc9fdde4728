// Package auth issues and checks staff tokens.
package auth

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/models"
)

type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret   []byte
	ttl      time.Duration
	accounts *gorm.DB
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// CheckAccounts makes Authenticate reload the staff user behind every token,
// so a disabled account or a changed role takes effect before expiry.
func (i *Issuer) CheckAccounts(gdb *gorm.DB) *Issuer {
	i.accounts = gdb
	return i
}

// Issue signs an HS256 token for u.
func (i *Issuer) Issue(u models.StaffUser, now time.Time) (string, time.Time, error) {
	exp := now.Add(i.ttl)
	claims := Claims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(u.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(i.secret)
	return s, exp, err
}

// Parse validates the signature and expiry of a token.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return &claims, nil
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func validRole(r string) bool {
	switch r {
	case models.RoleAdmin, models.RoleSecretaria, models.RoleCoach:
		return true
	}
	return false
}

// Login checks a username and password against enabled staff users.
func Login(gdb *gorm.DB, username, password string) (models.StaffUser, error) {
	var u models.StaffUser
	err := gdb.Where("username = ?", strings.TrimSpace(username)).First(&u).Error
	if err != nil || !u.Enabled || !CheckPassword(u.PasswordHash, password) {
		return models.StaffUser{}, apperr.New(apperr.CodeUnauthenticated, "Usuario o contraseña incorrectos.")
	}
	return u, nil
}

type StaffInput struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Email     string
	Role      string
}

func CreateStaff(gdb *gorm.DB, in StaffInput) (models.StaffUser, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.Username) == "" {
		fields["username"] = "requerido"
	}
	if len(in.Password) < 8 {
		fields["password"] = "mínimo 8 caracteres"
	}
	if !validRole(in.Role) {
		fields["role"] = "debe ser admin, secretaria o coach"
	}
	if len(fields) > 0 {
		return models.StaffUser{}, apperr.Invalid("Usuario inválido.", fields)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return models.StaffUser{}, err
	}
	u := models.StaffUser{
		Username:     strings.TrimSpace(in.Username),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		Enabled:      true,
	}
	if err := gdb.Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.StaffUser{}, apperr.Invalid("Usuario ya existe.", map[string]string{"username": "ya existe"})
		}
		return models.StaffUser{}, err
	}
	return u, nil
}

// EnsureAdmin creates the first admin when no staff user exists yet.
func EnsureAdmin(gdb *gorm.DB, username, password string) error {
	var n int64
	if err := gdb.Model(&models.StaffUser{}).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if password == "" {
		log.Printf("[auth] no staff users and ADMIN_PASSWORD unset; staff endpoints are unreachable")
		return nil
	}
	if _, err := CreateStaff(gdb, StaffInput{Username: username, Password: password, Role: models.RoleAdmin}); err != nil {
		return err
	}
	log.Printf("[auth] created admin user %q", username)
	return nil
}

func ListStaff(gdb *gorm.DB, role string) ([]models.StaffUser, error) {
	q := gdb.Order("username")
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var out []models.StaffUser
	err := q.Find(&out).Error
	return out, err
}
