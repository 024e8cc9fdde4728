package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Client status: "A" (active) | "I" (inactive)
const (
	ClientActive   = "A"
	ClientInactive = "I"
)

type Client struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FirstName string  `gorm:"not null" json:"first_name"`
	LastName  string  `gorm:"not null" json:"last_name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	DPI       *string `gorm:"size:20;uniqueIndex" json:"dpi"` // NULLs never collide
	Source    string  `json:"source"`
	Notes     string  `json:"notes"`

	Status              string      `gorm:"size:1;default:I" json:"status"`
	CurrentMembershipID *uint       `json:"current_membership_id"` // manually assigned
	CurrentMembership   *Membership `json:"current_membership,omitempty"`
	TrialUsed           bool        `json:"trial_used"`
}

func (c Client) FullName() string { return c.FirstName + " " + c.LastName }

type ClassType struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
}

// Day: MON | TUE | WED | THU | FRI | SAT | SUN
type Schedule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Day          string     `gorm:"size:3;index" json:"day"`
	TimeSlot     string     `gorm:"size:5;default:05:00" json:"time_slot"` // "HH:MM", one hour long
	ClassTypeID  *uint      `json:"class_type_id"`
	ClassType    *ClassType `json:"class_type,omitempty"`
	IsIndividual bool       `json:"is_individual"`
	Capacity     int        `gorm:"default:9" json:"capacity"`
	CoachID      *uint      `json:"coach_id"`
	Coach        *StaffUser `json:"coach,omitempty"`
}

// BeforeSave forces individual slots down to a single seat.
func (s *Schedule) BeforeSave(tx *gorm.DB) error {
	if s.IsIndividual {
		s.Capacity = 1
	}
	return nil
}

type Membership struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name            string          `gorm:"not null" json:"name"`
	Price           decimal.Decimal `gorm:"type:decimal(10,2)" json:"price"`
	ClassesPerMonth *int            `json:"classes_per_month"` // nil or 0 means unlimited
}

type Promotion struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name             string          `gorm:"not null" json:"name"`
	Description      string          `json:"description"`
	StartDate        time.Time       `json:"start_date"` // civil date
	EndDate          time.Time       `json:"end_date"`   // civil date, inclusive
	Price            decimal.Decimal `gorm:"type:decimal(10,2)" json:"price"`
	MembershipID     uint            `json:"membership_id"`
	Membership       Membership      `json:"membership,omitempty"`
	ClassesPerClient int             `gorm:"default:4" json:"classes_per_client"`
}

// ActiveOn reports whether the civil date falls inside the promotion window.
func (p Promotion) ActiveOn(day time.Time) bool {
	return !day.Before(p.StartDate) && !day.After(p.EndDate)
}

// PromotionInstance binds a promotion purchase to the clients sharing it.
type PromotionInstance struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PromotionID uint      `gorm:"index" json:"promotion_id"`
	Promotion   Promotion `json:"promotion,omitempty"`
	Clients     []Client  `gorm:"many2many:promotion_instance_clients;" json:"clients,omitempty"`
}

type Payment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ClientID            uint               `gorm:"index" json:"client_id"`
	Client              Client             `json:"client,omitempty"`
	MembershipID        uint               `json:"membership_id"`
	Membership          Membership         `json:"membership,omitempty"`
	PromotionID         *uint              `json:"promotion_id"`
	Promotion           *Promotion         `json:"promotion,omitempty"`
	PromotionInstanceID *uint              `json:"promotion_instance_id"`
	PromotionInstance   *PromotionInstance `json:"promotion_instance,omitempty"`
	PaymentMethod       string             `json:"payment_method"`
	Amount              decimal.Decimal    `gorm:"type:decimal(10,2)" json:"amount"`
	DatePaid            time.Time          `gorm:"index" json:"date_paid"`
	ValidUntil          time.Time          `gorm:"index" json:"valid_until"` // civil date
}

func (p *Payment) BeforeSave(tx *gorm.DB) error {
	p.DatePaid = p.DatePaid.UTC()
	return nil
}

type Sale struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ClientID      uint            `gorm:"index" json:"client_id"`
	Client        Client          `json:"client,omitempty"`
	ProductName   string          `gorm:"not null" json:"product_name"`
	Quantity      int             `gorm:"default:1" json:"quantity"`
	PricePerUnit  decimal.Decimal `gorm:"type:decimal(10,2)" json:"price_per_unit"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	DateSold      time.Time       `gorm:"index" json:"date_sold"`
	Notes         string          `json:"notes"`
}

// BeforeSave keeps the total derived from quantity and unit price.
func (s *Sale) BeforeSave(tx *gorm.DB) error {
	s.TotalAmount = s.PricePerUnit.Mul(decimal.NewFromInt(int64(s.Quantity)))
	s.DateSold = s.DateSold.UTC()
	return nil
}

// Booking status: pending | active | cancelled
const (
	BookingPending   = "pending"
	BookingActive    = "active"
	BookingCancelled = "cancelled"
)

// Attendance: pending | attended | no_show
const (
	AttendancePending  = "pending"
	AttendanceAttended = "attended"
	AttendanceNoShow   = "no_show"
)

// Cancellation type: who cancelled
const (
	CancelledByClient     = "client"
	CancelledByInstructor = "instructor"
	CancelledByAdmin      = "admin"
)

type Booking struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"` // date booked
	UpdatedAt time.Time `json:"updated_at"`

	Code         string      `gorm:"size:16;uniqueIndex" json:"code"` // e.g. BK-1A2B3C4D
	ClientID     uint        `gorm:"uniqueIndex:idx_booking_slot" json:"client_id"`
	Client       Client      `json:"client,omitempty"`
	MembershipID *uint       `json:"membership_id"`
	Membership   *Membership `json:"membership,omitempty"`
	ScheduleID   uint        `gorm:"uniqueIndex:idx_booking_slot" json:"schedule_id"`
	Schedule     Schedule    `json:"schedule,omitempty"`
	ClassDate    time.Time   `gorm:"uniqueIndex:idx_booking_slot" json:"class_date"` // civil date

	Status             string `gorm:"size:10;default:active" json:"status"`
	AttendanceStatus   string `gorm:"size:10;default:pending" json:"attendance_status"`
	CancellationType   string `json:"cancellation_type"`
	CancellationReason string `json:"cancellation_reason"`
}

type PlanIntent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ClientID     uint       `gorm:"uniqueIndex:idx_plan_intent" json:"client_id"`
	Client       Client     `json:"client,omitempty"`
	MembershipID uint       `gorm:"uniqueIndex:idx_plan_intent" json:"membership_id"`
	Membership   Membership `json:"membership,omitempty"`
	SelectedAt   time.Time  `json:"selected_at"`
	IsConfirmed  bool       `json:"is_confirmed"`
}

type MonthlyRevenue struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"` // last updated

	Year         int             `gorm:"uniqueIndex:idx_revenue_period" json:"year"`
	Month        int             `gorm:"uniqueIndex:idx_revenue_period" json:"month"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_amount"`
	PaymentCount int             `gorm:"not null;default:0" json:"payment_count"`
	SaleTotal    decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"sale_total"`
	SaleCount    int             `gorm:"not null;default:0" json:"sale_count"`
}

func (MonthlyRevenue) TableName() string { return "monthly_revenue" }

// Roles
const (
	RoleAdmin      = "admin"
	RoleSecretaria = "secretaria"
	RoleCoach      = "coach"
)

type StaffUser struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username     string `gorm:"size:150;uniqueIndex;not null" json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `gorm:"size:20;index" json:"role"`
	Enabled      bool   `gorm:"default:true" json:"enabled"`
}

// Outbox status: pending | sending | sent | failed
const (
	OutboxPending = "pending"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

type OutboxMessage struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"` // uuid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Kind      string     `gorm:"size:40;index" json:"kind"`
	ClientID  uint       `gorm:"index" json:"client_id"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Status    string     `gorm:"size:10;index;default:pending" json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error"`
	SentAt    *time.Time `json:"sent_at"`

	// NextAttemptAt holds a failed row back until its backoff elapses.
	NextAttemptAt *time.Time `gorm:"index" json:"next_attempt_at,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
}

// AfterFind trims float noise some drivers add to summed decimals.
func (m *MonthlyRevenue) AfterFind(tx *gorm.DB) error {
	m.TotalAmount = m.TotalAmount.Round(2)
	m.SaleTotal = m.SaleTotal.Round(2)
	return nil
}
