package eligibility

import "github.com/shopspring/decimal"

// Client states shown to the booking front end.
const (
	StateNew                  = "nuevo"
	StateTrialPendingWithPlan = "conClaseGratisPendienteYPlanSeleccionado"
	StateTrialUsedWithPlan    = "conClaseGratisUsadaYPlanSeleccionado"
	StateTrialUsed            = "conClaseGratisUsada"
	StateActivePlan           = "conPlanActivo"
	StateUnknown              = "desconocido"
)

var stateMessages = map[string]string{
	StateNew:                  "Bienvenido, agenda tu clase de prueba gratuita.",
	StateTrialPendingWithPlan: "Puedes usar tu clase gratuita o activar el plan que seleccionaste.",
	StateTrialUsed:            "Ya usaste tu clase gratuita. Suscríbete para seguir entrenando con nosotros.",
	StateTrialUsedWithPlan:    "Ya usaste tu clase gratuita. Tienes un plan pendiente, actívalo para continuar entrenando con nosotros.",
	StateActivePlan:           "Tu plan está activo. Puedes agendar tus clases.",
	StateUnknown:              "No pudimos determinar tu estado, por favor contáctanos.",
}

type State struct {
	Label      string       `json:"estado"`
	CanBook    bool         `json:"puede_agendar"`
	Message    string       `json:"mensaje"`
	TrialUsed  bool         `json:"trial_used"`
	PlanActive bool         `json:"plan_activo"`
	PlanChosen bool         `json:"plan_seleccionado"`
	PlanIntent *PendingPlan `json:"plan_intent"`
}

// PendingPlan is the membership behind the client's newest unconfirmed plan
// intent.
type PendingPlan struct {
	MembershipID   uint            `json:"membership_id"`
	MembershipName string          `json:"membership_name"`
	Price          decimal.Decimal `json:"price"`
}

// ClientState derives the client's label from trial use, an active plan and
// an unconfirmed plan intent.
func ClientState(trialUsed, planActive, planChosen bool) State {
	var label string
	switch {
	case !trialUsed && !planChosen:
		label = StateNew
	case !trialUsed && planChosen:
		label = StateTrialPendingWithPlan
	case !planActive && planChosen:
		label = StateTrialUsedWithPlan
	case !planActive:
		label = StateTrialUsed
	case planActive:
		label = StateActivePlan
	default:
		label = StateUnknown
	}
	return State{
		Label:      label,
		CanBook:    !trialUsed || planActive,
		Message:    stateMessages[label],
		TrialUsed:  trialUsed,
		PlanActive: planActive,
		PlanChosen: planChosen,
	}
}
