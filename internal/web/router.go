package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vilepilates/studio/internal/auth"
	"github.com/vilepilates/studio/internal/handlers"
)

// Router mounts the JSON API. tgWebhook, when non-nil, receives Telegram
// updates at /tg/webhook.
func Router(api *handlers.API, tgWebhook http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.Auth.Authenticate)

	r.Get("/healthz", handlers.Health)
	if tgWebhook != nil {
		r.Handle("/tg/webhook", tgWebhook)
	}

	r.Post("/auth/login", api.Login)
	r.With(auth.RequireAny).Get("/auth/me", api.Me)
	r.Route("/staff", func(sr chi.Router) {
		sr.Use(auth.RequireAdmin)
		sr.Get("/", api.ListStaff)
		sr.Post("/", api.CreateStaff)
	})

	// Bookings
	r.Post("/bookings", api.CreateBooking)
	r.With(auth.RequireAny).Get("/bookings/history", api.AttendanceHistory)
	r.With(auth.RequireStaff).Get("/bookings/at-risk", api.AtRisk)
	r.Get("/bookings/by-client/{id}", api.ClientBookings)
	r.Get("/bookings/{id}", api.GetBooking)
	r.Get("/bookings/{id}/qr.png", api.BookingQR)
	r.With(auth.RequireAny).Put("/bookings/{id}/attendance", api.MarkAttendance)
	r.Put("/bookings/{id}/cancel", api.CancelBooking)
	r.Put("/bookings/{id}/reschedule", api.RescheduleBooking)
	r.With(auth.RequireStaff).Post("/checkin", api.CheckIn)
	r.Get("/availability", api.Availability)

	// Catalog
	r.Get("/schedules", api.ListSchedules)
	r.With(auth.RequireAdmin).Post("/schedules", api.CreateSchedule)
	r.With(auth.RequireAny).Get("/schedules/today", api.TodaySchedules)
	r.Get("/memberships", api.ListMemberships)
	r.With(auth.RequireAdmin).Post("/memberships", api.CreateMembership)
	r.Get("/class-types", api.ListClassTypes)
	r.With(auth.RequireAdmin).Post("/class-types", api.CreateClassType)
	r.Get("/promotions", api.ListPromotions)
	r.With(auth.RequireAdmin).Post("/promotions", api.CreatePromotion)
	r.With(auth.RequireStaff).Get("/promotion-instances", api.ListPromotionInstances)
	r.With(auth.RequireAdmin).Post("/promotion-instances", api.CreatePromotionInstance)
	r.With(auth.RequireStaff).Post("/promotion-instances/{id}/confirm-payment", api.ConfirmPromotionPayment)

	// Clients
	r.Post("/clients", api.CreateClient)
	r.Get("/clients/dpi", api.ClientByDPI)
	r.With(auth.RequireAny).Get("/clients", api.SearchClients)
	r.With(auth.RequireStaff).Get("/clients/count", api.CountClients)
	r.Get("/clients/{id}", api.GetClient)
	r.Get("/clients/{id}/estado", api.ClientEstado)
	r.With(auth.RequireStaff).Put("/clients/{id}", api.UpdateClient)
	r.With(auth.RequireStaff).Put("/clients/{id}/status", api.SetClientStatus)
	r.With(auth.RequireStaff).Post("/clients/{id}/telegram-link-code", api.TelegramLinkCode)

	// Plan intents
	r.Post("/plan-intents", api.SelectPlan)
	r.Get("/plan-intents/by-client/{id}", api.ClientPlanIntents)
	r.With(auth.RequireStaff).Get("/plan-intents/potential", api.PotentialClients)

	// Money
	r.Group(func(sr chi.Router) {
		sr.Use(auth.RequireStaff)
		sr.Post("/payments", api.CreatePayment)
		sr.Get("/payments", api.ListPayments)
		sr.Get("/payments/grace", api.GracePeriod)
		sr.Get("/payments/today", api.TodayPayments)
		sr.Delete("/payments/{id}", api.DeletePayment)
		sr.Put("/payments/{id}/extend", api.ExtendPayment)

		sr.Post("/sales", api.CreateSale)
		sr.Get("/sales", api.ListSales)
		sr.Delete("/sales/{id}", api.DeleteSale)

		sr.Get("/monthly-revenue", api.ListMonthlyRevenue)
		sr.Get("/monthly-revenue/total", api.TotalRevenue)

		sr.Get("/reports/weekly-closing", api.WeeklyClosing)
		sr.Get("/reports/monthly-usage", api.MonthlyUsage)
		sr.Get("/reports/class-types", api.ClassTypeSummary)
		sr.Get("/reports/attendance", api.AttendanceSummary)
	})
	r.Group(func(ar chi.Router) {
		ar.Use(auth.RequireAdmin)
		ar.Post("/monthly-revenue/recalculate", api.RecalculateRevenue)
		ar.Post("/monthly-revenue/recalculate-all", api.RecalculateAllRevenue)
	})

	return r
}
