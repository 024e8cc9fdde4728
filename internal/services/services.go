// Package services implements the studio's transactional operations over
// gorm. Every operation takes the reference time explicitly.
package services

import (
	"errors"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/eligibility"
)

var tracer = otel.Tracer("github.com/vilepilates/studio/internal/services")

type Options struct {
	IndividualPlanID uint
	Policy           eligibility.Policy
	NoShowPenalty    int
	GraceDays        int
}

func DefaultOptions() Options {
	return Options{
		IndividualPlanID: 1,
		Policy:           eligibility.DefaultPolicy(),
		NoShowPenalty:    35,
		GraceDays:        7,
	}
}

var opts = DefaultOptions()

// Configure replaces the package options. Call it once at startup.
func Configure(o Options) { opts = o }

func CurrentOptions() Options { return opts }

// notFound maps gorm's missing-row error to a NOT_FOUND domain error.
func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(msg)
	}
	return err
}
