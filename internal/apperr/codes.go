// Package apperr provides structured errors for business rejections,
// validation failures and lookups.
package apperr

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Booking rejections
	CodeNoCapacity       Code = "NO_CAPACITY"
	CodeQuotaExceeded    Code = "QUOTA_EXCEEDED"
	CodePromotionInvalid Code = "PROMOTION_INVALID"
	CodePromotionExpired Code = "PROMOTION_EXPIRED"
	CodeDuplicateBooking Code = "DUPLICATE_BOOKING"
	CodeBookingCancelled Code = "BOOKING_CANCELLED"

	// Payment and client rejections
	CodePaymentStillValid Code = "PAYMENT_STILL_VALID"
	CodeDPITaken          Code = "DPI_TAKEN"

	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeInternal        Code = "INTERNAL"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// business rejections are recoverable by retrying with other input
	case CodeNoCapacity,
		CodeQuotaExceeded,
		CodePromotionInvalid,
		CodePromotionExpired,
		CodeDuplicateBooking,
		CodeBookingCancelled,
		CodePaymentStillValid,
		CodeDPITaken,
		CodeInvalidArgument:
		return http.StatusBadRequest

	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden

	default:
		return http.StatusInternalServerError
	}
}
