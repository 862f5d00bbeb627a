// Package apperr defines the structured errors returned to API clients.
//
// Every error carries a machine readable Kind and a human readable Detail.
// The front end pattern-matches some Detail substrings ("Limita", "expirat",
// "suspendat", "disabled", "Trial", "Upgrade"), so constructors below keep
// that vocabulary stable.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error
type Kind string

const (
	KindValidation            Kind = "validation"
	KindNotFound              Kind = "not_found"
	KindConflict              Kind = "conflict"
	KindLimitExceeded         Kind = "limit_exceeded"
	KindForbidden             Kind = "forbidden"
	KindUnauthorized          Kind = "unauthorized"
	KindSubscriptionExpired   Kind = "subscription_expired"
	KindSubscriptionSuspended Kind = "subscription_suspended"
	KindAIDisabled            Kind = "ai_disabled"
	KindAINotInPlan           Kind = "ai_not_in_plan"
	KindMaintenance           Kind = "maintenance"
	KindUnavailable           Kind = "unavailable"
	KindInternal              Kind = "internal"
)

// Error is an API-facing error
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error kind to a response status code
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden, KindLimitExceeded, KindSubscriptionExpired,
		KindSubscriptionSuspended, KindAIDisabled, KindAINotInPlan:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindMaintenance, KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Validation reports invalid input
func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

// NotFound reports a missing entity; what names it in the detail
func NotFound(what string) *Error {
	return newf(KindNotFound, "%s nu a fost găsit", what)
}

// Conflict reports a uniqueness or reference conflict
func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

// Forbidden reports a disallowed action
func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, format, args...)
}

// Unauthorized reports missing or bad credentials
func Unauthorized(detail string) *Error {
	return &Error{Kind: KindUnauthorized, Detail: detail}
}

// LimitExceeded reports a plan cap being reached
func LimitExceeded(max int, resource, plan string) *Error {
	return newf(KindLimitExceeded,
		"Limita de %d %s a fost atinsă pentru planul %s. Upgrade pentru mai multe.", max, resource, plan)
}

// SubscriptionExpired is returned for mutations by tenants past their end date
func SubscriptionExpired() *Error {
	return newf(KindSubscriptionExpired, "Abonamentul a expirat. Reînnoiți abonamentul pentru a continua.")
}

// SubscriptionSuspended is returned for mutations by suspended tenants
func SubscriptionSuspended() *Error {
	return newf(KindSubscriptionSuspended, "Contul este suspendat. Contactați administratorul platformei.")
}

// AIDisabled is returned when the assistant is switched off
func AIDisabled(scope string) *Error {
	return newf(KindAIDisabled, "AI assistant is disabled %s", scope)
}

// AINotInPlan is returned when the tenant's plan lacks the assistant
func AINotInPlan(plan string) *Error {
	return newf(KindAINotInPlan,
		"Asistentul AI nu este inclus în planul %s (Trial/Basic). Upgrade la un plan superior.", plan)
}

// Maintenance is returned for tenant traffic during maintenance
func Maintenance(message string) *Error {
	detail := "Platforma este în mentenanță. Reveniți în curând."
	if message != "" {
		detail = "Platforma este în mentenanță: " + message
	}
	return &Error{Kind: KindMaintenance, Detail: detail}
}

// Unavailable reports a dependency that is not configured or not reachable
func Unavailable(detail string, err error) *Error {
	return &Error{Kind: KindUnavailable, Detail: detail, Err: err}
}

// Internal wraps an unexpected failure; the detail stays generic
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Detail: "A apărut o eroare internă", Err: err}
}

// From converts any error into an *Error, treating unknown errors as internal
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// Is reports whether err is an *Error of the given kind
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
