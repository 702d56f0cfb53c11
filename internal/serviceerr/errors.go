// Package serviceerr defines the error classifications shared by the
// authorization engine, the authorized call wrapper and the HTTP surface.
package serviceerr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	// Protocol integrity
	CodeStateMismatch        Code = "state_mismatch"
	CodeInvalidIdentityToken Code = "invalid_identity_token"

	// Identity
	CodeNotAuthenticated  Code = "not_authenticated"
	CodeUnauthenticated   Code = "unauthenticated"
	CodeInvalidGrant      Code = "invalid_grant"
	CodeExpiredAddOnToken Code = "expired_addon_token"
	CodeInvalidAddOnToken Code = "invalid_addon_token"

	// Upstream and local data
	CodeResourceNotFound   Code = "resource_not_found"
	CodeRevocationFailed   Code = "revocation_failed"
	CodeAttachmentNotFound Code = "attachment_not_found"
	CodeNoSelection        Code = "no_selection"
	CodeUpstream           Code = "upstream_error"

	// Storage and generic
	CodeUnknown  Code = "unknown"
	CodeConflict Code = "conflict"
	CodeNotFound Code = "not_found"
)

// Error is a classified failure. Status carries the provider's HTTP status
// where one was observed.
type Error struct {
	Err         Code
	Description string
	Status      int
}

var (
	ErrStateMismatch        = &Error{Err: CodeStateMismatch, Description: "invalid state parameter"}
	ErrInvalidIdentityToken = &Error{Err: CodeInvalidIdentityToken, Description: "invalid ID token"}

	ErrNotAuthenticated  = &Error{Err: CodeNotAuthenticated, Description: "do not have the required credentials"}
	ErrUnauthenticated   = &Error{Err: CodeUnauthenticated, Description: "credentials were rejected"}
	ErrInvalidGrant      = &Error{Err: CodeInvalidGrant, Description: "grant is invalid or expired"}
	ErrExpiredAddOnToken = &Error{Err: CodeExpiredAddOnToken, Description: "please sign in again"}
	ErrInvalidAddOnToken = &Error{Err: CodeInvalidAddOnToken, Description: "please sign out of all accounts in your browser and try again"}

	ErrResourceNotFound   = &Error{Err: CodeResourceNotFound, Description: "the requested resource cannot be found; make sure you are signed in with the correct account and try again"}
	ErrRevocationFailed   = &Error{Err: CodeRevocationFailed, Description: "there was an issue revoking access"}
	ErrAttachmentNotFound = &Error{Err: CodeAttachmentNotFound, Description: "attachment is not known to this add-on"}
	ErrNoSelection        = &Error{Err: CodeNoSelection, Description: "no attachments were selected"}
	ErrUpstream           = &Error{Err: CodeUpstream, Description: "upstream API call failed"}

	ErrUnknown  = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrConflict = &Error{Err: CodeConflict, Description: "already exists"}
	ErrNotFound = &Error{Err: CodeNotFound, Description: "not found"}
)

func (e *Error) Error() string {
	msg := string(e.Err)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}

	return msg
}

// Is reports whether target carries the same code, so status-carrying copies
// still match the predefined values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Err == e.Err
}

// With returns a copy of e carrying the given status and, when not empty,
// the given description.
func (e *Error) With(status int, description string) *Error {
	c := *e
	c.Status = status
	if description != "" {
		c.Description = description
	}

	return &c
}

// HTTPStatus maps the classification to the status the HTTP surface answers with.
func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeStateMismatch, CodeNotAuthenticated, CodeUnauthenticated, CodeInvalidGrant,
		CodeExpiredAddOnToken, CodeInvalidIdentityToken:
		return http.StatusUnauthorized
	case CodeInvalidAddOnToken:
		return http.StatusForbidden
	case CodeResourceNotFound, CodeAttachmentNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeNoSelection:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeRevocationFailed, CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RevocationFailed classifies a revoke endpoint answer that did not report success.
func RevocationFailed(status int) *Error {
	return ErrRevocationFailed.With(status, "")
}

// Upstream classifies any other non-2xx answer of the external API.
func Upstream(status int, message string) *Error {
	return ErrUpstream.With(status, message)
}

// Recovery tells a caller which path to take after a failure.
type Recovery int

const (
	// RecoveryNone means the error is surfaced as is.
	RecoveryNone Recovery = iota
	// RecoveryReauthorize means the auth flow restarts from unauthenticated.
	RecoveryReauthorize
	// RecoverySignOutEverywhere means the user must sign out of every account
	// in the host environment before retrying.
	RecoverySignOutEverywhere
	// RecoveryAbort means the current attempt is void and must not be retried
	// with the same state or code.
	RecoveryAbort
)

func RecoveryFor(err error) Recovery {
	var e *Error
	if !errors.As(err, &e) {
		return RecoveryNone
	}

	switch e.Err {
	case CodeNotAuthenticated, CodeUnauthenticated, CodeInvalidGrant, CodeExpiredAddOnToken:
		return RecoveryReauthorize
	case CodeInvalidAddOnToken:
		return RecoverySignOutEverywhere
	case CodeStateMismatch, CodeInvalidIdentityToken:
		return RecoveryAbort
	default:
		return RecoveryNone
	}
}

// As extracts the classification from err, falling back to ErrUnknown.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return ErrUnknown
}
