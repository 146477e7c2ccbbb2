// Package errors provides custom error types and definitions for the application.
//
//nolint:lll
package errors

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the caller's fault,
// and they return HTTP Status 400, 401, 403, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// If you notice there's a gap (say, error code 40010, 40011 and 40013 exist, 40012 is missing) DON'T fill in
// the gap, that code was used in the past for some error (not anymore) and shouldn't be reused.
// There's no correlation between Code and HTTP Status,
// for example the fact that Code 40018 returns HTTP Status 404 Not Found is just a coincidence.
var (
	// Request errors (400)
	ErrMalformedBody     = Error{Code: 40001, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid request body")}
	ErrInvalidUserData   = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid user information provided")}
	ErrInvalidAppData    = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid application configuration provided")}
	ErrInvalidIdentifier = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("requested identifier does not satisfy the application's identication requirement")}
	ErrInvalidToken      = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed or undecodable token")}
	ErrNoRegistrationState = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("no provided registration state")}
	ErrMissingFactor     = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("required authentication factor missing from request")}
	ErrUnknownFactor     = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("authentication factor not allowed by this application")}

	// Authentication errors (401)
	ErrUnauthorized               = Error{Code: 40100, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("authentication required"), LogLevel: "info"}
	ErrInvalidSignature           = Error{Code: 40101, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("invalid request signature"), LogLevel: "info"}
	ErrInvalidServerPublicKey     = Error{Code: 40102, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("token was not issued by this authority"), LogLevel: "info"}
	ErrTokenExpired               = Error{Code: 40103, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("token has expired"), LogLevel: "info"}
	ErrInvalidCredentials         = Error{Code: 40104, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("invalid credentials"), LogLevel: "info"}
	ErrChallengeMismatch          = Error{Code: 40105, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("submitted challenge response does not match"), LogLevel: "info"}

	// Not found errors (404)
	ErrAppNotFound       = Error{Code: 40400, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("application not found")}
	ErrUserNotFound      = Error{Code: 40401, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("user not found")}
	ErrInvitationUnknown = Error{Code: 40402, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("invitation code not found")}

	// Conflict errors (409)
	ErrAppAlreadyExists  = Error{Code: 40900, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("application already registered")}
	ErrUserAlreadyExists = Error{Code: 40901, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("user already registered")}

	// Forbidden errors (403)
	ErrSignUpDisabled  = Error{Code: 40300, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("this application does not allow sign up"), LogLevel: "info"}
	ErrDomainExcluded  = Error{Code: 40301, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("email domain excluded by this application"), LogLevel: "info"}

	// Server errors (500)
	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: failed to process response"), LogLevel: "error"}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: operation failed"), LogLevel: "error"}
	ErrInternalStorageError       = Error{Code: 50003, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: storage operation failed"), LogLevel: "error"}
	ErrInternalCryptoError        = Error{Code: 50004, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: cryptographic operation failed"), LogLevel: "error"}
	ErrInternalNotificationError  = Error{Code: 50005, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: notification delivery failed"), LogLevel: "error"}
)
