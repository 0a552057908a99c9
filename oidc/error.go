// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"strings"
)

// Code is a stable machine-readable error code. Codes travel in the
// login-error redirect query parameter, so their string values must not
// change between releases.
type Code string

// Code implements error so callers can match a wrapped *Err with errors.Is.
func (c Code) Error() string { return string(c) }

const (
	ErrCodeUnknown Code = "unknown"

	// parameter violations
	ErrInvalidParameter Code = "invalid-parameter"
	ErrNilParameter     Code = "nil-parameter"

	// protocol errors
	ErrInvalidAuthState Code = "invalid-authorization-state"
	ErrIdpError         Code = "idp-error"
	ErrMissingCode      Code = "missing-code"

	// token errors
	ErrTokenRequestFailed   Code = "token-request-failed"
	ErrInvalidTokenResponse Code = "invalid-token-response"
	ErrMalformedIDToken     Code = "malformed-id-token"
	ErrInvalidSignature     Code = "invalid-signature"

	// claim validation errors
	ErrTokenExpired      Code = "token-expired"
	ErrIssuerMismatch    Code = "issuer-mismatch"
	ErrAudienceMismatch  Code = "audience-mismatch"
	ErrInvalidNonce      Code = "invalid-nonce"
	ErrNoSubjectIdentity Code = "no-subject-identity"
	ErrSubjectMismatch   Code = "subject-mismatch"

	// userinfo
	ErrUserinfoRequestFailed Code = "userinfo-request-failed"

	// identity resolution errors
	ErrNoUsernameSource      Code = "no-username-source"
	ErrCreationNotAuthorized Code = "creation-not-authorized"
	ErrUserCreationFailed    Code = "user-creation-failed"
	ErrInvalidUser           Code = "invalid-user"

	// session errors
	ErrMismatchIdentity Code = "mismatch-identity"
	ErrLoginRequired    Code = "login-required"

	// configuration errors
	ErrInvalidConfiguration Code = "invalid-configuration"
	ErrInvalidCACert        Code = "invalid-ca-cert"
)

// Kind classifies an error into the broad categories the session controller
// cares about when deciding how to log and redirect.
type Kind int

const (
	ErrKindUnknown Kind = iota
	ErrParameterViolation
	ErrProtocolViolation
	ErrTokenViolation
	ErrClaimViolation
	ErrIdentityViolation
	ErrSessionViolation
	ErrConfigViolation
	ErrInternal
)

// String satisfies fmt.Stringer for logging.
func (k Kind) String() string {
	switch k {
	case ErrParameterViolation:
		return "parameter violation"
	case ErrProtocolViolation:
		return "protocol violation"
	case ErrTokenViolation:
		return "token violation"
	case ErrClaimViolation:
		return "claim validation"
	case ErrIdentityViolation:
		return "identity violation"
	case ErrSessionViolation:
		return "session violation"
	case ErrConfigViolation:
		return "configuration violation"
	case ErrInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Op represents an operation (package.function for example).
type Op string

// Err provides the ability to specify a Msg, Op, Code, Kind and Wrapped error.
type Err struct {
	// Code is the error's stable machine-readable code.
	Code Code

	// Kind classifies the error.
	Kind Kind

	// Op represents the operation raising/propagating the error.
	Op Op

	// Msg for the error.
	Msg string

	// Wrapped is the error which this Err wraps and will be nil if there's no
	// error to wrap.
	Wrapped error
}

// NewError creates a new Err with provided code and supports the options of:
//
// * WithOp() - allows you to specify an optional Op (operation)
//
// * WithKind() - allows you to specify an optional Kind classification
//
// * WithMsg() - allows you to specify an optional message
//
// * WithWrap() - allows you to specify an error to wrap
func NewError(c Code, opt ...Option) error {
	opts := getErrOpts(opt...)
	if c == "" {
		c = ErrCodeUnknown
	}
	return &Err{
		Code:    c,
		Kind:    opts.withKind,
		Op:      opts.withOp,
		Msg:     opts.withMsg,
		Wrapped: opts.withWrap,
	}
}

// WrapError creates a new Err from the given error. When the wrapped error is
// an *Err its Code and Kind carry over unless overridden via options.
func WrapError(err error, opt ...Option) error {
	opts := getErrOpts(opt...)
	c := ErrCodeUnknown
	k := opts.withKind
	var e *Err
	if errors.As(err, &e) {
		c = e.Code
		if k == ErrKindUnknown {
			k = e.Kind
		}
	}
	return &Err{
		Code:    c,
		Kind:    k,
		Op:      opts.withOp,
		Msg:     opts.withMsg,
		Wrapped: err,
	}
}

// Error satisfies the error interface and returns the current error's msg,
// code and any wrapped error.
func (e *Err) Error() string {
	var s strings.Builder
	if e.Op != "" {
		join(&s, ": ", string(e.Op))
	}
	if e.Msg != "" {
		join(&s, ": ", e.Msg)
	}
	join(&s, ": ", string(e.Code))
	if e.Wrapped != nil {
		join(&s, ": ", e.Wrapped.Error())
	}
	return s.String()
}

func join(str *strings.Builder, delim string, s string) {
	if str.Len() == 0 {
		_, _ = str.WriteString(s)
		return
	}
	_, _ = str.WriteString(delim + s)
}

// Unwrap implements the errors.Unwrap interface and allows callers to use the
// errors.Is() and errors.As() functions with an Err.
func (e *Err) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Wrapped
}

// Is matches an Err against a target Code, so
// errors.Is(err, oidc.ErrTokenExpired) reports whether err carries that code.
func (e *Err) Is(target error) bool {
	if e == nil {
		return false
	}
	if c, ok := target.(Code); ok {
		return e.Code == c
	}
	return false
}

// errOptions is the set of available options for error functions.
type errOptions struct {
	withOp   Op
	withMsg  string
	withWrap error
	withKind Kind
}

func errDefaults() errOptions {
	return errOptions{}
}

func getErrOpts(opt ...Option) errOptions {
	opts := errDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithOp provides an optional Op (operation) for an Err.
func WithOp(op string) Option {
	return func(o interface{}) {
		if o, ok := o.(*errOptions); ok {
			o.withOp = Op(op)
		}
	}
}

// WithMsg provides an optional message for an Err.
func WithMsg(msg string) Option {
	return func(o interface{}) {
		if o, ok := o.(*errOptions); ok {
			o.withMsg = msg
		}
	}
}

// WithWrap provides an optional error to wrap for an Err.
func WithWrap(err error) Option {
	return func(o interface{}) {
		if o, ok := o.(*errOptions); ok {
			o.withWrap = err
		}
	}
}

// WithKind provides an optional Kind classification for an Err.
func WithKind(k Kind) Option {
	return func(o interface{}) {
		if o, ok := o.(*errOptions); ok {
			o.withKind = k
		}
	}
}
