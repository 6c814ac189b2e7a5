// SPDX-License-Identifier: AGPL-3.0-only
package gateway

import (
	"errors"
	"fmt"
)

// Kind is the closed set of reasons a call did not produce data.
type Kind int

const (
	KindUnknown Kind = iota
	KindDecoding
	KindNoContent
	KindUnauthorized
	KindBadStatus
	KindInvalidURL
)

func (k Kind) String() string {
	switch k {
	case KindDecoding:
		return "decoding error"
	case KindNoContent:
		return "no content"
	case KindUnauthorized:
		return "unauthorized"
	case KindBadStatus:
		return "bad status code"
	case KindInvalidURL:
		return "invalid url"
	default:
		return "unknown error"
	}
}

// Error is the only failure type the gateway returns. StatusCode is set for
// KindBadStatus and, informationally, for other kinds derived from a response.
type Error struct {
	Kind       Kind
	StatusCode int
	Op         string
	Err        error
}

var (
	ErrDecoding     = &Error{Kind: KindDecoding}
	ErrNoContent    = &Error{Kind: KindNoContent}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrBadStatus    = &Error{Kind: KindBadStatus}
	ErrInvalidURL   = &Error{Kind: KindInvalidURL}
	ErrUnknown      = &Error{Kind: KindUnknown}
)

// BadStatus returns a target for errors.Is that matches one specific code.
func BadStatus(code int) *Error {
	return &Error{Kind: KindBadStatus, StatusCode: code}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Kind == KindBadStatus {
		msg = fmt.Sprintf("bad status code %d", e.StatusCode)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind. A target with a non-zero StatusCode also has to match
// the code, so errors.Is(err, ErrBadStatus) matches any bad status while
// errors.Is(err, BadStatus(500)) matches only 500.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

// KindOf reports the classified kind of err. Errors that did not come from
// the gateway are KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusCode reports the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
