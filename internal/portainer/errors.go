package portainer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind enumerates the failure classes surfaced by the client.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotConfigured
	KindInvalidParameters
	KindTransportUnreachable
	KindUnauthenticated
	KindUnauthorized
	KindMalformedPayload
	KindDecodingFailed
	KindInvalidDate
	KindServerRejected
	KindApplicationError
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotConfigured:
		return "not configured"
	case KindInvalidParameters:
		return "invalid parameters"
	case KindTransportUnreachable:
		return "transport unreachable"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUnauthorized:
		return "unauthorized"
	case KindMalformedPayload:
		return "malformed payload"
	case KindDecodingFailed:
		return "decoding failed"
	case KindInvalidDate:
		return "invalid date"
	case KindServerRejected:
		return "server rejected"
	case KindApplicationError:
		return "application error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the only error type returned across the client boundary.
// StatusCode is set for ServerRejected and for classified HTTP responses;
// Message carries the server's message for ApplicationError.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	switch {
	case e.Kind == KindServerRejected:
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotConfigured        = &Error{Kind: KindNotConfigured}
	ErrInvalidParameters    = &Error{Kind: KindInvalidParameters}
	ErrTransportUnreachable = &Error{Kind: KindTransportUnreachable}
	ErrUnauthenticated      = &Error{Kind: KindUnauthenticated}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrMalformedPayload     = &Error{Kind: KindMalformedPayload}
	ErrDecodingFailed       = &Error{Kind: KindDecodingFailed}
	ErrInvalidDate          = &Error{Kind: KindInvalidDate}
	ErrServerRejected       = &Error{Kind: KindServerRejected}
	ErrApplication          = &Error{Kind: KindApplicationError}
	ErrCancelled            = &Error{Kind: KindCancelled}
)

// KindOf returns the taxonomy kind of err, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsCancelled reports whether err is a caller-initiated cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled || errors.Is(err, context.Canceled)
}

func invalidParams(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParameters, Message: fmt.Sprintf(format, args...)}
}

// errorEnvelope is the conventional error body returned by the API.
type errorEnvelope struct {
	Message string `json:"message"`
	Details string `json:"details"`
}

// classifyTransport maps a failure that happened before a response was received.
func classifyTransport(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCancelled, Err: err}
	}
	// DNS, connect, TLS and timeout-class failures all land here.
	return &Error{Kind: KindTransportUnreachable, Err: err}
}

// classifyResponse maps a non-success HTTP response.
func classifyResponse(status int, body []byte) *Error {
	if e := classifyEnvelope(status, body); e != nil {
		return e
	}
	return &Error{Kind: KindServerRejected, StatusCode: status}
}

// classifyEnvelope returns nil when body carries no recognizable error message.
func classifyEnvelope(status int, body []byte) *Error {
	if len(body) == 0 {
		return nil
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	msg := strings.TrimSpace(env.Message)
	if msg == "" {
		return nil
	}
	kind := KindApplicationError
	switch strings.ToLower(msg) {
	case "invalid jwt token", "a valid authorisation token is missing":
		kind = KindUnauthenticated
	case "unauthorized":
		kind = KindUnauthorized
	case "invalid request payload":
		kind = KindMalformedPayload
	}
	if env.Details != "" && kind == KindApplicationError && !strings.EqualFold(env.Details, msg) {
		msg = msg + ": " + env.Details
	}
	return &Error{Kind: kind, StatusCode: status, Message: msg}
}

// embeddedError reports an error envelope carried by a 2xx object body. None
// of the decoded resource types has a top-level message field.
func embeddedError(status int, body []byte) *Error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil
	}
	if _, ok := fields["message"]; !ok {
		return nil
	}
	return classifyEnvelope(status, trimmed)
}

// classifyDecode maps a 2xx body that did not match the expected shape.
func classifyDecode(status int, body []byte, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if env := classifyEnvelope(status, body); env != nil {
		return env
	}
	return &Error{Kind: KindDecodingFailed, Err: err}
}
