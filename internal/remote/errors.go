package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a collaborator failure.
type Kind int

const (
	// Transport means the collaborator could not be reached (DNS, connect, timeout, bad body).
	Transport Kind = iota + 1
	// Remote means the collaborator answered with a non-success status.
	Remote
	// Data means an entity the caller relies on is missing or malformed.
	Data
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Remote:
		return "remote"
	case Data:
		return "data"
	default:
		return "unknown"
	}
}

// ErrNotFound is matched by errors.Is for Data failures caused by a missing entity.
var ErrNotFound = errors.New("not found")

// Error is the failure half of every collaborator call.
type Error struct {
	Kind       Kind
	Service    string // e.g. "directus", "cinetpay", "listmonk", "minio"
	Op         string // e.g. "list_orders", "check_transaction"
	StatusCode int    // zero for transport failures
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s failure", e.Service, e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// TransportError builds a Transport failure wrapping cause.
func TransportError(service, op string, cause error) *Error {
	return &Error{Kind: Transport, Service: service, Op: op, Err: cause}
}

// RemoteError builds a Remote failure for a non-success status.
func RemoteError(service, op string, status int, detail string) *Error {
	return &Error{Kind: Remote, Service: service, Op: op, StatusCode: status, Detail: detail}
}

// DataError builds a Data failure. Pass ErrNotFound as cause for missing entities.
func DataError(service, op, detail string, cause error) *Error {
	return &Error{Kind: Data, Service: service, Op: op, Detail: detail, Err: cause}
}

// IsKind reports whether err carries a *Error of kind k.
func IsKind(err error, k Kind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == k
}

// IsStatus reports whether err is a Remote failure with the given status code.
func IsStatus(err error, status int) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == Remote && re.StatusCode == status
}

// Fields flattens err into log fields. Non *Error values produce only "error".
func Fields(err error) map[string]interface{} {
	out := map[string]interface{}{"error": err.Error()}
	var re *Error
	if errors.As(err, &re) {
		out["service"] = re.Service
		out["op"] = re.Op
		out["failure"] = re.Kind.String()
		if re.StatusCode != 0 {
			out["status_code"] = re.StatusCode
		}
	}
	return out
}
