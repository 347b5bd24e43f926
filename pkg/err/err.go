package errprocess

import (
	"errors"
	"fmt"

	"chat_sync_service/pkg/logger"
)

// Kind classifies every error that can leave a store adapter or the engine.
type Kind int

const (
	// Unknown store error that could not be classified
	Unknown Kind = iota
	// NotFound conversation or record does not exist
	NotFound
	// PermissionDenied caller may not read or write the record
	PermissionDenied
	// NetworkUnavailable backing store unreachable or timed out
	NetworkUnavailable
	// SendFailure an outbound message was rolled back
	SendFailure
	// SubscriptionError a live stream failed; the session stays open
	SubscriptionError
	// CleanupFailure best-effort teardown call failed, log only
	CleanupFailure
	// Invalid request rejected before reaching a store
	Invalid
)

var kindNames = map[Kind]string{
	Unknown:            "unknown",
	NotFound:           "not_found",
	PermissionDenied:   "permission_denied",
	NetworkUnavailable: "network_unavailable",
	SendFailure:        "send_failure",
	SubscriptionError:  "subscription_error",
	CleanupFailure:     "cleanup_failure",
	Invalid:            "invalid",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified error. Op names the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wrap err with kind
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf build a classified error from a message
func Newf(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether any classified error in the chain has kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}
