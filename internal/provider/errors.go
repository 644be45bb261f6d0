package provider

import "fmt"

// ErrorKind enumerates the error taxonomy of the engine. Kinds, not
// language types: every error the engine surfaces carries exactly one
// of these.
type ErrorKind int

const (
	// NoProviderForAccuracy means the registry has no provider for the
	// requested tier, nor for any tier on the fallback ladder.
	NoProviderForAccuracy ErrorKind = iota
	// ProviderUnavailable means a specific provider is not reachable.
	ProviderUnavailable
	// ProviderTimeout means a provider did not answer within its timeout.
	ProviderTimeout
	// ProviderInvalidResponse means a provider answered with an
	// unparsable or incomplete payload.
	ProviderInvalidResponse
	// ProviderNoFix means a provider responded but has no position.
	ProviderNoFix
	// FailedAllProviders means the fallback ladder was exhausted.
	FailedAllProviders
	// InvalidRegion means a region add/update violated an invariant.
	InvalidRegion
	// Cancelled means the operation was cancelled by stop() or a
	// superseding request. Cancelled errors never reach a delegate.
	Cancelled
)

func (k ErrorKind) String() string {
	switch k {
	case NoProviderForAccuracy:
		return "NoProviderForAccuracy"
	case ProviderUnavailable:
		return "ProviderUnavailable"
	case ProviderTimeout:
		return "ProviderTimeout"
	case ProviderInvalidResponse:
		return "ProviderInvalidResponse"
	case ProviderNoFix:
		return "ProviderNoFix"
	case FailedAllProviders:
		return "FailedAllProviders"
	case InvalidRegion:
		return "InvalidRegion"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is the interface every engine-surfaced error implements.
type Error interface {
	error
	Kind() ErrorKind
	Unwrap() error
}

type engineError struct {
	kind  ErrorKind
	msg   string
	cause error
}

func (e *engineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *engineError) Kind() ErrorKind { return e.kind }
func (e *engineError) Unwrap() error   { return e.cause }

// NewError builds an Error of the given kind wrapping cause (which may
// be nil).
func NewError(kind ErrorKind, msg string, cause error) Error {
	return &engineError{kind: kind, msg: msg, cause: cause}
}

// Errorf builds an Error of the given kind with a formatted message and
// no cause.
func Errorf(kind ErrorKind, format string, args ...interface{}) Error {
	return &engineError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind of err if it (or something in its chain)
// implements Error; ok is false otherwise.
func KindOf(err error) (kind ErrorKind, ok bool) {
	for err != nil {
		if e, isErr := err.(Error); isErr {
			return e.Kind(), true
		}
		u, hasUnwrap := err.(interface{ Unwrap() error })
		if !hasUnwrap {
			break
		}
		err = u.Unwrap()
	}
	return 0, false
}

// IsCancelled reports whether err is (or wraps) a Cancelled error.
func IsCancelled(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == Cancelled
}
