package validator

import "errors"

// Sentinel errors wrapped by Rejection. Use errors.Is to branch on them.
var (
	ErrMissingCode         = errors.New("missing code")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrCodeTooLarge        = errors.New("code too large")
	ErrRestrictedOperation = errors.New("restricted operation")
)

// Reason identifies why a request was rejected.
type Reason int

const (
	ReasonMissingCode Reason = iota + 1
	ReasonUnsupportedLanguage
	ReasonCodeTooLarge
	ReasonRestrictedOperation
)

// String returns the reason as a metric/log label.
func (r Reason) String() string {
	switch r {
	case ReasonMissingCode:
		return "missing_code"
	case ReasonUnsupportedLanguage:
		return "unsupported_language"
	case ReasonCodeTooLarge:
		return "code_too_large"
	case ReasonRestrictedOperation:
		return "restricted_operation"
	default:
		return "unknown"
	}
}

// Message returns the client-facing message for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonMissingCode:
		return "Code is required"
	case ReasonUnsupportedLanguage:
		return "Only JavaScript is supported currently"
	case ReasonCodeTooLarge:
		return "Code exceeds the maximum allowed size"
	case ReasonRestrictedOperation:
		return "Code contains restricted operations"
	default:
		return "Invalid request"
	}
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonMissingCode:
		return ErrMissingCode
	case ReasonUnsupportedLanguage:
		return ErrUnsupportedLanguage
	case ReasonCodeTooLarge:
		return ErrCodeTooLarge
	case ReasonRestrictedOperation:
		return ErrRestrictedOperation
	default:
		return nil
	}
}

// Rejection is returned by Validate when a request must not be executed.
type Rejection struct {
	Reason Reason
	// Rule is the name of the matched denied pattern. It is only set for
	// ReasonRestrictedOperation and is meant for logs, not for clients.
	Rule string
}

func (r *Rejection) Error() string {
	if r.Rule != "" {
		return r.Reason.Message() + " (rule " + r.Rule + ")"
	}
	return r.Reason.Message()
}

// Unwrap returns the sentinel error for the rejection reason.
func (r *Rejection) Unwrap() error {
	return r.Reason.sentinel()
}

// AsRejection reports whether err is a Rejection and returns it.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
