package exchange

import (
	"errors"
	"fmt"
)

// Exchange application error codes, as returned in the response envelope.
// HTTP status is incidental; the envelope code is authoritative.
const (
	codeSuccess            = 0
	codeTimestampExpired   = 10002
	codeRateLimited        = 10006
	codeSystemBusy         = 10016
	codeServiceUnavailable = 10500
	codeSymbolNotFound     = 20001
	codeInsufficientMargin = 20005
	codeInvalidPrecision   = 20007
	codeOrderNotFound      = 20013
)

// Kind classifies an APIError for callers that branch on failure class
// rather than raw exchange codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransient
	KindRateLimited
	KindSymbolNotFound
	KindInsufficientMargin
	KindInvalidPrecision
	KindOrderNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindSymbolNotFound:
		return "symbol_not_found"
	case KindInsufficientMargin:
		return "insufficient_margin"
	case KindInvalidPrecision:
		return "invalid_precision"
	case KindOrderNotFound:
		return "order_not_found"
	default:
		return "unknown"
	}
}

// APIError is a decoded exchange failure: the envelope {code, msg} pair
// plus the HTTP status it arrived with (0 for transport-level failures).
type APIError struct {
	Code       int
	Msg        string
	HTTPStatus int
}

func (e *APIError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("exchange error %d (http %d): %s", e.Code, e.HTTPStatus, e.Msg)
	}
	return fmt.Sprintf("exchange error %d: %s", e.Code, e.Msg)
}

// Kind maps the exchange code (or HTTP status) onto the failure taxonomy.
func (e *APIError) Kind() Kind {
	switch e.Code {
	case codeTimestampExpired, codeSystemBusy, codeServiceUnavailable:
		return KindTransient
	case codeRateLimited:
		return KindRateLimited
	case codeSymbolNotFound:
		return KindSymbolNotFound
	case codeInsufficientMargin:
		return KindInsufficientMargin
	case codeInvalidPrecision:
		return KindInvalidPrecision
	case codeOrderNotFound:
		return KindOrderNotFound
	}
	if e.HTTPStatus >= 500 {
		return KindTransient
	}
	if e.HTTPStatus == 429 {
		return KindRateLimited
	}
	return KindUnknown
}

// Transient reports whether a retry may succeed.
func (e *APIError) Transient() bool {
	k := e.Kind()
	return k == KindTransient || k == KindRateLimited
}

// ErrRetriesExhausted wraps the last transient failure after the attempt
// budget is spent.
var ErrRetriesExhausted = errors.New("exchange: retries exhausted")

// KindOf extracts the failure kind from any error in the chain.
// Non-exchange errors (network, context) report KindTransient for wrapped
// ErrRetriesExhausted and KindUnknown otherwise.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}
	if errors.Is(err, ErrRetriesExhausted) {
		return KindTransient
	}
	return KindUnknown
}

// IsOrderNotFound reports whether err means the referenced order does not
// exist on the exchange (already filled, already cancelled, or never seen).
func IsOrderNotFound(err error) bool {
	return KindOf(err) == KindOrderNotFound
}
