package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures so callers can decide whether to retry and
// which stage of the pipeline broke.
type ErrorKind string

const (
	KindTransient        ErrorKind = "TRANSIENT_NETWORK"
	KindSignature        ErrorKind = "SIGNATURE_OR_TIMESTAMP"
	KindValidation       ErrorKind = "VALIDATION"
	KindInsufficientData ErrorKind = "INSUFFICIENT_DATA"
	KindRejection        ErrorKind = "EXCHANGE_REJECTION"
)

// APIError carries the upstream code and message alongside its kind.
type APIError struct {
	Kind    ErrorKind
	Code    int    // exchange error code, 0 if none
	Status  int    // HTTP status, 0 on transport failure
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Transientf builds a retryable network-layer error.
func Transientf(format string, args ...any) *APIError {
	return &APIError{Kind: KindTransient, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a terminal caller-input error.
func Validationf(format string, args ...any) *APIError {
	return &APIError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// InsufficientDataf signals too little history for a computation.
func InsufficientDataf(format string, args ...any) *APIError {
	return &APIError{Kind: KindInsufficientData, Message: fmt.Sprintf(format, args...)}
}

// ClassifyExchangeError maps an exchange error payload onto the taxonomy.
// Binance codes: -1021 timestamp outside recvWindow, -1022 bad signature,
// -1003 rate limit; 418/429 are ban/backoff statuses, 5xx is the venue
// itself struggling. Everything else is a business rejection.
func ClassifyExchangeError(status, code int, msg string) *APIError {
	kind := KindRejection
	switch {
	case code == -1021 || code == -1022:
		kind = KindSignature
	case code == -1003 || status == http.StatusTooManyRequests || status == 418:
		kind = KindTransient
	case status >= 500:
		kind = KindTransient
	}
	return &APIError{Kind: kind, Code: code, Status: status, Message: msg}
}

// KindOf extracts the kind from err, or "" if err is not an APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Retryable reports whether err is a transient failure worth another attempt.
// Signature rejections are never retryable: resending the same canonical
// string would fail identically.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}
