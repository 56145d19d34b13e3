package common

import (
	"fmt"
	"testing"
)

func TestClassifyExchangeError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   int
		want   ErrorKind
	}{
		{"timestamp outside recvWindow", 400, -1021, KindSignature},
		{"bad signature", 401, -1022, KindSignature},
		{"rate limit code", 429, -1003, KindTransient},
		{"429 without code", 429, 0, KindTransient},
		{"ip ban", 418, 0, KindTransient},
		{"internal error", 500, 0, KindTransient},
		{"bad gateway", 502, 0, KindTransient},
		{"insufficient margin", 400, -2019, KindRejection},
		{"order would trigger immediately", 400, -2021, KindRejection},
		{"generic 400", 400, 0, KindRejection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyExchangeError(tt.status, tt.code, "msg")
			if err.Kind != tt.want {
				t.Fatalf("status=%d code=%d: got kind %s, want %s", tt.status, tt.code, err.Kind, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(Transientf("conn reset")) {
		t.Fatal("transient error should be retryable")
	}
	if Retryable(ClassifyExchangeError(400, -1022, "bad signature")) {
		t.Fatal("signature error must never be retryable")
	}
	if Retryable(Validationf("bad qty")) {
		t.Fatal("validation error must not be retryable")
	}
	if Retryable(ClassifyExchangeError(400, -2019, "margin")) {
		t.Fatal("exchange rejection must not be retryable")
	}
	if Retryable(fmt.Errorf("plain error")) {
		t.Fatal("non-APIError must not be retryable")
	}
}

func TestRetryableWrapped(t *testing.T) {
	wrapped := fmt.Errorf("account: %w", Transientf("timeout"))
	if !Retryable(wrapped) {
		t.Fatal("wrapped transient error should stay retryable")
	}
	if KindOf(wrapped) != KindTransient {
		t.Fatalf("got kind %s, want %s", KindOf(wrapped), KindTransient)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := ClassifyExchangeError(400, -1021, "Timestamp for this request is outside of the recvWindow.")
	got := err.Error()
	want := "SIGNATURE_OR_TIMESTAMP (code -1021): Timestamp for this request is outside of the recvWindow."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
