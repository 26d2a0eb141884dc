package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	err := New(CodeInsufficientFunds, "wallet cannot cover debit")
	if err.Code() != CodeInsufficientFunds {
		t.Errorf("code = %s", err.Code())
	}
	if err.Message() != "wallet cannot cover debit" {
		t.Errorf("message = %s", err.Message())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "loading wallet")
	if !stdErrors.Is(err, cause) {
		t.Error("wrapped error should unwrap to cause")
	}
}

func TestAsFindsTypedErrorThroughChain(t *testing.T) {
	inner := New(CodeInvalidTrade, "bad request")
	outer := fmt.Errorf("executing trade: %w", inner)

	typed := As(outer)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeInvalidTrade {
		t.Errorf("code = %s", typed.Code())
	}
}

func TestHasCode(t *testing.T) {
	err := New(CodeMarketClosed, "closed")
	if !HasCode(err, CodeMarketClosed) {
		t.Error("expected HasCode true")
	}
	if HasCode(err, CodeNotFound) {
		t.Error("expected HasCode false for other code")
	}
	if HasCode(stdErrors.New("plain"), CodeInternal) {
		t.Error("plain errors carry no code")
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("NOT_A_CODE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("status = %d", meta.HTTPStatus)
	}
}

func TestMetadataStatuses(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeInsufficientFunds, http.StatusUnprocessableEntity},
		{CodeInvalidTransition, http.StatusUnprocessableEntity},
		{CodeInvalidTrade, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := MetadataFor(tt.code).HTTPStatus; got != tt.want {
			t.Errorf("MetadataFor(%s).HTTPStatus = %d, want %d", tt.code, got, tt.want)
		}
	}
}
