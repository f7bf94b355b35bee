package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrQuerySyntax, http.StatusBadRequest},
		{ErrUnknownField, http.StatusBadRequest},
		{ErrMalformedRecord, http.StatusBadRequest},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrWriteConflict, http.StatusConflict},
		{ErrTimeout, http.StatusServiceUnavailable},
		{ErrCorruptIndex, http.StatusInternalServerError},
		{errors.New("anything else"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", ErrWriteConflict), http.StatusConflict},
		{New(ErrMissingDocument, http.StatusInternalServerError, "gone"), http.StatusInternalServerError},
		{Syntax(3, "bad token"), http.StatusBadRequest},
		{&UnknownFieldError{Name: "folder", Offset: 0}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := HTTPStatusCode(tt.err); got != tt.want {
			t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSyntaxErrorCarriesOffset(t *testing.T) {
	err := Syntax(12, "unexpected %q", ")")
	if !errors.Is(err, ErrQuerySyntax) {
		t.Error("SyntaxError does not unwrap to ErrQuerySyntax")
	}
	var synErr *SyntaxError
	if !errors.As(err, &synErr) || synErr.Offset != 12 {
		t.Errorf("offset not preserved: %v", err)
	}
}

func TestAppErrorUnwraps(t *testing.T) {
	err := Newf(ErrMalformedRecord, http.StatusBadRequest, "record %d has no id", 3)
	if !errors.Is(err, ErrMalformedRecord) {
		t.Error("AppError does not unwrap to its sentinel")
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status not preserved: %v", err)
	}
}

func TestUnknownFieldError(t *testing.T) {
	err := fmt.Errorf("parsing: %w", &UnknownFieldError{Name: "folder", Offset: 7})
	if !errors.Is(err, ErrUnknownField) {
		t.Error("UnknownFieldError does not unwrap to ErrUnknownField")
	}
}
