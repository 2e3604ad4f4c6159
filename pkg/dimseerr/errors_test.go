package dimseerr

import (
	"errors"
	"testing"
)

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  uint16
		success bool
		pending bool
		warning bool
		failure bool
	}{
		{"success", 0x0000, true, false, false, false},
		{"pending", 0xFF00, false, true, false, false},
		{"pending with subops", 0xFF01, false, true, false, false},
		{"warning coercion", 0xB000, false, false, true, false},
		{"failure cannot understand", 0xC000, false, false, false, true},
		{"failure out of resources", 0xA700, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSuccess(tt.status); got != tt.success {
				t.Errorf("IsSuccess(0x%04X) = %v, want %v", tt.status, got, tt.success)
			}
			if got := IsPending(tt.status); got != tt.pending {
				t.Errorf("IsPending(0x%04X) = %v, want %v", tt.status, got, tt.pending)
			}
			if got := IsWarning(tt.status); got != tt.warning {
				t.Errorf("IsWarning(0x%04X) = %v, want %v", tt.status, got, tt.warning)
			}
			if got := IsFailure(tt.status); got != tt.failure {
				t.Errorf("IsFailure(0x%04X) = %v, want %v", tt.status, got, tt.failure)
			}
		})
	}
}

func TestStorageUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := NewStorage("Io", inner)
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped inner error")
	}
}

func TestTransformUnwrap(t *testing.T) {
	inner := errors.New("callback panicked")
	err := NewTransform("PatientID hook", inner)
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped inner error")
	}
}

func TestNegotiationErrorVariants(t *testing.T) {
	rejected := NewRejected(RejectSourceServiceUser, 7, "bad identity")
	if !rejected.RejectedBy {
		t.Error("expected RejectedBy true")
	}
	noCommon := NewNoCommonPC("no acceptable transfer syntax")
	if !noCommon.NoCommonPC {
		t.Error("expected NoCommonPC true")
	}
}
