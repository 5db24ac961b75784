package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestEngineError(t *testing.T) {
	tests := []struct {
		name string
		err  *EngineError
		want string
	}{
		{
			name: "with dataset",
			err:  &EngineError{Dataset: "roads", Op: "convert", Message: "ERROR 1: boom"},
			want: "roads",
		},
		{
			name: "without dataset",
			err:  &EngineError{Op: "describe", Message: "ERROR 4: unreadable"},
			want: "describe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); !strings.Contains(got, tt.want) {
				t.Errorf("Error() = %q, want substring %q", got, tt.want)
			}
			if !errors.Is(tt.err, ErrEngineFailure) {
				t.Error("EngineError should unwrap to ErrEngineFailure")
			}
		})
	}
}

func TestResolveError(t *testing.T) {
	err := &ResolveError{
		Code: "31466",
		Attempts: []error{
			errors.New("epsg.io: status 503"),
			errors.New("spatialreference.org: connection refused"),
		},
	}

	if !errors.Is(err, ErrCrsResolution) {
		t.Error("ResolveError should unwrap to ErrCrsResolution")
	}
	msg := err.Error()
	for _, want := range []string{"31466", "503", "connection refused"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestSentinelHierarchy(t *testing.T) {
	if !errors.Is(ErrUnsupportedFormat, ErrUnsupported) {
		t.Error("ErrUnsupportedFormat should wrap ErrUnsupported")
	}
	if !errors.Is(ErrDispatcherClosed, ErrUnavailable) {
		t.Error("ErrDispatcherClosed should wrap ErrUnavailable")
	}
}
