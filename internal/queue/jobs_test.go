package queue

import (
	"errors"
	"testing"
)

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload ProcessPayload
		ok      bool
	}{
		{"valid", ProcessPayload{ProjectID: "p1", UserID: "u1", Action: "process"}, true},
		{"missing project", ProcessPayload{UserID: "u1", Action: "process"}, false},
		{"missing user", ProcessPayload{ProjectID: "p1", Action: "process"}, false},
		{"unsupported action", ProcessPayload{ProjectID: "p1", UserID: "u1", Action: "delete"}, false},
		{"empty action", ProcessPayload{ProjectID: "p1", UserID: "u1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.ok && err != nil {
				t.Fatalf("expected valid payload, got %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatalf("expected validation error")
				}
				if !errors.Is(err, ErrInvalidPayload) {
					t.Fatalf("expected ErrInvalidPayload, got %v", err)
				}
			}
		})
	}
}
