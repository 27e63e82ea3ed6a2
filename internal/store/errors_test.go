package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/audiopaper-api/internal/domain"
)

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "generic error", err: errors.New("some error"), expected: false},
		{name: "ErrNotFound", err: ErrNotFound, expected: true},
		{name: "wrapped ErrNotFound", err: fmt.Errorf("get: %w", ErrNotFound), expected: true},
		{name: "ErrTaskNotFound", err: ErrTaskNotFound, expected: true},
		{name: "domain ErrDocumentNotFound", err: domain.ErrDocumentNotFound, expected: true},
		{name: "ErrDuplicate", err: ErrDuplicate, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFoundError(tt.err); got != tt.expected {
				t.Errorf("IsNotFoundError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}
