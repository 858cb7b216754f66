package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("connection refused")

	tests := []struct {
		name      string
		err       error
		want      Kind
		retryable bool
	}{
		{"nil", nil, KindUnknown, false},
		{"plain", base, KindUnknown, false},
		{"provider", Provider("embed", base), KindProvider, true},
		{"wrapped provider", fmt.Errorf("retrieve: %w", Provider("embed", base)), KindProvider, true},
		{"index", Index("search", base), KindIndex, false},
		{"grounding", Grounding("generate"), KindGrounding, false},
		{"input", InputRejected("ingest", "unsupported format %q", ".exe"), KindInputRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
			if got := Retryable(tt.err); got != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := Provider("generate", base)
	if !errors.Is(err, base) {
		t.Error("errors.Is(err, base) = false, want true")
	}
	if !errors.Is(Grounding("generate"), ErrNoGrounding) {
		t.Error("grounding error does not wrap ErrNoGrounding")
	}
	if got := err.Error(); got != "generate: provider failure: boom" {
		t.Errorf("Error() = %q", got)
	}
}
