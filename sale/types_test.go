package sale

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain integer", input: "105000000", want: "105000000"},
		{name: "zero", input: "0", want: "0"},
		{name: "negative integer", input: "-3", want: "-3"},
		{name: "18-decimal scale value", input: "1500000000000000000", want: "1500000000000000000"},
		{name: "fractional base units", input: "1500000000000000000.5", wantErr: ErrInvalidAmount},
		{name: "sub-unit fraction", input: "0.1", wantErr: ErrInvalidAmount},
		{name: "not a number", input: "ten"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseAmount(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if tt.want == "" {
				if err == nil {
					t.Fatalf("ParseAmount(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q): %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
