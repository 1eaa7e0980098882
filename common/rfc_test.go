package common

import (
	"testing"
)

func TestNormalizeRFC(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"legal entity", "AAA010101AAA", "AAA010101AAA", false},
		{"individual", "GODE561231GR8", "GODE561231GR8", false},
		{"lowercase", "aaa010101aaa", "AAA010101AAA", false},
		{"with separators", " AAA-010101-AAA ", "AAA010101AAA", false},
		{"with enye", "ÑAA010101AA1", "ÑAA010101AA1", false},
		{"with ampersand", "A&A010101AA1", "A&A010101AA1", false},
		{"empty passes through", "", "", false},
		{"too short", "AAA010101", "", true},
		{"too long", "AAAA010101AAAA", "", true},
		{"digits in name part", "1AA010101AAA", "", true},
		{"letters in date part", "AAAX10101AAA", "", true},
		{"bad homoclave", "AAA010101A:A", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRFC(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
