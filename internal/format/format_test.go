package format

import "testing"

func TestWon(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0원"},
		{500, "500원"},
		{100000, "100,000원"},
		{1234567, "1,234,567원"},
	}
	for _, tt := range tests {
		if got := Won(tt.in); got != tt.want {
			t.Errorf("Won(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{85, "85%"},
		{85.5, "85.5%"},
		{33.333, "33.33%"},
		{0, "0%"},
		{100, "100%"},
	}
	for _, tt := range tests {
		if got := Percent(tt.in); got != tt.want {
			t.Errorf("Percent(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
