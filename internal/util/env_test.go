package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"true", false, true},
		{"YES", false, true},
		{"1", false, true},
		{"off", true, false},
		{"0", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("LEADPULSE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("LEADPULSE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("LEADPULSE_TEST_INT", "12")
	if got := ParseIntEnv("LEADPULSE_TEST_INT", 5); got != 12 {
		t.Errorf("got %d, want 12", got)
	}
	t.Setenv("LEADPULSE_TEST_INT", "twelve")
	if got := ParseIntEnv("LEADPULSE_TEST_INT", 5); got != 5 {
		t.Errorf("invalid value: got %d, want default 5", got)
	}
	t.Setenv("LEADPULSE_TEST_INT", "")
	if got := ParseIntEnv("LEADPULSE_TEST_INT", 5); got != 5 {
		t.Errorf("empty value: got %d, want default 5", got)
	}
}

func TestParseFloatEnv(t *testing.T) {
	t.Setenv("LEADPULSE_TEST_FLOAT", "0.75")
	if got := ParseFloatEnv("LEADPULSE_TEST_FLOAT", 0.6); got != 0.75 {
		t.Errorf("got %v, want 0.75", got)
	}
	t.Setenv("LEADPULSE_TEST_FLOAT", "most")
	if got := ParseFloatEnv("LEADPULSE_TEST_FLOAT", 0.6); got != 0.6 {
		t.Errorf("invalid value: got %v, want default 0.6", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("LEADPULSE_TEST_DUR", "90s")
	if got := ParseDurationEnv("LEADPULSE_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("got %v, want 90s", got)
	}
	t.Setenv("LEADPULSE_TEST_DUR", "soon")
	if got := ParseDurationEnv("LEADPULSE_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("invalid value: got %v, want default 1m", got)
	}
}
