package config

import (
	"testing"
	"time"
)

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{in: "15:30", h: 15, m: 30},
		{in: "00:00", h: 0, m: 0},
		{in: "23:59", h: 23, m: 59},
		{in: " 9:05 ", h: 9, m: 5},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12", wantErr: true},
		{in: "12:30:00", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			h, m, err := ParseHHMM(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseHHMM(%q) = (%d,%d), want error", tt.in, h, m)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHHMM(%q): %v", tt.in, err)
			}
			if h != tt.h || m != tt.m {
				t.Fatalf("ParseHHMM(%q) = (%d,%d), want (%d,%d)", tt.in, h, m, tt.h, tt.m)
			}
		})
	}
}

func TestParseHHMMOrDefault(t *testing.T) {
	t.Parallel()
	h, m, err := ParseHHMMOrDefault("broadcast.time", "", 15, 30)
	if err != nil || h != 15 || m != 30 {
		t.Fatalf("empty = (%d,%d,%v), want default (15,30)", h, m, err)
	}
	h, m, err = ParseHHMMOrDefault("broadcast.time", "09:00", 15, 30)
	if err != nil || h != 9 || m != 0 {
		t.Fatalf("explicit = (%d,%d,%v), want (9,0)", h, m, err)
	}
	if _, _, err = ParseHHMMOrDefault("broadcast.time", "nope", 15, 30); err == nil {
		t.Fatal("invalid value produced no error")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 90s "); err != nil || d != 90*time.Second {
		t.Fatalf("got (%v, %v), want 90s", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty got (%v, %v), want 0", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration produced no error")
	}
	if _, err := ParseDurationField("x", "banana"); err == nil {
		t.Fatal("garbage duration produced no error")
	}

	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default got (%v, %v), want 1m", d, err)
	}
}
