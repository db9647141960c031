package internal

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewOTPFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := NewOTP(6)
		if err != nil {
			t.Fatalf("new otp: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		if strings.Trim(code, "0123456789") != "" {
			t.Fatalf("non-digit in %q", code)
		}
	}
}

func TestNewOTPZeroPads(t *testing.T) {
	code, err := newOTPFrom(bytes.NewReader(make([]byte, 64)), 6)
	if err != nil {
		t.Fatalf("new otp: %v", err)
	}
	if code != "000000" {
		t.Fatalf("expected zero padded code, got %q", code)
	}
}

func TestNewOTPRejectsDigits(t *testing.T) {
	for _, d := range []int{0, 5, 11} {
		if _, err := NewOTP(d); err == nil {
			t.Fatalf("expected digits=%d to fail", d)
		}
	}
}

func TestNewOTPSpread(t *testing.T) {
	seen := make(map[byte]int)
	for i := 0; i < 500; i++ {
		code, err := NewOTP(6)
		if err != nil {
			t.Fatalf("new otp: %v", err)
		}
		seen[code[0]]++
	}
	if len(seen) < 8 {
		t.Fatalf("leading digit distribution too narrow: %v", seen)
	}
}
