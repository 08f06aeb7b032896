package config

import (
	"testing"
	"time"
)

func TestStringFallback(t *testing.T) {
	t.Setenv("CLINICOPS_TEST_STRING", "")
	if got := String("CLINICOPS_TEST_STRING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("CLINICOPS_TEST_STRING", "  value ")
	if got := String("CLINICOPS_TEST_STRING", "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("CLINICOPS_TEST_REQUIRED", "")
	if _, err := RequiredString("CLINICOPS_TEST_REQUIRED"); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestPort(t *testing.T) {
	t.Setenv("CLINICOPS_TEST_PORT", "70000")
	if _, err := Port("CLINICOPS_TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	t.Setenv("CLINICOPS_TEST_PORT", "")
	p, err := Port("CLINICOPS_TEST_PORT", "8080")
	if err != nil || p != "8080" {
		t.Fatalf("expected fallback port, got %q (%v)", p, err)
	}
}

func TestTypedHelpers(t *testing.T) {
	t.Setenv("CLINICOPS_TEST_INT", "12")
	t.Setenv("CLINICOPS_TEST_BOOL", "off")
	t.Setenv("CLINICOPS_TEST_DURATION", "90s")

	n, err := Int("CLINICOPS_TEST_INT", 1)
	if err != nil || n != 12 {
		t.Fatalf("Int: got %d (%v)", n, err)
	}
	if Bool("CLINICOPS_TEST_BOOL", true) {
		t.Fatal("Bool: expected false")
	}
	d, err := Duration("CLINICOPS_TEST_DURATION", time.Second)
	if err != nil || d != 90*time.Second {
		t.Fatalf("Duration: got %s (%v)", d, err)
	}

	t.Setenv("CLINICOPS_TEST_INT", "twelve")
	if _, err := Int("CLINICOPS_TEST_INT", 1); err == nil {
		t.Fatal("expected error for non-numeric int")
	}
}
