package diagnostic

import (
	"errors"
	"strings"
	"testing"
)

func TestCollectorWarnAlwaysRecorded(t *testing.T) {
	c := NewCollector(false)
	c.Warn("cache miss for %s", "graph.json")
	c.Info("this should not appear")

	lines := c.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (warn always recorded, info suppressed when not verbose), got %d", len(lines))
	}
	if lines[0].Severity != SeverityWarning {
		t.Errorf("expected warning severity, got %v", lines[0].Severity)
	}
}

func TestCollectorVerboseRecordsInfo(t *testing.T) {
	c := NewCollector(true)
	c.Info("loaded cache with %d entries", 3)

	lines := c.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if !strings.Contains(c.FormatAll(), "[vitest-affected]") {
		t.Errorf("expected log prefix in formatted output, got %q", c.FormatAll())
	}
}

func TestCollectorNilSafe(t *testing.T) {
	var c *Collector
	c.Warn("should not panic")
	c.Info("should not panic")
	if c.Lines() != nil {
		t.Error("expected nil lines from nil collector")
	}
	if c.FormatAll() != "" {
		t.Error("expected empty format from nil collector")
	}
}

func TestFallbackErrorUnwrap(t *testing.T) {
	cause := errors.New("ENOENT")
	err := Wrap(SafeFallback, "cache-miss", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find wrapped cause")
	}

	var fb *FallbackError
	if !errors.As(err, &fb) {
		t.Fatal("expected errors.As to match *FallbackError")
	}
	if fb.Kind != SafeFallback || fb.Reason != "cache-miss" {
		t.Errorf("unexpected kind/reason: %v/%q", fb.Kind, fb.Reason)
	}
}

func TestNewFallbackNoWrappedCause(t *testing.T) {
	err := NewFallback(ForceFullSuite, "config-change")
	if err.Unwrap() != nil {
		t.Error("expected nil Unwrap for a FallbackError with no cause")
	}
	if !strings.Contains(err.Error(), "config-change") {
		t.Errorf("expected reason in error string, got %q", err.Error())
	}
}
