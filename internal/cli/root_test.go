package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("from", "2024-03-01T13:00:00.250+01:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2024, 3, 1, 12, 0, 0, 250_000_000, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("got %s, want %s", got, want)
	}

	_, err = parseTimeFlag("to", "yesterday")
	if err == nil || !strings.Contains(err.Error(), "--to") {
		t.Fatalf("expected --to error, got %v", err)
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--config", "/nonexistent/meterwatch.yaml"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "meterwatch ") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
