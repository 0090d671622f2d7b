package infra

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("production", &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Str("format", "1:1").Msg("generated")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug event leaked at info level: %s", out)
	}
	for _, want := range []string{`"service":"adspack"`, `"format":"1:1"`, `"message":"generated"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestNewLoggerTestEnvIsSilent(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("test", &buf)
	logger.Error().Msg("boom")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}
