package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestTextLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewText(&buf)
	ctx := context.Background()

	log.Debug(ctx, "debug line")
	log.Info(ctx, "info line")
	log.Warn(ctx, "Domain not registered", "domain", "unknown.org")
	log.Error(ctx, "Failed to post message", "status", 502)

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("below-warn records written: %q", out)
	}
	if !strings.Contains(out, "domain=unknown.org") {
		t.Errorf("warn record missing: %q", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "status=502") {
		t.Errorf("error record missing: %q", out)
	}
}
