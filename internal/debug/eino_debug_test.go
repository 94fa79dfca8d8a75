package debug

import (
	"context"
	"testing"

	"github.com/dyike/tradeflow/config"
)

func TestDisabledDebuggerIsNoop(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	d := NewEinoDebugger(cfg, nil)
	if d.IsEnabled() || d.GetDebugURL() != "" {
		t.Fatalf("debugger should be disabled by default")
	}
	if err := d.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
}

func TestDebugURL(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.EinoDebugEnabled = true
	cfg.EinoDebugPort = 52600
	if got := NewEinoDebugger(cfg, nil).GetDebugURL(); got != "http://localhost:52600" {
		t.Fatalf("unexpected url %s", got)
	}
}
