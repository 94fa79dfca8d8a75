package debug

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/devops"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/config"
	"github.com/dyike/tradeflow/internal/logging"
)

// EinoDebugger starts the eino devops plugin so model calls can be
// inspected from the visual debugger.
type EinoDebugger struct {
	config *config.Config
	log    logrus.FieldLogger
}

func NewEinoDebugger(cfg *config.Config, log logrus.FieldLogger) *EinoDebugger {
	return &EinoDebugger{
		config: cfg,
		log:    logging.OrDiscard(log).WithField("component", "eino_debug"),
	}
}

// Initialize is a no-op unless eino_debug_enabled is set.
func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.IsEnabled() {
		return nil
	}
	d.log.WithField("port", d.config.EinoDebugPort).Debug("initializing eino debug plugin")
	if err := devops.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize Eino debug plugin: %w", err)
	}
	d.log.WithField("url", d.GetDebugURL()).Info("eino debug server ready")
	return nil
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.config != nil && d.config.EinoDebugEnabled
}

func (d *EinoDebugger) GetDebugURL() string {
	if !d.IsEnabled() {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.config.EinoDebugPort)
}
