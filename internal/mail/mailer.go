package mail

import (
	"context"
	"fmt"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/config"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/logger"
)

// Dispatcher sends one templated message and returns a confirmation
// id. Delivery is a one-way side effect; callers decide whether a
// failure is fatal to their request.
type Dispatcher interface {
	Send(ctx context.Context, to, subject, html, text string) (string, error)
}

// New selects the transport from configuration.
func New(cfg config.Mail, log *logger.Logger) (Dispatcher, error) {
	switch cfg.Transport {
	case "smtp":
		return newSMTPDispatcher(cfg)
	case "api":
		return newAPIDispatcher(cfg)
	case "dev", "":
		return &devDispatcher{log: log}, nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}
