// Package mailer abstracts the outbound email transport. The durable retry
// policy lives in the mailqueue service; transports only attempt one send.
package mailer

import (
	"context"

	cfgpkg "github.com/keymasterhq/keymaster/pkg/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Message is one rendered outbound email.
type Message struct {
	To       string
	Subject  string
	BodyText string
	BodyHTML string
}

// Transport sends a single message and returns the provider message id.
type Transport interface {
	Send(ctx context.Context, msg *Message) (providerMessageID string, err error)
}

// New selects a transport from config: SMTP when a host is configured,
// otherwise a log-only transport for local development.
func New(cfg *cfgpkg.Config, log *zap.SugaredLogger) Transport {
	if cfg.SMTP.Host != "" {
		return NewSMTPTransport(cfg.SMTP, log)
	}
	log.Warnw("smtp not configured, using log transport")
	return NewLogTransport(log)
}

var Module = fx.Options(
	fx.Provide(New),
)
