// Package alerting sends fire-and-forget operator notifications for
// unrecoverable failures. A failed alert is logged, never escalated.
package alerting

import (
	"context"

	"github.com/keymasterhq/keymaster/internal/platform/mailer"
	cfgpkg "github.com/keymasterhq/keymaster/pkg/config"
	"github.com/keymasterhq/keymaster/pkg/logctx"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	cfg       *cfgpkg.Config
	log       *zap.SugaredLogger
	transport mailer.Transport
}

func NewService(cfg *cfgpkg.Config, log *zap.SugaredLogger, transport mailer.Transport) *Service {
	return &Service{cfg: cfg, log: log, transport: transport}
}

// Notify emails every configured operator recipient. Best-effort: it bypasses
// the durable queue on purpose so a broken queue cannot suppress its own
// alarm, and it never returns an error.
func (s *Service) Notify(ctx context.Context, subject, body string) {
	log := logctx.FromCtx(ctx, s.log)
	if len(s.cfg.Alerting.Recipients) == 0 {
		log.Warnw("operator_alert_dropped_no_recipients", "subject", subject)
		return
	}
	for _, to := range s.cfg.Alerting.Recipients {
		if _, err := s.transport.Send(ctx, &mailer.Message{
			To:       to,
			Subject:  "[keymaster alert] " + subject,
			BodyText: body,
		}); err != nil {
			log.Errorw("operator_alert_send_failed", "recipient", to, "error", err)
		}
	}
}

var Module = fx.Options(
	fx.Provide(NewService),
)
