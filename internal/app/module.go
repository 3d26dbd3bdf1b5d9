package app

import (
	"time"

	"github.com/keymasterhq/keymaster/internal/app/api/server"
	"github.com/keymasterhq/keymaster/internal/app/service/alerting"
	"github.com/keymasterhq/keymaster/internal/app/service/license"
	"github.com/keymasterhq/keymaster/internal/app/service/mailqueue"
	"github.com/keymasterhq/keymaster/internal/app/service/migration"
	"github.com/keymasterhq/keymaster/internal/app/service/purchase"
	"github.com/keymasterhq/keymaster/internal/app/service/webhook"
	"github.com/keymasterhq/keymaster/internal/platform/db"
	"github.com/keymasterhq/keymaster/internal/platform/mailer"
	"github.com/keymasterhq/keymaster/pkg/config"
	"github.com/keymasterhq/keymaster/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	mailer.Module,
	server.Module,
	license.Module,
	webhook.Module,
	purchase.Module,
	migration.Module,
	mailqueue.Module,
	alerting.Module,
)
