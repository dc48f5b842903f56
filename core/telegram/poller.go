package telegram

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/sshbot/core/config"
)

const defaultLongPollTimeout = 10 * time.Second

// subscribedUpdates lists the update kinds the routes handle. Edited
// messages are left out so an edit never re-runs a shell command.
var subscribedUpdates = []string{"message", "callback_query"}

// NewPoller builds the update source for cfg. In webhook mode Telegram drops
// the backlog on registration unless telegram.keep_pending_updates is set;
// long polling clears it through RemoveWebhook at start.
func NewPoller(cfg *coreconfig.Config) tele.Poller {
	if strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:         fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port),
			AllowedUpdates: subscribedUpdates,
			DropUpdates:    !cfg.Telegram.KeepPendingUpdates,
			SecretToken:    cfg.Webhook.SecretToken,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	return &tele.LongPoller{
		Timeout:        longPollTimeout(cfg),
		AllowedUpdates: subscribedUpdates,
	}
}

func longPollTimeout(cfg *coreconfig.Config) time.Duration {
	if s := cfg.Telegram.LongPollTimeoutSeconds; s > 0 {
		return time.Duration(s) * time.Second
	}
	return defaultLongPollTimeout
}
