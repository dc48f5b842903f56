package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/sshbot/core/config"
	"github.com/m3rciful/sshbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareHooks lets the application answer updates the chain rejects.
type MiddlewareHooks struct {
	OnLimited func(tele.Context) error
	OnDenied  func(tele.Context) error
}

// DefaultMiddlewares builds the shared middleware chain for bots.
// Access control runs before rate limiting so strangers never consume a slot.
func DefaultMiddlewares(cfg *coreconfig.Config, hooks MiddlewareHooks) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}

	if cfg != nil {
		access := cfg.Access
		mws = append(mws, Middleware{
			Name: "access",
			Use: middleware.AccessMiddleware(middleware.AccessOptions{
				Allows:   access.Allows,
				OnReject: hooks.OnDenied,
			}),
		})

		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
			for _, t := range cfg.RateLimit.ExcludeUpdates {
				ex[strings.ToLower(t)] = struct{}{}
			}
			opts := middleware.RateLimitOptions{
				Interval:  interval,
				Exclude:   ex,
				OnLimited: hooks.OnLimited,
			}
			mws = append(mws, Middleware{
				Name: "rate_limit",
				Use:  middleware.RateLimitMiddleware(opts),
			})
		}
	}

	mws = append(mws, Middleware{Name: "logger", Use: middleware.LoggerMiddleware})

	return mws
}
