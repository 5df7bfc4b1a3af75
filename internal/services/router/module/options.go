package module

import (
	"strings"

	"progcap/internal/core/route"
	"progcap/internal/platform/config"
	"progcap/internal/services/router/service"
)

// Options is the routing and dispatch configuration
type Options struct {
	Router service.Config

	RealtimeURL   string
	BulkURL       string
	DispatchToken string
}

// FromConfig reads CAPTURE_ROUTER_*, CAPTURE_DISPATCH_* and the shared CAPTURE_RETRY_MAX
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CAPTURE_")
	r := c.Prefix("ROUTER_")
	d := c.Prefix("DISPATCH_")
	return Options{
		Router: service.Config{
			Feature: r.MayString("FEATURE", "progressive_capture"),
			Default: route.Backend(strings.ToLower(r.MayEnum("DEFAULT_BACKEND", string(route.Realtime),
				string(route.Realtime), string(route.Bulk)))),
			Freshness:       r.MayDuration("FRESHNESS", 0),
			BatchSize:       r.MayInt("BATCH_SIZE", 50),
			DispatchTimeout: r.MayDuration("DISPATCH_TIMEOUT", 0),
			RetryMax:        c.MayInt("RETRY_MAX", 3),
		},
		RealtimeURL:   d.MayString("REALTIME_URL", ""),
		BulkURL:       d.MayString("BULK_URL", ""),
		DispatchToken: d.MayString("TOKEN", ""),
	}
}
