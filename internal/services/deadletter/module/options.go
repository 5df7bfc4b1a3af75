package module

import "progcap/internal/platform/config"

// Options controls the dead letter gate
type Options struct {
	RetryMax int
}

// FromConfig reads options using the CAPTURE_ prefix; the retry maximum is shared with the router
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CAPTURE_")
	return Options{RetryMax: c.MayInt("RETRY_MAX", 3)}
}
