package module

import (
	"time"

	"progcap/internal/platform/config"
)

// Options controls the monitor and the GitHub credential pools it watches
type Options struct {
	Reserve       int
	RPS           float64
	Burst         int
	StaleAfter    time.Duration
	MaxWait       time.Duration
	ProbeInterval time.Duration

	GHBaseURL        string
	GHUserAgent      string
	GHTimeout        time.Duration
	GHMaxRetries     int
	GHRetryBase      time.Duration
	GHTokensRealtime string
	GHTokensBulk     string
}

// FromConfig reads options using CAPTURE_RATELIMIT_ and CAPTURE_GH_ prefixes
func FromConfig(cfg config.Conf) Options {
	rl := cfg.Prefix("CAPTURE_RATELIMIT_")
	gh := cfg.Prefix("CAPTURE_GH_")
	return Options{
		Reserve:       rl.MayInt("RESERVE", 100),
		RPS:           rl.MayFloat64("RPS", 2.0),
		Burst:         rl.MayInt("BURST", 4),
		StaleAfter:    rl.MayDuration("STALE_AFTER", 2*time.Hour),
		MaxWait:       rl.MayDuration("MAX_WAIT", 30*time.Second),
		ProbeInterval: rl.MayDuration("PROBE_INTERVAL", time.Minute),

		GHBaseURL:        gh.MayString("BASE_URL", ""),
		GHUserAgent:      gh.MayString("UA", "progcap"),
		GHTimeout:        gh.MayDuration("TIMEOUT", 10*time.Second),
		GHMaxRetries:     gh.MayInt("MAX_RETRIES", 3),
		GHRetryBase:      gh.MayDuration("RETRY_BASE", 500*time.Millisecond),
		GHTokensRealtime: gh.MayString("TOKENS_REALTIME", ""),
		GHTokensBulk:     gh.MayString("TOKENS_BULK", ""),
	}
}
