// Package window describes what a capture job covers: a time range or an explicit item list
package window

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	perr "progcap/internal/platform/errors"
)

// Window is either a time range or an explicit list of item ids
// a non-empty Items wins over the range
type Window struct {
	Since     *time.Time `json:"since,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	Items     []string   `json:"items,omitempty"`
	ItemCount int        `json:"item_count,omitempty"` // caller hint for ranges, 0 = unknown
	// OpenEnded records that Until was filled in at submission; the key ignores it.
	OpenEnded bool `json:"open_ended,omitempty"`
}

// IsItems reports whether the window is an explicit item list
func (w Window) IsItems() bool { return len(w.Items) > 0 }

// Normalize fills Until with now for open ranges and trims item ids.
// The filled range stays marked open so its key does not move with the clock.
func (w Window) Normalize(now time.Time) Window {
	out := w
	if w.IsItems() {
		items := make([]string, 0, len(w.Items))
		for _, it := range w.Items {
			if s := strings.TrimSpace(it); s != "" {
				items = append(items, s)
			}
		}
		out.Items = items
		out.Since, out.Until, out.OpenEnded = nil, nil, false
		return out
	}
	if w.Since != nil && w.Until == nil {
		u := now.UTC()
		out.Until = &u
		out.OpenEnded = true
	}
	return out
}

// Validate rejects empty windows
func (w Window) Validate() error {
	if w.IsItems() {
		for _, it := range w.Items {
			if strings.TrimSpace(it) == "" {
				return perr.WithField(perr.Validationf("window items must not be blank"), "window.items")
			}
		}
		return nil
	}
	if w.Since == nil {
		return perr.WithField(perr.Validationf("window needs items or a since bound"), "window")
	}
	if w.Until != nil && !w.Since.Before(*w.Until) {
		return perr.WithField(perr.Validationf("window since must be before until"), "window.since")
	}
	if w.ItemCount < 0 {
		return perr.WithField(perr.Validationf("window item_count must not be negative"), "window.item_count")
	}
	return nil
}

// Key is the canonical identity of the window as submitted.
// Item order and duplicates do not change it, and an open range keys on its since bound alone.
func (w Window) Key() string {
	if w.IsItems() {
		items := slices.Clone(w.Items)
		slices.Sort(items)
		items = slices.Compact(items)
		sum := sha256.Sum256([]byte(strings.Join(items, "\n")))
		return "items:" + hex.EncodeToString(sum[:])
	}
	var since, until string
	if w.Since != nil {
		since = w.Since.UTC().Format(time.RFC3339Nano)
	}
	switch {
	case w.OpenEnded || (w.Since != nil && w.Until == nil):
		until = "open"
	case w.Until != nil:
		until = w.Until.UTC().Format(time.RFC3339Nano)
	}
	return "range:" + since + "/" + until
}

// Count is the number of requested items, 0 when unknown
func (w Window) Count() int {
	if w.IsItems() {
		return len(w.Items)
	}
	return w.ItemCount
}

// OldestAge is how far back the window reaches from now
func (w Window) OldestAge(now time.Time) time.Duration {
	if w.IsItems() || w.Since == nil {
		return 0
	}
	if d := now.Sub(*w.Since); d > 0 {
		return d
	}
	return 0
}
