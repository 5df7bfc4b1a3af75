package window

import (
	"testing"
	"time"
)

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		w    Window
		ok   bool
	}{
		{"empty", Window{}, false},
		{"items", Window{Items: []string{"1", "2"}}, true},
		{"blank item", Window{Items: []string{"1", " "}}, false},
		{"open range", Window{Since: at("2026-01-01T00:00:00Z")}, true},
		{"closed range", Window{Since: at("2026-01-01T00:00:00Z"), Until: at("2026-01-02T00:00:00Z")}, true},
		{"inverted range", Window{Since: at("2026-01-02T00:00:00Z"), Until: at("2026-01-01T00:00:00Z")}, false},
		{"negative hint", Window{Since: at("2026-01-01T00:00:00Z"), ItemCount: -1}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.w.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestKey_ItemOrderInsensitive(t *testing.T) {
	t.Parallel()

	a := Window{Items: []string{"3", "1", "2"}}
	b := Window{Items: []string{"1", "2", "3", "2"}}
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %s vs %s", a.Key(), b.Key())
	}
	if c := (Window{Items: []string{"1", "2"}}); c.Key() == a.Key() {
		t.Fatalf("different item sets share a key")
	}
}

func TestKey_RangeIsUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("x", 3600)
	s := time.Date(2026, 1, 1, 1, 0, 0, 0, loc)
	u := time.Date(2026, 1, 2, 1, 0, 0, 0, loc)
	w := Window{Since: &s, Until: &u}
	if got, want := w.Key(), "range:2026-01-01T00:00:00Z/2026-01-02T00:00:00Z"; got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
}

func TestNormalize_ClosesOpenRange(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := Window{Since: at("2026-03-01T00:00:00Z")}.Normalize(now)
	if w.Until == nil || !w.Until.Equal(now) {
		t.Fatalf("Until = %v, want %v", w.Until, now)
	}
	items := Window{Items: []string{" a ", "", "b"}, Since: at("2026-03-01T00:00:00Z")}.Normalize(now)
	if len(items.Items) != 2 || items.Items[0] != "a" || items.Since != nil {
		t.Fatalf("unexpected normalized items window %+v", items)
	}
}

func TestCountAndAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-45 * 24 * time.Hour)
	r := Window{Since: &old, ItemCount: 10}
	if r.Count() != 10 {
		t.Fatalf("Count() = %d", r.Count())
	}
	if r.OldestAge(now) != 45*24*time.Hour {
		t.Fatalf("OldestAge() = %v", r.OldestAge(now))
	}
	i := Window{Items: []string{"a", "b"}}
	if i.Count() != 2 || i.OldestAge(now) != 0 {
		t.Fatalf("items window count/age wrong")
	}
	future := now.Add(time.Hour)
	if (Window{Since: &future}).OldestAge(now) != 0 {
		t.Fatalf("future since should have zero age")
	}
}

func TestKey_OpenRangeStableAcrossClock(t *testing.T) {
	t.Parallel()

	req := Window{Since: at("2026-03-01T00:00:00Z")}
	first := req.Normalize(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	later := req.Normalize(time.Date(2026, 3, 1, 12, 0, 2, 0, time.UTC))

	if first.Key() != later.Key() {
		t.Fatalf("open range key moved with the clock: %s vs %s", first.Key(), later.Key())
	}
	if got, want := first.Key(), "range:2026-03-01T00:00:00Z/open"; got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
	if req.Key() != first.Key() {
		t.Fatalf("normalizing changed the key: %s vs %s", req.Key(), first.Key())
	}
	// a normalized window is idempotent under a second pass, as retries do
	if again := first.Normalize(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)); again.Key() != first.Key() || !again.Until.Equal(*first.Until) {
		t.Fatalf("second normalize changed the window: %+v", again)
	}

	closed := Window{Since: at("2026-03-01T00:00:00Z"), Until: first.Until}
	if closed.Key() == first.Key() {
		t.Fatalf("closed range shares the open range key")
	}
}

func TestKey_KeepsSubSecondBounds(t *testing.T) {
	t.Parallel()

	s := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u1 := time.Date(2026, 1, 2, 0, 0, 0, 100*int(time.Millisecond), time.UTC)
	u2 := time.Date(2026, 1, 2, 0, 0, 0, 200*int(time.Millisecond), time.UTC)
	a := Window{Since: &s, Until: &u1}
	b := Window{Since: &s, Until: &u2}
	if a.Key() == b.Key() {
		t.Fatalf("windows a few milliseconds apart share key %s", a.Key())
	}
}
