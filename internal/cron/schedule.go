package cron

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is the tagged union describing when a job fires. It is the
// canonical in-memory representation; legacy field shapes found in older
// persisted documents are normalized away at decode time so the rest of the
// scheduler never sees them.
type Schedule struct {
	Kind     string // "at", "every" or "cron"
	AtMs     int64  // "at": trigger timestamp, unix ms
	EveryMs  int64  // "every": period in ms
	AnchorMs int64  // "every": optional anchor, unix ms
	Expr     string // "cron": cron expression
	TZ       string // "cron": IANA timezone, system-local when empty
}

// scheduleJSON is the wire shape. Canonical documents carry "at" as an
// RFC3339 string and the cron expression under "expr"; legacy documents may
// instead carry "atMs" (number or numeric string) and "cron".
type scheduleJSON struct {
	Kind     string          `json:"kind"`
	At       string          `json:"at,omitempty"`
	AtMs     json.RawMessage `json:"atMs,omitempty"`
	EveryMs  int64           `json:"everyMs,omitempty"`
	AnchorMs int64           `json:"anchorMs,omitempty"`
	Expr     string          `json:"expr,omitempty"`
	Cron     string          `json:"cron,omitempty"`
	TZ       string          `json:"tz,omitempty"`
}

// MarshalJSON writes the canonical wire shape.
func (s Schedule) MarshalJSON() ([]byte, error) {
	w := scheduleJSON{
		Kind:     s.Kind,
		EveryMs:  s.EveryMs,
		AnchorMs: s.AnchorMs,
		Expr:     s.Expr,
		TZ:       s.TZ,
	}
	if s.Kind == ScheduleKindAt && s.AtMs != 0 {
		w.At = time.UnixMilli(s.AtMs).UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts both the canonical and the legacy field shapes.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var w scheduleJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	s.Kind = w.Kind
	s.EveryMs = w.EveryMs
	s.AnchorMs = w.AnchorMs
	s.TZ = w.TZ

	// Prefer "expr"; fall back to the legacy "cron" key.
	s.Expr = w.Expr
	if s.Expr == "" {
		s.Expr = w.Cron
	}

	s.AtMs = 0
	if w.At != "" {
		ms, err := parseTimestamp(w.At)
		if err != nil {
			return fmt.Errorf("invalid schedule 'at' value %q: %w", w.At, err)
		}
		s.AtMs = ms
	} else if len(w.AtMs) > 0 {
		ms, err := parseEpochMs(w.AtMs)
		if err != nil {
			return fmt.Errorf("invalid schedule 'atMs' value: %w", err)
		}
		s.AtMs = ms
	}

	return nil
}

// parseTimestamp parses an RFC3339 timestamp, falling back to a raw unix-ms
// integer for defensiveness against older writers.
func parseTimestamp(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UnixMilli(), nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return ms, nil
	}
	return 0, fmt.Errorf("not an RFC3339 timestamp or unix-ms integer")
}

// parseEpochMs parses a JSON number or numeric string as unix milliseconds.
func parseEpochMs(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strconv.ParseInt(strings.TrimSpace(str), 10, 64)
	}
	return 0, fmt.Errorf("not a number or numeric string")
}
