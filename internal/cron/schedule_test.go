package cron

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleUnmarshal(t *testing.T) {
	wantAt := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name string
		json string
		want Schedule
	}{
		{
			name: "canonical at",
			json: `{"kind":"at","at":"2026-05-01T09:30:00Z"}`,
			want: Schedule{Kind: ScheduleKindAt, AtMs: wantAt},
		},
		{
			name: "legacy atMs number",
			json: `{"kind":"at","atMs":1777714200000}`,
			want: Schedule{Kind: ScheduleKindAt, AtMs: 1777714200000},
		},
		{
			name: "legacy atMs numeric string",
			json: `{"kind":"at","atMs":"1777714200000"}`,
			want: Schedule{Kind: ScheduleKindAt, AtMs: 1777714200000},
		},
		{
			name: "at string wins over atMs",
			json: `{"kind":"at","at":"2026-05-01T09:30:00Z","atMs":42}`,
			want: Schedule{Kind: ScheduleKindAt, AtMs: wantAt},
		},
		{
			name: "at carrying raw unix ms",
			json: `{"kind":"at","at":"1777714200000"}`,
			want: Schedule{Kind: ScheduleKindAt, AtMs: 1777714200000},
		},
		{
			name: "every with anchor",
			json: `{"kind":"every","everyMs":60000,"anchorMs":1000}`,
			want: Schedule{Kind: ScheduleKindEvery, EveryMs: 60000, AnchorMs: 1000},
		},
		{
			name: "canonical cron expr",
			json: `{"kind":"cron","expr":"*/5 * * * *","tz":"UTC"}`,
			want: Schedule{Kind: ScheduleKindCron, Expr: "*/5 * * * *", TZ: "UTC"},
		},
		{
			name: "legacy cron key",
			json: `{"kind":"cron","cron":"0 9 * * 1"}`,
			want: Schedule{Kind: ScheduleKindCron, Expr: "0 9 * * 1"},
		},
		{
			name: "expr wins over legacy cron key",
			json: `{"kind":"cron","expr":"1 * * * *","cron":"2 * * * *"}`,
			want: Schedule{Kind: ScheduleKindCron, Expr: "1 * * * *"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Schedule
			require.NoError(t, json.Unmarshal([]byte(tt.json), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScheduleUnmarshal_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{name: "garbage at string", json: `{"kind":"at","at":"tomorrow-ish"}`},
		{name: "garbage atMs value", json: `{"kind":"at","atMs":{"nope":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Schedule
			assert.Error(t, json.Unmarshal([]byte(tt.json), &got))
		})
	}
}

func TestScheduleMarshal_WritesCanonicalShape(t *testing.T) {
	atMs := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC).UnixMilli()

	data, err := json.Marshal(Schedule{Kind: ScheduleKindAt, AtMs: atMs})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2026-05-01T09:30:00Z", raw["at"])
	assert.NotContains(t, raw, "atMs")
	assert.NotContains(t, raw, "cron")

	// Round-trips back to the same value.
	var got Schedule
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, atMs, got.AtMs)
}
