package tenants

import (
	"testing"
	"time"
)

func TestInQuietHours_SameDayWindow(t *testing.T) {
	tenant := Tenant{Timezone: "UTC", QuietStartHour: 9, QuietEndHour: 17}

	inside := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if !tenant.InQuietHours(inside) {
		t.Fatalf("expected 12:00 inside 9-17 window")
	}

	atEnd := time.Date(2026, 8, 1, 17, 0, 0, 0, time.UTC)
	if tenant.InQuietHours(atEnd) {
		t.Fatalf("expected end hour exclusive")
	}
}

func TestInQuietHours_WrapsMidnight(t *testing.T) {
	tenant := Tenant{Timezone: "UTC", QuietStartHour: 21, QuietEndHour: 8}

	late := time.Date(2026, 8, 1, 23, 0, 0, 0, time.UTC)
	if !tenant.InQuietHours(late) {
		t.Fatalf("expected 23:00 inside 21-8 window")
	}
	early := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	if !tenant.InQuietHours(early) {
		t.Fatalf("expected 06:00 inside 21-8 window")
	}
	midday := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if tenant.InQuietHours(midday) {
		t.Fatalf("expected 12:00 outside 21-8 window")
	}
}

func TestInQuietHours_DisabledWindow(t *testing.T) {
	tenant := Tenant{Timezone: "UTC"}
	if tenant.InQuietHours(time.Now()) {
		t.Fatalf("expected equal start/end hours to disable quiet hours")
	}
}

func TestInQuietHours_TimezoneApplied(t *testing.T) {
	tenant := Tenant{Timezone: "America/Chicago", QuietStartHour: 21, QuietEndHour: 8}

	// 03:00 UTC is 22:00 the previous evening in Chicago during DST
	at := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	if !tenant.InQuietHours(at) {
		t.Fatalf("expected 22:00 local inside the window")
	}
}

func TestInQuietHours_BadTimezoneFallsBackToUTC(t *testing.T) {
	tenant := Tenant{Timezone: "Mars/Olympus", QuietStartHour: 9, QuietEndHour: 17}

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if !tenant.InQuietHours(at) {
		t.Fatalf("expected UTC fallback to place 12:00 inside the window")
	}
}
