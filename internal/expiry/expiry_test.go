package expiry

import (
	"testing"
	"time"
)

func TestExpiresAt(t *testing.T) {
	issued := time.Date(2029, time.December, 31, 23, 50, 0, 0, time.UTC)
	got := ExpiresAt(issued, 15*time.Minute)
	want := time.Date(2030, time.January, 1, 0, 5, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ExpiresAt got %v want %v", got, want)
	}

	if got := ExpiresAt(issued, 0); !got.IsZero() {
		t.Fatalf("ExpiresAt with zero ttl got %v want zero time", got)
	}
	if got := ExpiresAt(issued, -time.Second); !got.IsZero() {
		t.Fatalf("ExpiresAt with negative ttl got %v want zero time", got)
	}
}

func TestIsExpired(t *testing.T) {
	end := time.Date(2030, time.February, 28, 12, 0, 0, 0, time.UTC)
	// Just before end -> not expired
	if IsExpired(end, end.Add(-time.Nanosecond)) {
		t.Fatalf("expected not expired before end")
	}
	// At end -> not expired (expiry instant is inclusive)
	if IsExpired(end, end) {
		t.Fatalf("expected not expired at end")
	}
	// After end -> expired
	if !IsExpired(end, end.Add(time.Nanosecond)) {
		t.Fatalf("expected expired after end")
	}
	if IsExpired(time.Time{}, end.AddDate(100, 0, 0)) {
		t.Fatalf("zero expiry must never expire")
	}
}

func TestRemaining(t *testing.T) {
	end := time.Date(2030, time.April, 30, 0, 0, 0, 0, time.UTC)
	if got := Remaining(end, end.Add(-time.Minute)); got != time.Minute {
		t.Fatalf("Remaining got %v want %v", got, time.Minute)
	}
	if got := Remaining(end, end.Add(time.Minute)); got != 0 {
		t.Fatalf("Remaining past end got %v want 0", got)
	}
	if got := Remaining(time.Time{}, end); got != -1 {
		t.Fatalf("Remaining without expiry got %v want -1", got)
	}
}

func TestParseTTL(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"", 0, true},
		{"0", 0, true},
		{"15m", 15 * time.Minute, true},
		{"90", 90 * time.Second, true},
		{"1h30m", 90 * time.Minute, true},
		{"-5m", 0, false},
		{"-5", 0, false},
		{"abc", 0, false},
		{"10x", 0, false},
	}
	for _, c := range cases {
		got, err := ParseTTL(c.in)
		if (err == nil) != c.ok {
			t.Fatalf("ParseTTL(%q) ok=%v got err=%v", c.in, c.ok, err)
		}
		if c.ok && got != c.want {
			t.Fatalf("ParseTTL(%q) got %v want %v", c.in, got, c.want)
		}
	}
}
