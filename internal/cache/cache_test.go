package cache

import (
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := c.Set("feed_annour_ivry", []byte("BEGIN:VCALENDAR")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := c.Get("feed_annour_ivry")
	if !ok {
		t.Fatal("fresh entry not found")
	}
	if string(got) != "BEGIN:VCALENDAR" {
		t.Errorf("value mismatch: got %q", got)
	}
}

func TestMiss(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := c.Get("never_set"); ok {
		t.Error("missing entry reported present")
	}
}

func TestExpiry(t *testing.T) {
	c, err := New(t.TempDir(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Set("metadata", []byte("{}")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("metadata"); ok {
		t.Error("expired entry still served")
	}
}

func TestInvalidate(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Set("metadata", []byte("{}")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Invalidate("metadata"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, ok := c.Get("metadata"); ok {
		t.Error("invalidated entry still served")
	}

	// Invalidating something absent is not an error.
	if err := c.Invalidate("never_set"); err != nil {
		t.Errorf("Invalidate of missing entry failed: %v", err)
	}
}

func TestInvalidateAll(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if err := c.Set(name, []byte(name)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := c.InvalidateAll(); err != nil {
		t.Fatalf("InvalidateAll failed: %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if _, ok := c.Get(name); ok {
			t.Errorf("entry %q survived InvalidateAll", name)
		}
	}
}

func TestSanitizedNames(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	name := "feed/../odd name"
	if err := c.Set(name, []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := c.Get(name)
	if !ok || string(got) != "v" {
		t.Errorf("round trip through sanitized name failed: (%q, %v)", got, ok)
	}
}
