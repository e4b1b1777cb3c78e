package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := NewTTL(time.Minute)
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("hit on empty cache")
	}

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	c.Set("k", "v2")
	if got, _ := c.Get("k"); got != "v2" {
		t.Fatalf("overwrite lost: %q", got)
	}
}

func TestExpiry(t *testing.T) {
	c := NewTTL(20 * time.Millisecond)
	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("entry expired immediately")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry survived its TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("Len counts expired entries: %d", c.Len())
	}
}
