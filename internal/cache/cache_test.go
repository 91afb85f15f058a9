package cache

import (
	"testing"
	"time"
)

func TestCache_GetSetExpire(t *testing.T) {
	c := New[string](0)
	defer c.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", "v", time.Minute)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("Get = %q, %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should have expired")
	}
	if c.Len() != 0 {
		t.Error("expired entry should be evicted on read")
	}
}

func TestCache_Cleanup(t *testing.T) {
	c := New[int](0)
	defer c.Close()

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)

	now = now.Add(time.Minute)
	c.cleanup()
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := New[int](time.Millisecond)
	c.Close()
	c.Close()
}

func TestKey(t *testing.T) {
	if Key("a", "bc") == Key("ab", "c") {
		t.Error("Key must separate parts")
	}
	if Key("x") != Key("x") {
		t.Error("Key must be deterministic")
	}
}
