package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheGetMissReturnsFalse(t *testing.T) {
	c := NewMemory()
	_, ok, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected miss for unset key")
	}
}

func TestMemoryCacheSetThenGet(t *testing.T) {
	c := NewMemory()
	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, ok, err := c.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || string(value) != "v" {
		t.Fatalf("expected hit with value 'v', got ok=%v value=%q", ok, value)
	}
}

func TestMemoryCacheSetWithZeroTTLIsNoop(t *testing.T) {
	c := NewMemory()
	if err := c.Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, ok, err := c.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected zero-TTL Set to never be visible")
	}
}

func TestMemoryCacheExpiresEntries(t *testing.T) {
	c := NewMemory()
	if err := c.Set(context.Background(), "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	_, ok, err := c.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestMemoryCacheGetReturnsDefensiveCopy(t *testing.T) {
	c := NewMemory()
	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, _, err := c.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	value[0] = 'x'
	again, _, err := c.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(again) != "v" {
		t.Fatalf("mutating a returned value must not affect the cache, got %q", again)
	}
}

func TestMemoryCacheCloseIsNoop(t *testing.T) {
	c := NewMemory()
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
